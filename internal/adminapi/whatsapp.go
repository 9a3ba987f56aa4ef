package adminapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/credstore"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/domain"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/webserver"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/whatsapp"
)

const (
	msgInvalidName   = "Invalid session name provided."
	msgAlreadyActive = "Session already active."
	msgServerError   = "Server error while starting session."
)

// SessionService is the part of the session supervisor the control API uses.
type SessionService interface {
	StartSession(ctx context.Context, identity string, caller whatsapp.Caller) (whatsapp.StartOutcome, error)
	IsActive(identity string) bool
	Sessions() []domain.SessionInfo
}

var (
	sessions     SessionService
	startTimeout = 60 * time.Second
)

// Init registers the control API routes on the global web server.
func Init(svc SessionService, timeout time.Duration) {
	sessions = svc
	if timeout > 0 {
		startTimeout = timeout
	}
	registerWhatsAppRoutes()
}

func registerWhatsAppRoutes() {
	webserver.POST("/start-session", postStartSession)
	webserver.GET("/status/:sessionName", getSessionStatus)
	webserver.ApiGET("/sessions", listSessions)
}

type startSessionRequest struct {
	SessionName string `json:"sessionName" validate:"required,min=3"`
}

type startSessionResponse struct {
	Success     bool   `json:"success"`
	Method      string `json:"method,omitempty"`
	QR          string `json:"qr,omitempty"`
	SessionName string `json:"sessionName,omitempty"`
	Message     string `json:"message,omitempty"`
	Status      string `json:"status,omitempty"`
}

type sessionStatusResponse struct {
	Status      string `json:"status"`
	SessionName string `json:"sessionName"`
}

func failStart(c echo.Context, code int, msg string) error {
	return c.JSON(code, startSessionResponse{Success: false, Message: msg})
}

// postStartSession starts a session and relays its first lifecycle response:
// a QR data URL to scan, a connected notice, or "already active".
func postStartSession(c echo.Context) error {
	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return failStart(c, http.StatusBadRequest, msgInvalidName)
	}
	if err := c.Validate(&req); err != nil {
		return failStart(c, http.StatusBadRequest, msgInvalidName)
	}
	if err := domain.ValidateSessionName(req.SessionName); err != nil {
		return failStart(c, http.StatusBadRequest, msgInvalidName)
	}

	slot := whatsapp.NewResultSlot()
	outcome, err := sessions.StartSession(c.Request().Context(), req.SessionName, whatsapp.Originating(slot))
	if err != nil {
		if errors.Is(err, credstore.ErrInvalidIdentity) {
			return failStart(c, http.StatusBadRequest, msgInvalidName)
		}
		zap.L().Error("adminapi: start session failed", zap.String("sessionName", req.SessionName), zap.Error(err))
		return failStart(c, http.StatusInternalServerError, msgServerError)
	}
	if outcome == whatsapp.OutcomeAlreadyActive {
		return failStart(c, http.StatusOK, msgAlreadyActive)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), startTimeout)
	defer cancel()
	resp, err := slot.Wait(ctx)
	if err != nil {
		zap.L().Warn("adminapi: no first response, session continues headless",
			zap.String("sessionName", req.SessionName), zap.Error(err))
		return failStart(c, http.StatusInternalServerError, msgServerError)
	}

	switch resp.Kind {
	case whatsapp.ResponsePairing:
		return c.JSON(http.StatusOK, startSessionResponse{
			Success:     true,
			Method:      "qr",
			QR:          resp.QRDataURL,
			SessionName: req.SessionName,
		})
	case whatsapp.ResponseConnected:
		return c.JSON(http.StatusOK, startSessionResponse{
			Success: true,
			Message: resp.Message,
			Status:  "connected",
		})
	default:
		zap.L().Warn("adminapi: session failed before first response",
			zap.String("sessionName", req.SessionName), zap.String("message", resp.Message))
		return failStart(c, http.StatusInternalServerError, msgServerError)
	}
}

// getSessionStatus reports registry membership only; connecting and open
// sessions are both "connected".
func getSessionStatus(c echo.Context) error {
	name := c.Param("sessionName")
	status := "disconnected"
	if sessions.IsActive(name) {
		status = "connected"
	}
	return c.JSON(http.StatusOK, sessionStatusResponse{Status: status, SessionName: name})
}

func listSessions(c echo.Context) error {
	list := sessions.Sessions()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": list,
		"total":    len(list),
	})
}
