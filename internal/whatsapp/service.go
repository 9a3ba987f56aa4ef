package whatsapp

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/config"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/app"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/automation"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/credstore"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/domain"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/messaging"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/registry"
)

var ErrServiceClosed = errors.New("whatsapp service is shut down")

type StartOutcome int

const (
	OutcomeStarted StartOutcome = iota + 1
	OutcomeAlreadyActive
)

// Deps are the collaborators of the session supervisor.
type Deps struct {
	Registry *registry.Registry
	Creds    credstore.Loader
	Factory  messaging.ClientFactory
	Runner   automation.Runner
	Bus      EventBus.BusPublisher
}

// Service supervises every session: one task per identity that owns the
// client, persists credentials, feeds the automation engine and reconnects.
type Service struct {
	cfg      config.WhatsAppConfig
	registry *registry.Registry
	creds    credstore.Loader
	factory  messaging.ClientFactory
	runner   automation.Runner
	bus      EventBus.BusPublisher
	policy   ReconnectPolicy
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(cfg config.WhatsAppConfig, deps Deps) *Service {
	if deps.Registry == nil {
		deps.Registry = registry.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		registry: deps.Registry,
		creds:    deps.Creds,
		factory:  deps.Factory,
		runner:   deps.Runner,
		bus:      deps.Bus,
		policy:   NewReconnectPolicy(cfg.Reconnect),
		limiter:  newReconnectLimiter(cfg.Reconnect),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// New builds the service from the application context: a sqlstore-backed
// credential manager under the sessions dir and whatsmeow clients.
func New(a app.AppContext) *Service {
	cfg := a.Config()
	waLogger := messaging.NewZapLogger("whatsmeow", cfg.WhatsApp.LogLevel)
	svc := NewService(cfg.WhatsApp, Deps{
		Registry: registry.New(),
		Creds:    credstore.NewManager(cfg.GetSessionsDir(), waLogger.Sub("Database")),
		Factory:  messaging.NewWhatsmeowFactory(cfg.System.Appid, waLogger.Sub("Client")),
		Runner:   a.Pool(),
		Bus:      a.Bus(),
	})
	return svc
}

func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// IsActive reports whether identity has a registered session.
func (s *Service) IsActive(identity string) bool {
	_, ok := s.registry.Lookup(identity)
	return ok
}

// Sessions lists registered sessions with their state and settings.
func (s *Service) Sessions() []domain.SessionInfo {
	return s.registry.Snapshot()
}

// StartSession registers identity and spawns its session task. The registry
// reservation is the only gate against duplicate starts: a second call for a
// registered identity returns OutcomeAlreadyActive without side effects.
// Failures to load credentials or build the client roll the reservation back.
func (s *Service) StartSession(ctx context.Context, identity string, caller Caller) (StartOutcome, error) {
	if s.ctx.Err() != nil {
		return 0, ErrServiceClosed
	}
	if err := credstore.CheckIdentity(identity); err != nil {
		return 0, err
	}

	h := registry.NewHandle(identity)
	if !s.registry.Register(identity, h) {
		zap.L().Info("whatsapp: session already active", zap.String("identity", identity))
		return OutcomeAlreadyActive, nil
	}

	st, err := s.creds.Load(ctx, identity)
	if err != nil {
		s.registry.Remove(identity)
		return 0, errors.Wrapf(err, "load credentials of %s", identity)
	}
	client, err := s.factory.New(ctx, identity, st)
	if err != nil {
		_ = st.Close()
		s.registry.Remove(identity)
		return 0, errors.Wrapf(err, "create client for %s", identity)
	}
	h.Attach(client, st)
	s.publish(identity, domain.StateConnecting, "")

	zap.L().Info("whatsapp: session starting",
		zap.String("identity", identity),
		zap.Bool("headless", caller.Headless()))

	s.wg.Add(1)
	go s.run(h, caller)
	return OutcomeStarted, nil
}

// RestoreAll starts every session that has a credential directory, with no
// caller attached. Individual failures are logged.
func (s *Service) RestoreAll(ctx context.Context) (int, error) {
	ids, err := s.creds.ListIdentities()
	if err != nil {
		return 0, err
	}
	zap.L().Info("whatsapp: restoring sessions", zap.Int("count", len(ids)))

	var (
		mu       sync.Mutex
		restored int
	)
	g, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.RestoreConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, id := range ids {
		g.Go(func() error {
			outcome, err := s.StartSession(gctx, id, Headless())
			if err != nil {
				zap.L().Error("whatsapp: restore failed", zap.String("identity", id), zap.Error(err))
				return nil
			}
			if outcome == OutcomeStarted {
				mu.Lock()
				restored++
				mu.Unlock()
			}
			return nil
		})
	}
	err = g.Wait()
	return restored, err
}

// Shutdown stops every session task and waits for them until ctx is done.
// Credentials stay on disk.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		zap.L().Info("whatsapp: all sessions stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) publish(identity string, state domain.ConnectionState, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.TopicSessionState, domain.SessionEvent{SessionName: identity, State: state, Reason: reason})
}

func (s *Service) setState(h *registry.Handle, state domain.ConnectionState, reason string) {
	h.SetState(state)
	s.publish(h.Identity, state, reason)
}

// session is the state owned by one session task.
type session struct {
	handle   *registry.Handle
	caller   Caller
	engine   *automation.Engine
	attempts int
}

// run is the session task. It owns the handle's client for its whole life and
// replaces it in place on transient disconnects, so the identity stays
// registered and no second task can start for it.
func (s *Service) run(h *registry.Handle, caller Caller) {
	defer s.wg.Done()
	sess := &session{
		handle: h,
		caller: caller,
		engine: automation.NewEngine(h.Identity, s.registry, s.runner),
	}
	defer func() {
		if err := recover(); err != nil {
			zap.S().Errorf("whatsapp: session %s panic: %v", h.Identity, err)
			if client := h.Client(); client != nil {
				client.Close()
			}
			s.stop(sess, "panic")
		}
	}()

	for {
		client := h.Client()
		reason, detail := s.connectAndConsume(sess, client)
		client.Close()

		if s.ctx.Err() != nil {
			s.stop(sess, "shutdown")
			return
		}
		if reason.Terminal() {
			s.terminate(sess, detail)
			return
		}
		if !s.reconnect(sess, reason, detail) {
			return
		}
	}
}

// connectAndConsume connects client and processes its events in order until
// the connection closes or the service shuts down.
func (s *Service) connectAndConsume(sess *session, client messaging.Client) (messaging.DisconnectReason, string) {
	id := sess.handle.Identity
	if err := client.Connect(s.ctx); err != nil {
		zap.L().Warn("whatsapp: connect failed", zap.String("identity", id), zap.Error(err))
		return messaging.ReasonConnectFailure, err.Error()
	}

	for {
		select {
		case <-s.ctx.Done():
			return messaging.ReasonConnectionLost, "shutdown"
		case ev := <-client.Events():
			switch e := ev.(type) {
			case messaging.ConnectionUpdate:
				switch e.State {
				case messaging.ConnPairing:
					s.onPairing(sess, e.QRCode)
				case messaging.ConnOpen:
					s.onOpen(sess)
				case messaging.ConnClosed:
					zap.L().Info("whatsapp: connection closed",
						zap.String("identity", id),
						zap.String("reason", string(e.Reason)),
						zap.String("detail", e.Detail))
					return e.Reason, e.Detail
				}
			case messaging.CredentialUpdate:
				if err := sess.handle.Store().Save(s.ctx); err != nil {
					zap.L().Error("whatsapp: credential save failed", zap.String("identity", id), zap.Error(err))
				} else {
					zap.L().Debug("whatsapp: credentials saved", zap.String("identity", id), zap.String("reason", e.Reason))
				}
			case messaging.MessageUpsert:
				sess.engine.HandleMessage(s.ctx, client, e)
			case messaging.PresenceUpdate:
				sess.engine.HandlePresence(s.ctx, client, e)
			}
		}
	}
}

func (s *Service) onPairing(sess *session, code string) {
	id := sess.handle.Identity
	if sess.caller.Pending() {
		url, err := qrDataURL(code)
		if err != nil {
			zap.L().Error("whatsapp: qr render failed", zap.String("identity", id), zap.Error(err))
			sess.caller.Deliver(FirstResponse{Kind: ResponseFailed, Message: err.Error()})
			return
		}
		sess.caller.Deliver(FirstResponse{Kind: ResponsePairing, QRDataURL: url})
		zap.L().Info("whatsapp: pairing code delivered", zap.String("identity", id))
		return
	}
	if s.cfg.TerminalQR {
		zap.L().Info("whatsapp: scan pairing code", zap.String("identity", id))
		PrintTerminalQR(os.Stdout, code)
		return
	}
	zap.L().Info("whatsapp: pairing code discarded, no caller", zap.String("identity", id))
}

func (s *Service) onOpen(sess *session) {
	id := sess.handle.Identity
	sess.attempts = 0
	s.setState(sess.handle, domain.StateOpen, "")
	if sess.caller.Deliver(FirstResponse{Kind: ResponseConnected, Message: "Session " + id + " connected!"}) {
		zap.L().Info("whatsapp: session connected, caller notified", zap.String("identity", id))
		return
	}
	zap.L().Info("whatsapp: session connected", zap.String("identity", id))
}

// terminate forgets a logged out session: credentials, handle and settings.
func (s *Service) terminate(sess *session, detail string) {
	id := sess.handle.Identity
	if st := sess.handle.Store(); st != nil {
		_ = st.Close()
	}
	if err := s.creds.Delete(id); err != nil {
		zap.L().Error("whatsapp: credential removal failed", zap.String("identity", id), zap.Error(err))
	}
	s.registry.Remove(id)
	s.setState(sess.handle, domain.StateTerminated, detail)
	sess.caller.Deliver(FirstResponse{Kind: ResponseFailed, Message: "Session " + id + " logged out."})
	zap.L().Warn("whatsapp: session logged out and removed", zap.String("identity", id), zap.String("detail", detail))
}

// stop ends the task without touching credentials.
func (s *Service) stop(sess *session, reason string) {
	id := sess.handle.Identity
	if st := sess.handle.Store(); st != nil {
		_ = st.Close()
	}
	s.registry.Remove(id)
	s.setState(sess.handle, domain.StateClosed, reason)
	sess.caller.Deliver(FirstResponse{Kind: ResponseFailed, Message: "Session " + id + " stopped: " + reason})
	zap.L().Info("whatsapp: session stopped", zap.String("identity", id), zap.String("reason", reason))
}

// reconnect waits per the reconnect policy and swaps a fresh client into the
// handle. It returns false when the task should end.
func (s *Service) reconnect(sess *session, reason messaging.DisconnectReason, detail string) bool {
	id := sess.handle.Identity
	s.setState(sess.handle, domain.StateReconnecting, string(reason))

	for {
		sess.attempts++
		if s.policy.Exhausted(sess.attempts) {
			zap.L().Warn("whatsapp: reconnect attempts exhausted",
				zap.String("identity", id),
				zap.Int("attempts", sess.attempts-1))
			s.stop(sess, "reconnect attempts exhausted")
			return false
		}

		delay := s.policy.Delay(sess.attempts)
		zap.L().Info("whatsapp: reconnecting",
			zap.String("identity", id),
			zap.String("reason", string(reason)),
			zap.String("detail", detail),
			zap.Int("attempt", sess.attempts),
			zap.Duration("delay", delay))
		if !s.sleep(delay) || s.limiter.Wait(s.ctx) != nil {
			s.stop(sess, "shutdown")
			return false
		}

		client, err := s.factory.New(s.ctx, id, sess.handle.Store())
		if err != nil {
			zap.L().Error("whatsapp: client rebuild failed", zap.String("identity", id), zap.Error(err))
			reason, detail = messaging.ReasonConnectFailure, err.Error()
			continue
		}
		sess.handle.Attach(client, sess.handle.Store())
		s.setState(sess.handle, domain.StateConnecting, "")
		return true
	}
}

func (s *Service) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
