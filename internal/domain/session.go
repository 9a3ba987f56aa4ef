package domain

import (
	"errors"
	"unicode/utf8"
)

// MinSessionNameLength is the shortest session name accepted by the control API.
const MinSessionNameLength = 3

// Lifecycle topics published on the application event bus.
const (
	TopicSessionState = "session:state"
)

var ErrInvalidSessionName = errors.New("invalid session name")

// ConnectionState is the per-session connection state machine position.
// It is never persisted.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateOpen         ConnectionState = "open"
	StateClosed       ConnectionState = "closed"
	StateReconnecting ConnectionState = "reconnecting"
	StateTerminated   ConnectionState = "terminated"
)

// SessionSettings holds the automation switches of one session.
// Values are replaced as a whole, never mutated in place.
type SessionSettings struct {
	AutoSeen  bool `json:"auto_seen"`
	AutoReact bool `json:"auto_react"`
}

// DefaultSessionSettings returns the settings every new session starts with.
func DefaultSessionSettings() SessionSettings {
	return SessionSettings{}
}

// SessionInfo is a read-only snapshot of a registered session.
type SessionInfo struct {
	SessionName string          `json:"session_name"`
	State       ConnectionState `json:"state"`
	Settings    SessionSettings `json:"settings"`
}

// SessionEvent is published on TopicSessionState at every state transition.
type SessionEvent struct {
	SessionName string
	State       ConnectionState
	Reason      string
}

// ValidateSessionName checks the API boundary constraint on session names.
func ValidateSessionName(name string) error {
	if utf8.RuneCountInString(name) < MinSessionNameLength {
		return ErrInvalidSessionName
	}
	return nil
}

// OnOff renders a switch the way chat replies show it.
func OnOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
