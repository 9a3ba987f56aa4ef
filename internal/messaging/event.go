package messaging

import (
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
)

// Event is one item of a client's event stream. The concrete type is one of
// ConnectionUpdate, CredentialUpdate, MessageUpsert or PresenceUpdate.
type Event interface {
	isEvent()
}

type ConnState int

const (
	ConnPairing ConnState = iota
	ConnOpen
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnPairing:
		return "pairing"
	case ConnOpen:
		return "open"
	case ConnClosed:
		return "closed"
	}
	return "unknown"
}

// DisconnectReason tells why a connection closed.
type DisconnectReason string

const (
	ReasonLoggedOut      DisconnectReason = "logged_out"
	ReasonConnectionLost DisconnectReason = "connection_lost"
	ReasonStreamReplaced DisconnectReason = "stream_replaced"
	ReasonConnectFailure DisconnectReason = "connect_failure"
	ReasonTemporaryBan   DisconnectReason = "temporary_ban"
	ReasonClientOutdated DisconnectReason = "client_outdated"
	ReasonQRTimeout      DisconnectReason = "qr_timeout"
)

// Terminal reports whether the credentials behind the connection are
// permanently invalid. Only an explicit logout is terminal.
func (r DisconnectReason) Terminal() bool {
	return r == ReasonLoggedOut
}

// ConnectionUpdate reports a connection state transition. QRCode is set for
// ConnPairing, Reason for ConnClosed.
type ConnectionUpdate struct {
	State  ConnState
	QRCode string
	Reason DisconnectReason
	Detail string
}

// CredentialUpdate signals that the authentication state changed and must be
// persisted before the stream continues.
type CredentialUpdate struct {
	JID    types.JID
	Reason string
}

// MessageUpsert is one incoming message.
type MessageUpsert struct {
	Info    types.MessageInfo
	Message *waE2E.Message
}

type PresenceState string

const (
	PresenceAvailable   PresenceState = "available"
	PresenceUnavailable PresenceState = "unavailable"
)

type ParticipantPresence struct {
	JID   types.JID
	State PresenceState
	// MessageIDs are the status updates this participant is known to have
	// posted, when the update originates from the status broadcast chat.
	MessageIDs []types.MessageID
}

// PresenceUpdate carries the presence of participants of one chat.
type PresenceUpdate struct {
	Chat         types.JID
	Participants []ParticipantPresence
}

func (ConnectionUpdate) isEvent() {}
func (CredentialUpdate) isEvent() {}
func (MessageUpsert) isEvent()    {}
func (PresenceUpdate) isEvent()   {}
