package messaging

import (
	"context"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/credstore"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// OutgoingMedia is a media payload to upload and send as a normal message.
type OutgoingMedia struct {
	Kind     MediaKind
	Data     []byte
	Mimetype string
	Caption  string
}

// Messenger is the outbound side of a client, used by the automation engine.
type Messenger interface {
	SendText(ctx context.Context, to types.JID, text string) error
	SendReaction(ctx context.Context, chat, sender types.JID, id types.MessageID, emoji string) error
	SendMedia(ctx context.Context, to types.JID, media OutgoingMedia) error
	MarkRead(ctx context.Context, chat, sender types.JID, ids []types.MessageID) error
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
}

// Client is one network connection of a session.
type Client interface {
	Messenger
	// Events returns the client's event stream. Events are delivered in
	// emission order; the channel is never closed.
	Events() <-chan Event
	// Connect starts the connection. Pairing data, if needed, arrives as a
	// ConnectionUpdate on the event stream.
	Connect(ctx context.Context) error
	// Close disconnects and detaches the client. It is safe to call twice.
	Close()
}

// ClientFactory builds a client bound to a credential store.
type ClientFactory interface {
	New(ctx context.Context, identity string, st credstore.Store) (Client, error)
}
