package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/credstore"
)

const eventBufferSize = 256

var ErrNoDevice = errors.New("credential store has no device")

// WhatsmeowFactory builds whatsmeow-backed clients.
type WhatsmeowFactory struct {
	log waLog.Logger
}

// NewWhatsmeowFactory sets the companion device name shown on the phone and
// returns a factory logging through log.
func NewWhatsmeowFactory(osName string, log waLog.Logger) *WhatsmeowFactory {
	if osName != "" {
		store.DeviceProps.Os = proto.String(osName)
	}
	if log == nil {
		log = waLog.Noop
	}
	return &WhatsmeowFactory{log: log}
}

func (f *WhatsmeowFactory) New(_ context.Context, identity string, st credstore.Store) (Client, error) {
	device := st.Device()
	if device == nil {
		return nil, ErrNoDevice
	}
	cli := whatsmeow.NewClient(device, f.log.Sub(identity))
	// reconnects are owned by the session supervisor
	cli.EnableAutoReconnect = false

	c := &WAClient{
		identity: identity,
		cli:      cli,
		events:   make(chan Event, eventBufferSize),
		done:     make(chan struct{}),
	}
	c.handlerID = cli.AddEventHandler(c.handleEvent)
	return c, nil
}

// WAClient adapts a whatsmeow client to the Client interface.
type WAClient struct {
	identity  string
	cli       *whatsmeow.Client
	handlerID uint32
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
	mu        sync.Mutex
}

func (c *WAClient) Events() <-chan Event {
	return c.events
}

// Connect opens the websocket. An unpaired device gets a QR channel first so
// pairing codes are forwarded as ConnectionUpdate events.
func (c *WAClient) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	if c.cli.Store.ID == nil {
		qrChan, err := c.cli.GetQRChannel(ctx)
		if err != nil {
			return errors.Wrap(err, "get qr channel")
		}
		go c.forwardQR(qrChan)
	}
	if err := c.cli.Connect(); err != nil {
		return errors.Wrap(err, "connect")
	}
	return nil
}

func (c *WAClient) forwardQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(ConnectionUpdate{State: ConnPairing, QRCode: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			// PairSuccess and Connected arrive through the event handler
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(ConnectionUpdate{State: ConnClosed, Reason: ReasonQRTimeout})
		case whatsmeow.QRChannelEventError:
			detail := ""
			if item.Error != nil {
				detail = item.Error.Error()
			}
			c.emit(ConnectionUpdate{State: ConnClosed, Reason: ReasonConnectFailure, Detail: detail})
		default:
			c.emit(ConnectionUpdate{State: ConnClosed, Reason: ReasonConnectFailure, Detail: item.Event})
		}
	}
}

// Close disconnects the websocket and stops event delivery.
func (c *WAClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Unlock()
		c.cli.RemoveEventHandler(c.handlerID)
		c.cli.Disconnect()
	})
}

// emit blocks until the event is queued or the client is closed. whatsmeow
// runs handlers sequentially, so blocking here keeps emission order.
func (c *WAClient) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *WAClient) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		c.emit(CredentialUpdate{JID: e.ID, Reason: "pair_success"})
	case *events.Connected:
		if id := c.cli.Store.ID; id != nil {
			c.emit(CredentialUpdate{JID: *id, Reason: "connected"})
		}
		c.emit(ConnectionUpdate{State: ConnOpen})
	case *events.LoggedOut:
		c.emit(ConnectionUpdate{State: ConnClosed, Reason: ReasonLoggedOut, Detail: e.Reason.String()})
	case *events.Disconnected:
		c.emit(ConnectionUpdate{State: ConnClosed, Reason: ReasonConnectionLost})
	case *events.StreamReplaced:
		c.emit(ConnectionUpdate{State: ConnClosed, Reason: ReasonStreamReplaced})
	case *events.ConnectFailure:
		reason := ReasonConnectFailure
		if e.Reason.IsLoggedOut() {
			reason = ReasonLoggedOut
		}
		c.emit(ConnectionUpdate{State: ConnClosed, Reason: reason, Detail: e.Reason.String()})
	case *events.TemporaryBan:
		c.emit(ConnectionUpdate{State: ConnClosed, Reason: ReasonTemporaryBan, Detail: e.String()})
	case *events.ClientOutdated:
		c.emit(ConnectionUpdate{State: ConnClosed, Reason: ReasonClientOutdated})
	case *events.Message:
		c.emit(MessageUpsert{Info: e.Info, Message: e.Message})
		if e.Info.Chat == types.StatusBroadcastJID && !e.Info.IsFromMe {
			c.emit(PresenceUpdate{
				Chat: types.StatusBroadcastJID,
				Participants: []ParticipantPresence{{
					JID:        e.Info.Sender,
					State:      PresenceAvailable,
					MessageIDs: []types.MessageID{e.Info.ID},
				}},
			})
		}
	case *events.Presence:
		state := PresenceAvailable
		if e.Unavailable {
			state = PresenceUnavailable
		}
		c.emit(PresenceUpdate{
			Chat:         e.From,
			Participants: []ParticipantPresence{{JID: e.From, State: state}},
		})
	default:
		zap.L().Debug("whatsapp: unhandled event", zap.String("identity", c.identity), zap.String("type", eventName(evt)))
	}
}

func (c *WAClient) SendText(ctx context.Context, to types.JID, text string) error {
	_, err := c.cli.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
	return errors.Wrap(err, "send text")
}

func (c *WAClient) SendReaction(ctx context.Context, chat, sender types.JID, id types.MessageID, emoji string) error {
	_, err := c.cli.SendMessage(ctx, chat, c.cli.BuildReaction(chat, sender, id, emoji))
	return errors.Wrap(err, "send reaction")
}

// SendMedia uploads the payload and sends it as a regular image or video.
func (c *WAClient) SendMedia(ctx context.Context, to types.JID, media OutgoingMedia) error {
	var msg *waE2E.Message
	switch media.Kind {
	case MediaImage:
		up, err := c.cli.Upload(ctx, media.Data, whatsmeow.MediaImage)
		if err != nil {
			return errors.Wrap(err, "upload image")
		}
		msg = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(media.Mimetype),
			Caption:       proto.String(media.Caption),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	case MediaVideo:
		up, err := c.cli.Upload(ctx, media.Data, whatsmeow.MediaVideo)
		if err != nil {
			return errors.Wrap(err, "upload video")
		}
		msg = &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(media.Mimetype),
			Caption:       proto.String(media.Caption),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	default:
		return errors.Errorf("unsupported media kind %q", media.Kind)
	}
	_, err := c.cli.SendMessage(ctx, to, msg)
	return errors.Wrap(err, "send media")
}

func (c *WAClient) MarkRead(ctx context.Context, chat, sender types.JID, ids []types.MessageID) error {
	return errors.Wrap(c.cli.MarkRead(ctx, ids, time.Now(), chat, sender), "mark read")
}

func (c *WAClient) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	data, err := c.cli.Download(ctx, msg)
	if err != nil {
		return nil, errors.Wrap(err, "download media")
	}
	return data, nil
}
