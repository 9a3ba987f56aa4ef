package automation

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/domain"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/messaging"
)

const (
	CommandPrefix  = "."
	handlerTimeout = 2 * time.Minute
	receiptTimeout = 15 * time.Second
)

// Reactions is the emoji set auto-react picks from.
var Reactions = []string{"🔥", "😂", "👍", "❤️", "🤯"}

// SettingsStore reads and replaces the automation settings of a session.
type SettingsStore interface {
	Settings(identity string) (domain.SessionSettings, bool)
	UpdateSettings(identity string, fn func(domain.SessionSettings) domain.SessionSettings) (domain.SessionSettings, bool)
}

// Runner runs fire-and-forget tasks. *ants.Pool satisfies it.
type Runner interface {
	Submit(task func()) error
}

// Engine is the automation logic bound to one session.
type Engine struct {
	identity string
	settings SettingsStore
	runner   Runner
	pick     func(n int) int
}

// NewEngine binds an engine to identity. A nil runner runs read receipts inline.
func NewEngine(identity string, settings SettingsStore, runner Runner) *Engine {
	return &Engine{
		identity: identity,
		settings: settings,
		runner:   runner,
		pick:     rand.IntN,
	}
}

func (e *Engine) recoverPanic(where string) {
	if err := recover(); err != nil {
		zap.S().Errorf("automation: %s panic for %s: %v", where, e.identity, err)
	}
}

// HandleMessage runs auto-react and command dispatch for one incoming message.
func (e *Engine) HandleMessage(ctx context.Context, m messaging.Messenger, ev messaging.MessageUpsert) {
	defer e.recoverPanic("message")
	if ev.Message == nil || ev.Info.IsFromMe || ev.Info.Chat == types.StatusBroadcastJID {
		return
	}
	settings, ok := e.settings.Settings(e.identity)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if settings.AutoReact {
		emoji := Reactions[e.pick(len(Reactions))]
		if err := m.SendReaction(ctx, ev.Info.Chat, ev.Info.Sender, ev.Info.ID, emoji); err != nil {
			zap.L().Warn("automation: auto react failed",
				zap.String("identity", e.identity),
				zap.String("chat", ev.Info.Chat.String()),
				zap.Error(err))
		}
	}

	body := strings.ToLower(strings.TrimSpace(textBody(ev.Message)))
	if !strings.HasPrefix(body, CommandPrefix) {
		return
	}
	command, args := splitCommand(body)
	zap.L().Info("automation: command",
		zap.String("identity", e.identity),
		zap.String("command", command),
		zap.String("chat", ev.Info.Chat.String()))
	e.dispatch(ctx, m, ev, command, args)
}

func splitCommand(body string) (string, string) {
	idx := strings.IndexFunc(body, unicode.IsSpace)
	if idx < 0 {
		return body, ""
	}
	return body[:idx], strings.TrimSpace(body[idx:])
}

func (e *Engine) dispatch(ctx context.Context, m messaging.Messenger, ev messaging.MessageUpsert, command, args string) {
	var reply string
	switch command {
	case ".menu":
		s, _ := e.settings.Settings(e.identity)
		reply = menuText(s)
	case ".autostatusseen":
		s, ok := e.settings.UpdateSettings(e.identity, func(cur domain.SessionSettings) domain.SessionSettings {
			cur.AutoSeen = args == "on"
			return cur
		})
		if !ok {
			return
		}
		reply = "✅ Auto Status Seen/React is now " + domain.OnOff(s.AutoSeen)
	case ".autoreact":
		s, ok := e.settings.UpdateSettings(e.identity, func(cur domain.SessionSettings) domain.SessionSettings {
			cur.AutoReact = args == "on"
			return cur
		})
		if !ok {
			return
		}
		reply = "✅ Auto Incoming Message React is now " + domain.OnOff(s.AutoReact)
	case ".vv":
		reply = e.viewOnce(ctx, m, ev)
	default:
		reply = "❌ Unknown command: " + command + ". Use .menu to see available commands."
	}
	if reply == "" {
		return
	}
	if err := m.SendText(ctx, ev.Info.Chat, reply); err != nil {
		zap.L().Warn("automation: reply failed",
			zap.String("identity", e.identity),
			zap.String("command", command),
			zap.Error(err))
	}
}

// HandlePresence marks status updates as read for participants that come
// online on the status broadcast chat, when auto status seen is enabled.
func (e *Engine) HandlePresence(ctx context.Context, m messaging.Messenger, ev messaging.PresenceUpdate) {
	defer e.recoverPanic("presence")
	if ev.Chat != types.StatusBroadcastJID {
		return
	}
	settings, ok := e.settings.Settings(e.identity)
	if !ok || !settings.AutoSeen {
		return
	}
	for _, p := range ev.Participants {
		if p.State != messaging.PresenceAvailable || len(p.MessageIDs) == 0 {
			continue
		}
		participant := p
		task := func() {
			defer e.recoverPanic("read receipt")
			rctx, cancel := context.WithTimeout(ctx, receiptTimeout)
			defer cancel()
			if err := m.MarkRead(rctx, types.StatusBroadcastJID, participant.JID, participant.MessageIDs); err != nil {
				zap.L().Debug("automation: status read receipt failed",
					zap.String("identity", e.identity),
					zap.String("participant", participant.JID.String()),
					zap.Error(err))
			}
		}
		if e.runner == nil {
			task()
			continue
		}
		if err := e.runner.Submit(task); err != nil {
			zap.L().Debug("automation: read receipt dropped", zap.String("identity", e.identity), zap.Error(err))
		}
	}
}
