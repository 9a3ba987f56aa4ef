package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerLevelFilter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	log := NewZapLogger("Client", "WARN")
	log.Debugf("debug %d", 1)
	log.Infof("info %d", 2)
	log.Warnf("warn %d", 3)
	log.Sub("alice").Errorf("error %d", 4)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "warn 3", entries[0].Message)
		assert.Equal(t, "error 4", entries[1].Message)
		assert.Equal(t, "Client/alice", entries[1].ContextMap()["module"])
	}
}

func TestZapLoggerUnknownLevel(t *testing.T) {
	l := NewZapLogger("Client", "chatty").(*zapLogger)
	assert.Equal(t, zapcore.WarnLevel, l.min)
}

func TestDisconnectReasonTerminal(t *testing.T) {
	assert.True(t, ReasonLoggedOut.Terminal())
	for _, r := range []DisconnectReason{ReasonConnectionLost, ReasonStreamReplaced, ReasonConnectFailure, ReasonTemporaryBan, ReasonQRTimeout} {
		assert.False(t, r.Terminal(), r)
	}
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "*events.Receipt", eventName(&events.Receipt{}))
}
