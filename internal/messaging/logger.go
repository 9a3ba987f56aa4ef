package messaging

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	module string
	min    zapcore.Level
	sugar  *zap.SugaredLogger
}

// NewZapLogger bridges whatsmeow logging into zap. Messages below level
// (DEBUG, INFO, WARN or ERROR) are dropped; an unknown level means WARN.
func NewZapLogger(module string, level string) waLog.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.WarnLevel
	}
	return &zapLogger{
		module: module,
		min:    lvl,
		sugar:  zap.S().With(zap.String("namespace", "whatsmeow"), zap.String("module", module)),
	}
}

func (l *zapLogger) Errorf(msg string, args ...interface{}) {
	if l.min <= zapcore.ErrorLevel {
		l.sugar.Errorf(msg, args...)
	}
}

func (l *zapLogger) Warnf(msg string, args ...interface{}) {
	if l.min <= zapcore.WarnLevel {
		l.sugar.Warnf(msg, args...)
	}
}

func (l *zapLogger) Infof(msg string, args ...interface{}) {
	if l.min <= zapcore.InfoLevel {
		l.sugar.Infof(msg, args...)
	}
}

func (l *zapLogger) Debugf(msg string, args ...interface{}) {
	if l.min <= zapcore.DebugLevel {
		l.sugar.Debugf(msg, args...)
	}
}

func (l *zapLogger) Sub(module string) waLog.Logger {
	sub := fmt.Sprintf("%s/%s", l.module, module)
	return &zapLogger{
		module: sub,
		min:    l.min,
		sugar:  zap.S().With(zap.String("namespace", "whatsmeow"), zap.String("module", sub)),
	}
}

func eventName(evt interface{}) string {
	return fmt.Sprintf("%T", evt)
}
