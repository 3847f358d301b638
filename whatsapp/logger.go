package whatsapp

import (
	"context"
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogAdapter routes whatsmeow's printf-style logging into slog.
type slogAdapter struct {
	l *slog.Logger
}

// NewLogger returns a whatsmeow logger writing to l under the given module name.
func NewLogger(l *slog.Logger, module string) waLog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogAdapter{l: l.With(slog.String("component", "whatsapp"), slog.String("module", module))}
}

func (a *slogAdapter) Errorf(msg string, args ...interface{}) {
	a.l.Error(fmt.Sprintf(msg, args...))
}

func (a *slogAdapter) Warnf(msg string, args ...interface{}) {
	a.l.Warn(fmt.Sprintf(msg, args...))
}

func (a *slogAdapter) Infof(msg string, args ...interface{}) {
	a.l.Info(fmt.Sprintf(msg, args...))
}

// Debugf skips formatting unless debug logging is on; the client logs every frame here.
func (a *slogAdapter) Debugf(msg string, args ...interface{}) {
	if !a.l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	a.l.Debug(fmt.Sprintf(msg, args...))
}

func (a *slogAdapter) Sub(module string) waLog.Logger {
	return &slogAdapter{l: a.l.With(slog.String("sub", module))}
}
