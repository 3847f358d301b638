package chat

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/onnwee/wa-tender/backend/session"
)

// Sink mirrors the current login code somewhere an operator can see it.
// Sinks are best effort; errors are logged and never affect the session.
type Sink interface {
	Name() string
	Show(ctx context.Context, code session.QRCode) error
	Clear(ctx context.Context) error
}

// FileSink writes the raw payload to a file, replacing it atomically.
type FileSink struct {
	Path string
}

func (s FileSink) Name() string { return "file" }

func (s FileSink) Show(ctx context.Context, code session.QRCode) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create qr dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".qrcode-*")
	if err != nil {
		return fmt.Errorf("create temp qr file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename
	if _, err := tmp.WriteString(code.Payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write qr file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close qr file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace qr file: %w", err)
	}
	return nil
}

// Clear removes the file so a stale code is never scanned.
func (s FileSink) Clear(ctx context.Context) error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove qr file: %w", err)
	}
	return nil
}

// LogSink logs the payload so it can be rendered from the process output.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Show(ctx context.Context, code session.QRCode) error {
	s.logger().Info("qr code received, scan it with the WhatsApp app",
		slog.String("qr", code.Payload),
		slog.Time("issued_at", code.IssuedAt),
		slog.String("component", "chat"))
	return nil
}

func (s LogSink) Clear(ctx context.Context) error { return nil }

func (s LogSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
