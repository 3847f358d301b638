// Package whatsapp adapts the whatsmeow multi-device client to session.Client.
// Credentials live in a SQLite store named after the client id, so a process
// restart reuses the paired device instead of asking for a new scan.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	_ "modernc.org/sqlite" // credential store driver

	"github.com/onnwee/wa-tender/backend/session"
)

// Factory allocates whatsmeow-backed clients.
type Factory struct {
	Logger *slog.Logger
}

// NewFactory returns a Factory logging to slog.Default when logger is nil.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{Logger: logger}
}

// StorePath is the credential database for a client id.
func StorePath(opts session.ClientOptions) string {
	return filepath.Join(opts.AuthDir, opts.ClientID+".db")
}

// New opens (creating if needed) the credential store and builds a client
// for its first device. It does not touch the network.
func (f *Factory) New(ctx context.Context, opts session.ClientOptions) (session.Client, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if err := os.MkdirAll(opts.AuthDir, 0o700); err != nil {
		return nil, fmt.Errorf("create auth dir: %w", err)
	}
	path := StorePath(opts)
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	// whatsmeow serializes its own writes; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	logger := f.Logger.With(slog.String("client_id", opts.ClientID))
	container := sqlstore.NewWithDB(db, "sqlite", NewLogger(logger, "store"))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade credential store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	cli := whatsmeow.NewClient(device, NewLogger(logger, "client"))
	// Reconnects are the supervisor's decision.
	cli.EnableAutoReconnect = false

	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Client{
		cli:    cli,
		db:     db,
		log:    logger.With(slog.String("component", "whatsapp")),
		ctx:    lifetime,
		cancel: cancel,
	}
	c.handlerID = cli.AddEventHandler(c.onEvent)
	return c, nil
}

// Client is one whatsmeow connection plus its credential store.
type Client struct {
	cli       *whatsmeow.Client
	db        *sql.DB
	log       *slog.Logger
	handlerID uint32

	// ctx lives until Destroy; it scopes the QR channel.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	handlers []func(session.Event)
	closed   bool
}

// Subscribe registers fn for every translated event.
func (c *Client) Subscribe(fn func(session.Event)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

// Connect starts the handshake. Unpaired devices receive login codes through
// qr events; paired devices go straight to ready.
func (c *Client) Connect(ctx context.Context) error {
	if c.cli.Store.ID == nil {
		qrs, err := c.cli.GetQRChannel(c.ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		c.wg.Add(1)
		go c.forwardQR(qrs)
	}
	if err := c.cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *Client) forwardQR(qrs <-chan whatsmeow.QRChannelItem) {
	defer c.wg.Done()
	for item := range qrs {
		switch {
		case item.Event == whatsmeow.QRChannelEventCode:
			c.emit(session.Event{Kind: session.EventQR, QRCode: item.Code})
		case item.Event == whatsmeow.QRChannelSuccess.Event:
			c.emit(session.Event{Kind: session.EventAuthenticated})
		case item.Event == whatsmeow.QRChannelTimeout.Event:
			c.emit(session.Event{Kind: session.EventQRTimeout, Reason: "qr codes expired"})
		case item.Event == whatsmeow.QRChannelEventError:
			c.emit(session.Event{Kind: session.EventDisconnected, Reason: fmt.Sprintf("pairing error: %v", item.Error)})
		case strings.HasPrefix(item.Event, "err-"):
			c.emit(session.Event{Kind: session.EventAuthFailure, Reason: item.Event})
		}
	}
}

// Destroy disconnects and closes the credential store. Safe to call twice.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cli.RemoveEventHandler(c.handlerID)
	c.cancel()
	c.cli.Disconnect()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for qr forwarder: %w", ctx.Err())
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close credential store: %w", err)
	}
	return nil
}

func (c *Client) onEvent(evt any) {
	ev, ok := translate(evt, self{jid: c.cli.Store.ID, pushName: c.cli.Store.PushName})
	if !ok {
		return
	}
	c.emit(ev)
}

func (c *Client) emit(ev session.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	hs := append([]func(session.Event){}, c.handlers...)
	c.mu.Unlock()
	c.log.Debug("whatsapp event", slog.String("kind", string(ev.Kind)))
	for _, h := range hs {
		h(ev)
	}
}
