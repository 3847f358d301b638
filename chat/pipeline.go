package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/wa-tender/backend/db"
	"github.com/onnwee/wa-tender/backend/session"
	"github.com/onnwee/wa-tender/backend/telemetry"
)

const defaultSinkTimeout = 5 * time.Second

// Controller is the part of the session supervisor the pipeline drives.
type Controller interface {
	MarkAwaitingScan(ctx context.Context, payload string) (session.QRCode, bool)
	MarkReady(ctx context.Context, id session.Identity)
	MarkDisconnected(ctx context.Context, cause error)
	ScheduleRestart(ctx context.Context, reason string)
}

// Persister is the write side of the persistence gateway.
type Persister interface {
	UpsertMessage(ctx context.Context, m db.Message) error
	UpsertContact(ctx context.Context, c db.Contact) error
	UpdateMessageStatus(ctx context.Context, id string, status db.MessageStatus) (bool, error)
}

// Pipeline maps session events to side effects. Handle is called serially by
// the supervisor; sinks run in the background.
type Pipeline struct {
	ctrl  Controller
	store Persister
	sinks []Sink

	// SinkTimeout bounds one sink call.
	SinkTimeout time.Duration
	now         func() time.Time
	wg          sync.WaitGroup

	// sinkMu orders sink calls; a call older than one already applied is skipped.
	sinkMu  sync.Mutex
	seq     uint64
	applied map[int]uint64
}

// NewPipeline wires a pipeline. store may be nil, in which case messages are
// only logged.
func NewPipeline(ctrl Controller, store Persister, sinks ...Sink) *Pipeline {
	return &Pipeline{
		ctrl:        ctrl,
		store:       store,
		sinks:       sinks,
		SinkTimeout: defaultSinkTimeout,
		now:         time.Now,
		applied:     make(map[int]uint64),
	}
}

// Handle performs the side effect for one event.
func (p *Pipeline) Handle(ctx context.Context, ev session.Event) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "chat"))

	switch ev.Kind {
	case session.EventQR:
		code, ok := p.ctrl.MarkAwaitingScan(ctx, ev.QRCode)
		if !ok {
			return
		}
		telemetry.IncQRIssued()
		logger.Info("qr code received")
		p.notify(ctx, func(ctx context.Context, s Sink) error { return s.Show(ctx, code) })

	case session.EventReady:
		var id session.Identity
		if ev.Identity != nil {
			id = *ev.Identity
		}
		p.ctrl.MarkReady(ctx, id)
		logger.Info("whatsapp client is ready", slog.String("user", id.DisplayName), slog.String("phone", id.PhoneNumber))
		p.notify(ctx, func(ctx context.Context, s Sink) error { return s.Clear(ctx) })

	case session.EventAuthenticated:
		logger.Info("whatsapp client authenticated")

	case session.EventAuthFailure:
		logger.Error("whatsapp authentication failed", slog.String("reason", ev.Reason))
		p.ctrl.MarkDisconnected(ctx, fmt.Errorf("%w: %s", session.ErrAuthFailure, ev.Reason))

	case session.EventDisconnected:
		logger.Warn("whatsapp client disconnected", slog.String("reason", ev.Reason))
		p.ctrl.MarkDisconnected(ctx, fmt.Errorf("%w: %s", session.ErrTransportDisconnect, ev.Reason))
		p.ctrl.ScheduleRestart(ctx, "disconnected")

	case session.EventQRTimeout:
		logger.Warn("qr codes expired without a scan", slog.String("reason", ev.Reason))
		p.ctrl.MarkDisconnected(ctx, fmt.Errorf("%w: qr timeout", session.ErrTransportDisconnect))
		p.notify(ctx, func(ctx context.Context, s Sink) error { return s.Clear(ctx) })
		p.ctrl.ScheduleRestart(ctx, "qr_timeout")

	case session.EventMessage:
		// Status posts carry the poster as sender; none of it is stored.
		if ev.Message == nil || IsStatusBroadcast(ev.Message.From) {
			return
		}
		p.saveMessage(ctx, logger, ev.Message)
		if ev.Message.Sender != nil {
			p.saveContact(ctx, logger, ev.Message.Sender)
		}

	case session.EventMessageCreate:
		// Without the from-me flag this is the echo of an inbound message.
		if ev.Message == nil || !ev.Message.FromMe {
			return
		}
		p.saveMessage(ctx, logger, ev.Message)

	case session.EventMessageAck:
		p.applyAck(ctx, logger, ev.Ack)

	default:
		logger.Debug("ignoring event", slog.String("kind", string(ev.Kind)))
	}
}

func (p *Pipeline) saveMessage(ctx context.Context, logger *slog.Logger, m *session.Message) {
	if IsStatusBroadcast(m.From) {
		return
	}
	if p.store == nil {
		logger.Info("message received", slog.String("message_id", m.ID))
		return
	}
	row := MessageFromEvent(m, p.now())
	if err := p.store.UpsertMessage(ctx, row); err != nil {
		logger.Error("error saving message", slog.String("message_id", m.ID), slog.Any("err", err))
	}
}

func (p *Pipeline) saveContact(ctx context.Context, logger *slog.Logger, c *session.Contact) {
	if IsStatusBroadcast(c.ID) || p.store == nil {
		return
	}
	if err := p.store.UpsertContact(ctx, ContactFromEvent(c)); err != nil {
		logger.Error("error saving contact", slog.String("contact_id", c.ID), slog.Any("err", err))
	}
}

func (p *Pipeline) applyAck(ctx context.Context, logger *slog.Logger, ack *session.Ack) {
	if ack == nil || p.store == nil {
		return
	}
	status, ok := ackStatus(ack.Level)
	if !ok {
		return
	}
	for _, id := range ack.MessageIDs {
		if _, err := p.store.UpdateMessageStatus(ctx, id, status); err != nil {
			logger.Error("error updating message status", slog.String("message_id", id), slog.Any("err", err))
		}
	}
}

// notify runs fn against every sink off the event path.
func (p *Pipeline) notify(ctx context.Context, fn func(context.Context, Sink) error) {
	if len(p.sinks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	p.sinkMu.Lock()
	p.seq++
	seq := p.seq
	p.sinkMu.Unlock()
	for i, s := range p.sinks {
		p.wg.Add(1)
		go func(i int, s Sink) {
			defer p.wg.Done()
			p.sinkMu.Lock()
			defer p.sinkMu.Unlock()
			if p.applied[i] > seq {
				return
			}
			p.applied[i] = seq
			sctx, cancel := context.WithTimeout(ctx, p.SinkTimeout)
			defer cancel()
			if err := fn(sctx, s); err != nil {
				telemetry.LoggerWithCorr(ctx).Warn("qr sink failed", slog.String("sink", s.Name()), slog.Any("err", err), slog.String("component", "chat"))
			}
		}(i, s)
	}
}

// Wait blocks until in-flight sink calls finish or ctx ends.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
