// Package session owns the single long-lived chat-network session: it allocates
// the client handle, guards against concurrent initialization, tracks the
// lifecycle state machine, holds the current QR login code and schedules
// restarts after disconnects.
//
// State machine:
//
//	idle --Initialize--> initializing --qr--> awaiting_scan --ready--> ready
//	initializing --ready--> ready
//	any --disconnected/auth_failure--> disconnected
//	disconnected --(restart delay)--> initializing
//	any --Destroy--> idle
//
// All transitions happen under one mutex. Events from the client are
// dispatched one at a time and tagged with the handle generation that produced
// them, so callbacks from a handle that was destroyed or replaced are ignored.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/wa-tender/backend/telemetry"
)

const (
	defaultRestartDelay       = 5 * time.Second
	defaultManualRestartDelay = 2 * time.Second
	defaultDestroyTimeout     = 15 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	ClientID string
	AuthDir  string
	// RestartDelay is the wait between a disconnect and the next Initialize.
	RestartDelay time.Duration
	// ManualRestartDelay is the wait between Restart's teardown and the next Initialize.
	ManualRestartDelay time.Duration
	// DestroyTimeout bounds a single handle teardown.
	DestroyTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.RestartDelay <= 0 {
		o.RestartDelay = defaultRestartDelay
	}
	if o.ManualRestartDelay <= 0 {
		o.ManualRestartDelay = defaultManualRestartDelay
	}
	if o.DestroyTimeout <= 0 {
		o.DestroyTimeout = defaultDestroyTimeout
	}
}

// Supervisor is the one owner of the session handle for the process.
type Supervisor struct {
	factory Factory
	opts    Options
	qr      *QRCache
	// ctx scopes scheduled restarts and event handling; it outlives any request.
	ctx context.Context

	mu       sync.Mutex
	state    State
	client   Client
	gen      uint64
	runID    string
	identity *Identity
	handler  Handler
	timer    *time.Timer
	closed   bool

	// dispatchMu serializes event handling across transport callbacks.
	dispatchMu sync.Mutex
	snap       atomic.Pointer[snapshot]
	// bg tracks scheduled restarts and background teardowns.
	bg sync.WaitGroup
}

// NewSupervisor returns an idle supervisor. ctx bounds background work
// (scheduled restarts, event handling) and should live as long as the process.
func NewSupervisor(ctx context.Context, factory Factory, opts Options) *Supervisor {
	opts.applyDefaults()
	s := &Supervisor{
		factory: factory,
		opts:    opts,
		qr:      NewQRCache(),
		ctx:     context.WithoutCancel(ctx),
		state:   StateIdle,
	}
	s.publishLocked()
	return s
}

// SetHandler installs the consumer for client events. It must be called
// before the first Initialize.
func (s *Supervisor) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// QR returns the login-code cache owned by the supervisor.
func (s *Supervisor) QR() *QRCache { return s.qr }

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	if snap := s.snap.Load(); snap != nil {
		return snap.state
	}
	return StateIdle
}

// Status projects the current state without taking the supervisor lock.
func (s *Supervisor) Status() Status {
	return project(s.snap.Load(), s.qr.Has())
}

// Initialize allocates a new session handle and begins the handshake. It is a
// silent no-op while a handshake is in flight or the session is ready.
// Allocation or connect failures are returned as *InitializationError and
// leave the supervisor idle; they are not retried.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.inFlight() {
		state := s.state
		s.mu.Unlock()
		slog.Info("whatsapp client already initialized or initializing", slog.String("state", string(state)), slog.String("component", "session"))
		return nil
	}
	stale := s.client
	s.client = nil
	s.gen++
	gen := s.gen
	runID := uuid.NewString()
	s.runID = runID
	s.identity = nil
	s.qr.Clear()
	s.setStateLocked(StateInitializing, "initialize")
	s.mu.Unlock()

	logger := slog.With(slog.String("component", "session"), slog.String("run_id", runID))
	if stale != nil {
		// leftover handle from a disconnect
		s.release(ctx, stale, logger)
	}

	ctx, span := telemetry.StartSpan(ctx, "session", "session.initialize", attribute.String("run_id", runID))
	defer span.End()

	client, err := s.factory.New(ctx, ClientOptions{ClientID: s.opts.ClientID, AuthDir: s.opts.AuthDir})
	if err != nil {
		telemetry.RecordError(span, err)
		return s.failInit(gen, "allocate", err, logger)
	}

	s.mu.Lock()
	if s.gen != gen {
		// Destroyed or shut down while allocating.
		s.mu.Unlock()
		logger.Info("initialization superseded; releasing new handle")
		s.release(ctx, client, logger)
		return nil
	}
	s.client = client
	s.mu.Unlock()

	client.Subscribe(func(ev Event) { s.dispatch(gen, ev) })
	if err := client.Connect(ctx); err != nil {
		telemetry.RecordError(span, err)
		s.mu.Lock()
		if s.gen == gen {
			s.client = nil
		}
		s.mu.Unlock()
		s.release(ctx, client, logger)
		return s.failInit(gen, "connect", err, logger)
	}

	telemetry.IncSessionInit(true)
	telemetry.SetSpanSuccess(span)
	logger.Info("whatsapp client initialization started", slog.String("client_id", s.opts.ClientID))
	return nil
}

func (s *Supervisor) failInit(gen uint64, stage string, err error, logger *slog.Logger) error {
	initErr := &InitializationError{Stage: stage, Err: err}
	s.mu.Lock()
	if s.gen == gen {
		s.setStateLocked(StateIdle, initErr.Error())
	}
	s.mu.Unlock()
	telemetry.IncSessionInit(false)
	logger.Error("error initializing whatsapp client", slog.String("stage", stage), slog.Any("err", err))
	return initErr
}

// Destroy tears down the current handle and resets all cached state to idle.
// Teardown failures are logged and swallowed. A pending restart is cancelled.
func (s *Supervisor) Destroy(ctx context.Context) {
	old := s.detach()
	if old != nil {
		s.release(ctx, old, slog.With(slog.String("component", "session")))
	}
	slog.Info("whatsapp client destroyed", slog.String("component", "session"))
}

// Restart resets the session to idle, tears the old handle down in the
// background and schedules Initialize after the manual restart delay. It
// returns immediately; the outcome is observed through Status.
func (s *Supervisor) Restart(ctx context.Context) {
	old := s.detach()
	if old != nil {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.release(context.WithoutCancel(ctx), old, slog.With(slog.String("component", "session")))
		}()
	}
	s.schedule(s.opts.ManualRestartDelay, "manual")
}

// Shutdown cancels pending restarts, tears down the handle and waits for
// background teardowns. Later Initialize calls return ErrClosed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Destroy(ctx)

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session shutdown: %w", ctx.Err())
	}
}

// MarkAwaitingScan caches a login code issued by the live handle. ok is false
// when the handle has been replaced, in which case nothing is cached.
func (s *Supervisor) MarkAwaitingScan(ctx context.Context, payload string) (code QRCode, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(ctx) {
		return QRCode{}, false
	}
	code = s.qr.Set(payload)
	if s.state == StateInitializing {
		s.setStateLocked(StateAwaitingScan, "qr issued")
	}
	return code, true
}

// MarkReady records a successful login and the identity it belongs to, and
// drops the login code.
func (s *Supervisor) MarkReady(ctx context.Context, id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(ctx) {
		return
	}
	s.identity = &id
	s.qr.Clear()
	s.setStateLocked(StateReady, "ready")
}

// MarkDisconnected moves the session to disconnected and drops any login code,
// which only the lost handle could complete. An authentication failure also
// forgets the identity, since its credentials are no longer valid.
func (s *Supervisor) MarkDisconnected(ctx context.Context, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(ctx) {
		return
	}
	s.qr.Clear()
	if Classify(cause) == ErrorClassFatal {
		s.identity = nil
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	s.setStateLocked(StateDisconnected, reason)
}

// ScheduleRestart arranges Initialize after the restart delay. At most one
// restart is pending; a newer request replaces an older one.
func (s *Supervisor) ScheduleRestart(ctx context.Context, reason string) {
	s.mu.Lock()
	current := s.currentLocked(ctx)
	s.mu.Unlock()
	if !current {
		return
	}
	s.schedule(s.opts.RestartDelay, reason)
}

// RestartPending reports whether a restart timer is armed.
func (s *Supervisor) RestartPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Supervisor) schedule(delay time.Duration, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopTimerLocked()

	s.bg.Add(1)
	var t *time.Timer
	// The callback takes s.mu first, so it observes the assignment below.
	t = time.AfterFunc(delay, func() {
		defer s.bg.Done()
		s.mu.Lock()
		if s.timer == t {
			s.timer = nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		telemetry.IncSessionRestart(reason)
		slog.Info("restarting whatsapp client", slog.String("reason", reason), slog.String("component", "session"))
		if err := s.Initialize(s.ctx); err != nil {
			slog.Error("scheduled initialize failed", slog.String("reason", reason), slog.Any("err", err), slog.String("component", "session"))
		}
	})
	s.timer = t
	slog.Info("whatsapp client restart scheduled", slog.String("reason", reason), slog.Duration("delay", delay), slog.String("component", "session"))
}

func (s *Supervisor) stopTimerLocked() {
	if s.timer == nil {
		return
	}
	if s.timer.Stop() {
		s.bg.Done()
	}
	s.timer = nil
}

// detach drops the handle and every cached value, returning the old handle.
func (s *Supervisor) detach() Client {
	s.mu.Lock()
	s.stopTimerLocked()
	old := s.client
	s.client = nil
	s.gen++
	s.identity = nil
	s.qr.Clear()
	s.setStateLocked(StateIdle, "destroy")
	s.mu.Unlock()
	return old
}

// release destroys a handle. Errors and panics from the transport stop here.
func (s *Supervisor) release(ctx context.Context, c Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.DestroyTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "session", "session.destroy")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic destroying whatsapp client", slog.Any("panic", r))
		}
	}()
	if err := c.Destroy(ctx); err != nil {
		telemetry.RecordError(span, err)
		logger.Error("error destroying whatsapp client", slog.Any("err", err))
	}
}

// dispatch forwards one event to the handler if it came from the live handle.
func (s *Supervisor) dispatch(gen uint64, ev Event) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	live := s.gen == gen && !s.closed
	h := s.handler
	runID := s.runID
	s.mu.Unlock()
	if !live {
		slog.Debug("dropping event from stale session handle", slog.String("kind", string(ev.Kind)), slog.String("component", "session"))
		return
	}
	telemetry.IncEvent(string(ev.Kind))
	if h == nil {
		return
	}
	ctx := telemetry.WithCorrelation(withGeneration(s.ctx, gen), runID)
	h.Handle(ctx, ev)
}

func (s *Supervisor) setStateLocked(next State, reason string) {
	prev := s.state
	s.state = next
	s.publishLocked()
	telemetry.SetSessionState(string(next))
	if prev != next {
		slog.Info("session state changed",
			slog.String("from", string(prev)),
			slog.String("to", string(next)),
			slog.String("reason", reason),
			slog.String("component", "session"))
	}
}

func (s *Supervisor) publishLocked() {
	snap := &snapshot{state: s.state}
	if s.identity != nil {
		id := *s.identity
		snap.identity = &id
	}
	s.snap.Store(snap)
}

type generationKey struct{}

func withGeneration(ctx context.Context, gen uint64) context.Context {
	return context.WithValue(ctx, generationKey{}, gen)
}

// currentLocked reports whether a call made with ctx belongs to the live
// handle. Calls without a generation (outside event dispatch) always apply.
func (s *Supervisor) currentLocked(ctx context.Context) bool {
	if s.closed {
		return false
	}
	gen, ok := ctx.Value(generationKey{}).(uint64)
	return !ok || gen == s.gen
}
