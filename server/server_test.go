package server

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/onnwee/wa-tender/backend/db"
	"github.com/onnwee/wa-tender/backend/session"
	"github.com/onnwee/wa-tender/backend/testutil"
)

// fakeController serves a fixed status and counts restarts.
type fakeController struct {
	mu       sync.Mutex
	status   session.Status
	qr       *session.QRCache
	restarts int
}

func newFakeController(state session.State) *fakeController {
	return &fakeController{
		status: session.Status{State: state, IsReady: state == session.StateReady},
		qr:     session.NewQRCache(),
	}
}

func (c *fakeController) Status() session.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	st.HasQRCode = c.qr.Has()
	return st
}

func (c *fakeController) QR() *session.QRCache { return c.qr }

func (c *fakeController) Restart(ctx context.Context) {
	c.mu.Lock()
	c.restarts++
	c.mu.Unlock()
}

func (c *fakeController) restartCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return testutil.SetupSQLiteDB(t)
}

// newTestMux wires a mux over a fresh SQLite store.
func newTestMux(t *testing.T, ctrl Controller) (http.Handler, *db.Store) {
	t.Helper()
	database := newTestDB(t)
	store := db.NewStore(database)
	return NewMux(t.Context(), database, ctrl, store), store
}

func TestHealthzOK(t *testing.T) {
	h, _ := newTestMux(t, newFakeController(session.StateIdle))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
}

func TestHealthzDatabaseClosed(t *testing.T) {
	database := newTestDB(t)
	h := NewMux(t.Context(), database, newFakeController(session.StateReady), db.NewStore(database))
	database.Close()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	h, _ := newTestMux(t, newFakeController(session.StateIdle))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, h, "127.0.0.1:0") }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}
