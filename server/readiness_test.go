package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/wa-tender/backend/db"
	"github.com/onnwee/wa-tender/backend/session"
)

func TestReadyz(t *testing.T) {
	tests := []struct {
		state      session.State
		wantStatus int
		wantCheck  string
	}{
		{session.StateReady, http.StatusOK, ""},
		{session.StateAwaitingScan, http.StatusOK, ""},
		{session.StateIdle, http.StatusServiceUnavailable, "session"},
		{session.StateInitializing, http.StatusServiceUnavailable, "session"},
		{session.StateDisconnected, http.StatusServiceUnavailable, "session"},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			h, _ := newTestMux(t, newFakeController(tt.state))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d, body=%s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if tt.wantCheck == "" {
				if resp["status"] != "ready" {
					t.Fatalf("expected status=ready, got %q", resp["status"])
				}
				return
			}
			if resp["status"] != "not_ready" || resp["failed_check"] != tt.wantCheck {
				t.Fatalf("expected not_ready/%s, got %v", tt.wantCheck, resp)
			}
		})
	}
}

func TestReadyzDatabaseFirst(t *testing.T) {
	database := newTestDB(t)
	h := NewMux(t.Context(), database, newFakeController(session.StateDisconnected), db.NewStore(database))
	database.Close()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["failed_check"] != "database" {
		t.Fatalf("expected failed_check=database, got %q", resp["failed_check"])
	}
}
