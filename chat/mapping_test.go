package chat

import (
	"testing"
	"time"

	"github.com/onnwee/wa-tender/backend/db"
	"github.com/onnwee/wa-tender/backend/session"
)

func TestMessageFromEventDefaults(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := MessageFromEvent(&session.Message{ID: "m1", From: "1555"}, now)
	want := db.Message{ID: "m1", From: "1555", To: "1555", Body: "", Type: "text", Timestamp: now, Status: db.StatusDelivered}
	if got != want {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestMessageFromEventSwapsOwnMessages(t *testing.T) {
	ts := time.Unix(1000, 0)
	got := MessageFromEvent(&session.Message{ID: "o1", From: "me", To: "them", Type: "image", Timestamp: ts, FromMe: true}, time.Now())
	if got.From != "them" || got.To != "me" || got.Status != db.StatusSent || got.Type != "image" {
		t.Fatalf("got %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v", got.Timestamp)
	}
}

func TestContactNameFallback(t *testing.T) {
	tests := []struct {
		name string
		in   session.Contact
		want string
	}{
		{"display name", session.Contact{Name: "Alice", PushName: "Al", ShortName: "A"}, "Alice"},
		{"push name", session.Contact{PushName: "Al", ShortName: "A"}, "Al"},
		{"short name", session.Contact{ShortName: "A"}, "A"},
		{"blank names", session.Contact{Name: "  "}, "Unknown"},
		{"nothing", session.Contact{}, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContactFromEvent(&tt.in).Name; got != tt.want {
				t.Errorf("name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsStatusBroadcast(t *testing.T) {
	if !IsStatusBroadcast("status@broadcast") || !IsStatusBroadcast("123-status@broadcast") {
		t.Error("expected status broadcast match")
	}
	if IsStatusBroadcast("1555@s.whatsapp.net") {
		t.Error("unexpected match")
	}
}
