package whatsapp

import (
	"log/slog"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/onnwee/wa-tender/backend/session"
)

var me = self{
	jid:      &types.JID{User: "15550001", Server: types.DefaultUserServer, Device: 3},
	pushName: "Support Desk",
}

func TestTranslateConnected(t *testing.T) {
	ev, ok := translate(&events.Connected{}, me)
	if !ok || ev.Kind != session.EventReady {
		t.Fatalf("got %+v, %v", ev, ok)
	}
	if ev.Identity == nil || ev.Identity.PhoneNumber != "15550001" || ev.Identity.DisplayName != "Support Desk" {
		t.Fatalf("identity = %+v", ev.Identity)
	}
}

func TestTranslateLifecycle(t *testing.T) {
	tests := []struct {
		name string
		evt  any
		want session.EventKind
	}{
		{"pair success", &events.PairSuccess{}, session.EventAuthenticated},
		{"logged out", &events.LoggedOut{Reason: events.ConnectFailureLoggedOut}, session.EventAuthFailure},
		{"connect failure logged out", &events.ConnectFailure{Reason: events.ConnectFailureLoggedOut}, session.EventAuthFailure},
		{"connect failure transient", &events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable}, session.EventDisconnected},
		{"temporary ban", &events.TemporaryBan{Code: events.TempBanSentToTooManyPeople, Expire: time.Hour}, session.EventAuthFailure},
		{"disconnected", &events.Disconnected{}, session.EventDisconnected},
		{"stream replaced", &events.StreamReplaced{}, session.EventDisconnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := translate(tt.evt, me)
			if !ok {
				t.Fatal("event dropped")
			}
			if ev.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", ev.Kind, tt.want)
			}
		})
	}
}

func TestTranslateIgnoresUnrelated(t *testing.T) {
	if _, ok := translate(&events.KeepAliveTimeout{}, me); ok {
		t.Fatal("keepalive should be ignored")
	}
	if _, ok := translate(&events.Receipt{Type: types.ReceiptTypeRetry}, me); ok {
		t.Fatal("retry receipts should be ignored")
	}
}

func TestTranslateInboundMessage(t *testing.T) {
	sender := types.JID{User: "15551234", Server: types.DefaultUserServer, Device: 2}
	ts := time.Unix(1000, 0)
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: sender.ToNonAD(), Sender: sender},
			ID:            "m1",
			Type:          "text",
			PushName:      "Alice",
			Timestamp:     ts,
		},
		Message: &waE2E.Message{Conversation: proto.String("hi")},
	}

	ev, ok := translate(evt, me)
	if !ok || ev.Kind != session.EventMessage {
		t.Fatalf("got %+v, %v", ev, ok)
	}
	m := ev.Message
	if m.ID != "m1" || m.Body != "hi" || m.Type != "text" || m.FromMe || !m.Timestamp.Equal(ts) {
		t.Fatalf("message = %+v", m)
	}
	if m.From != "15551234@s.whatsapp.net" || m.To != "15550001@s.whatsapp.net" {
		t.Fatalf("from/to = %s/%s", m.From, m.To)
	}
	if m.Sender == nil || m.Sender.ID != "15551234@s.whatsapp.net" || m.Sender.Number != "15551234" || m.Sender.PushName != "Alice" {
		t.Fatalf("sender = %+v", m.Sender)
	}
}

func TestTranslateOwnMessage(t *testing.T) {
	chat := types.JID{User: "15559999", Server: types.DefaultUserServer}
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: *me.jid, IsFromMe: true},
			ID:            "out-1",
			Type:          "text",
		},
		Message: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("hello there")}},
	}
	ev, ok := translate(evt, me)
	if !ok || ev.Kind != session.EventMessageCreate {
		t.Fatalf("got %+v, %v", ev, ok)
	}
	m := ev.Message
	if !m.FromMe || m.Body != "hello there" {
		t.Fatalf("message = %+v", m)
	}
	if m.From != "15550001@s.whatsapp.net" || m.To != "15559999@s.whatsapp.net" {
		t.Fatalf("from/to = %s/%s", m.From, m.To)
	}
	if m.Sender != nil {
		t.Fatal("own messages carry no sender contact")
	}
}

func TestTranslateReceipt(t *testing.T) {
	ev, ok := translate(&events.Receipt{Type: types.ReceiptTypeRead, MessageIDs: []types.MessageID{"a", "b"}}, me)
	if !ok || ev.Kind != session.EventMessageAck {
		t.Fatalf("got %+v, %v", ev, ok)
	}
	if ev.Ack.Level != session.AckRead || len(ev.Ack.MessageIDs) != 2 || ev.Ack.MessageIDs[1] != "b" {
		t.Fatalf("ack = %+v", ev.Ack)
	}
	ev, _ = translate(&events.Receipt{Type: types.ReceiptTypeDelivered, MessageIDs: []types.MessageID{"a"}}, me)
	if ev.Ack.Level != session.AckDelivered {
		t.Fatalf("level = %s", ev.Ack.Level)
	}
}

func TestLoggerBridge(t *testing.T) {
	l := NewLogger(slog.Default(), "test")
	l.Infof("connected to %s", "server")
	l.Debugf("frame %d", 1)
	if l.Sub("socket") == nil {
		t.Fatal("Sub returned nil")
	}
}
