package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func unix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

// openSQLite returns a single-connection in-memory database. With one
// connection a write that fails to release it blocks every later call.
func openSQLite(t *testing.T, migrate bool) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if migrate {
		if err := Migrate(context.Background(), db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := openSQLite(t, true)
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestConnectSelectsDriver(t *testing.T) {
	db, err := Connect(Config{DSN: "sqlite::memory:", MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("max open = %d, want 1", got)
	}
	if !IsSQLite("sqlite:file.db") || IsSQLite("postgres://x") {
		t.Error("IsSQLite mismatch")
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := openSQLite(t, true)
	s := NewStore(db)
	ctx := context.Background()

	m := Message{ID: "m1", From: "1555", To: "1999", Body: "hi", Type: "text", Timestamp: unix(1000), Status: StatusDelivered}
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	page, err := s.ListMessages(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 1 || len(page.Messages) != 1 {
		t.Fatalf("expected one row, got total=%d rows=%d", page.Pagination.Total, len(page.Messages))
	}
	got := page.Messages[0]
	if got.MessageID != "m1" || got.Status != "delivered" || got.Message != "hi" || got.FromNumber != "1555" || got.ToNumber != "1999" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if !got.Timestamp.Equal(unix(1000)) {
		t.Errorf("timestamp = %v", got.Timestamp)
	}
}

func TestUpsertMessageMergesLatest(t *testing.T) {
	db := openSQLite(t, true)
	s := NewStore(db)
	ctx := context.Background()

	m := Message{ID: "m2", From: "1555", To: "1999", Body: "draft", Type: "text", Timestamp: unix(1000), Status: StatusSent}
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatal(err)
	}
	m.Body = "edited"
	m.Timestamp = unix(2000)
	m.Status = StatusDelivered
	m.From = "ignored"
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatal(err)
	}

	var body, status, from string
	if err := db.QueryRow(`SELECT message, status, from_number FROM whatsapp_messages WHERE message_id = $1`, "m2").Scan(&body, &status, &from); err != nil {
		t.Fatal(err)
	}
	if body != "edited" || status != "delivered" {
		t.Errorf("merged row = %q/%q", body, status)
	}
	if from != "1555" {
		t.Errorf("from_number rewritten to %q", from)
	}
}

func TestUpsertMessageNeverLowersStatus(t *testing.T) {
	db := openSQLite(t, true)
	s := NewStore(db)
	ctx := context.Background()

	m := Message{ID: "m3", From: "1999", To: "1555", Body: "out", Type: "text", Timestamp: unix(1000), Status: StatusSent}
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateMessageStatus(ctx, "m3", StatusRead); err != nil {
		t.Fatal(err)
	}

	m.Body = "out (edited)"
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatal(err)
	}
	m.Status = StatusDelivered
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatal(err)
	}

	var body, status string
	if err := db.QueryRow(`SELECT message, status FROM whatsapp_messages WHERE message_id = $1`, "m3").Scan(&body, &status); err != nil {
		t.Fatal(err)
	}
	if status != "read" {
		t.Errorf("status = %q, want read", status)
	}
	if body != "out (edited)" {
		t.Errorf("body = %q, other fields must still merge", body)
	}
}

func TestUpsertContactOnlyUpdatesNameAndBusiness(t *testing.T) {
	db := openSQLite(t, true)
	s := NewStore(db)
	ctx := context.Background()

	if err := s.UpsertContact(ctx, Contact{ID: "c1", Name: "Alice", Number: "1555"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertContact(ctx, Contact{ID: "c1", Name: "Alice B", Number: "9999", IsBusiness: true}); err != nil {
		t.Fatal(err)
	}

	page, err := s.ListContacts(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Contacts) != 1 {
		t.Fatalf("expected one contact, got %d", len(page.Contacts))
	}
	c := page.Contacts[0]
	if c.Name != "Alice B" || !c.IsBusiness {
		t.Errorf("name/business not updated: %+v", c)
	}
	if c.Number != "1555" {
		t.Errorf("number must be immutable, got %q", c.Number)
	}
}

func TestUpdateMessageStatusNeverDowngrades(t *testing.T) {
	db := openSQLite(t, true)
	s := NewStore(db)
	ctx := context.Background()

	if err := s.UpsertMessage(ctx, Message{ID: "out", From: "me", To: "1555", Type: "text", Timestamp: unix(10), Status: StatusSent}); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		status  MessageStatus
		changed bool
		want    string
	}{
		{StatusRead, true, "read"},
		{StatusDelivered, false, "read"},
		{StatusRead, false, "read"},
	}
	for _, st := range steps {
		changed, err := s.UpdateMessageStatus(ctx, "out", st.status)
		if err != nil {
			t.Fatalf("update %s: %v", st.status, err)
		}
		if changed != st.changed {
			t.Errorf("update %s changed=%v, want %v", st.status, changed, st.changed)
		}
		var got string
		if err := db.QueryRow(`SELECT status FROM whatsapp_messages WHERE message_id = $1`, "out").Scan(&got); err != nil {
			t.Fatal(err)
		}
		if got != st.want {
			t.Errorf("after %s status = %s, want %s", st.status, got, st.want)
		}
	}

	changed, err := s.UpdateMessageStatus(ctx, "missing", StatusRead)
	if err != nil || changed {
		t.Errorf("unknown id: changed=%v err=%v", changed, err)
	}
}

func TestWriteErrorReleasesConnection(t *testing.T) {
	db := openSQLite(t, false)
	s := NewStore(db)
	ctx := context.Background()

	// No schema yet: every write fails after acquiring the only connection.
	for i := 0; i < 3; i++ {
		err := s.UpsertMessage(ctx, Message{ID: "m1", From: "a", To: "b", Timestamp: unix(1)})
		var werr *WriteError
		if !errors.As(err, &werr) || werr.Table != messagesTable || werr.Key != "m1" {
			t.Fatalf("expected WriteError, got %v", err)
		}
	}

	tctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := Migrate(tctx, db); err != nil {
		t.Fatalf("pool exhausted after failed writes: %v", err)
	}
	if err := s.UpsertContact(tctx, Contact{ID: "c", Name: "n", Number: "1"}); err != nil {
		t.Fatalf("write after recovery: %v", err)
	}
	if inUse := db.Stats().InUse; inUse != 0 {
		t.Errorf("in use = %d after writes", inUse)
	}
}

func TestEmptyIDsRejected(t *testing.T) {
	s := NewStore(openSQLite(t, true))
	if err := s.UpsertMessage(context.Background(), Message{}); err == nil {
		t.Error("expected error for empty message id")
	}
	if err := s.UpsertContact(context.Background(), Contact{}); err == nil {
		t.Error("expected error for empty contact id")
	}
}

func TestListMessagesPaginationAndJoin(t *testing.T) {
	db := openSQLite(t, true)
	s := NewStore(db)
	ctx := context.Background()

	if err := s.UpsertContact(ctx, Contact{ID: "1555@s.whatsapp.net", Name: "Alice", Number: "1555"}); err != nil {
		t.Fatal(err)
	}
	for i, id := range []string{"a", "b", "c"} {
		m := Message{ID: id, From: "1555@s.whatsapp.net", To: "me", Body: id, Type: "text", Timestamp: unix(int64(100 * (i + 1)))}
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpsertMessage(ctx, Message{ID: "d", From: "unknown", To: "me", Type: "text", Timestamp: unix(50)}); err != nil {
		t.Fatal(err)
	}

	page, err := s.ListMessages(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Total != 4 || page.Pagination.Pages != 2 {
		t.Fatalf("pagination = %+v", page.Pagination)
	}
	if len(page.Messages) != 2 || page.Messages[0].MessageID != "c" || page.Messages[1].MessageID != "b" {
		t.Fatalf("expected newest first, got %+v", page.Messages)
	}
	if page.Messages[0].ContactName == nil || *page.Messages[0].ContactName != "Alice" {
		t.Errorf("expected contact name join")
	}

	page, err = s.ListMessages(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 2 || page.Messages[1].MessageID != "d" || page.Messages[1].ContactName != nil {
		t.Fatalf("unexpected page 2: %+v", page.Messages)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Messages != 4 || st.Contacts != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestListContactsOrdering(t *testing.T) {
	s := NewStore(openSQLite(t, true))
	ctx := context.Background()
	for _, c := range []Contact{
		{ID: "3", Name: "Bob", Number: "2"},
		{ID: "1", Name: "Alice", Number: "9"},
		{ID: "2", Name: "Bob", Number: "1"},
	} {
		if err := s.UpsertContact(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	page, err := s.ListContacts(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Page != 1 || page.Pagination.Limit != DefaultPageLimit {
		t.Errorf("defaults not applied: %+v", page.Pagination)
	}
	var ids []string
	for _, c := range page.Contacts {
		ids = append(ids, c.ContactID)
	}
	if len(ids) != 3 || ids[0] != "1" || ids[1] != "2" || ids[2] != "3" {
		t.Errorf("order = %v", ids)
	}
}
