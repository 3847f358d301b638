package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/wa-tender/backend/telemetry"
)

const (
	messagesTable = "whatsapp_messages"
	contactsTable = "whatsapp_contacts"
)

// MessageStatus is the delivery state of a stored message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusError     MessageStatus = "error"
)

// Message is one row of whatsapp_messages.
type Message struct {
	ID        string
	From      string
	To        string
	Body      string
	Type      string
	Timestamp time.Time
	Status    MessageStatus
}

// Contact is one row of whatsapp_contacts.
type Contact struct {
	ID         string
	Name       string
	Number     string
	IsBusiness bool
}

// WriteError is a failed persistence write. It never affects session state.
type WriteError struct {
	Table string
	Key   string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s %q: %v", e.Table, e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Store is the persistence gateway. Every write borrows one pooled connection,
// runs one statement and returns the connection on every path.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open pool. The schema must already be migrated.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const upsertMessageSQL = `INSERT INTO whatsapp_messages
	(message_id, from_number, to_number, message, message_type, timestamp, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (message_id) DO UPDATE SET
		message = EXCLUDED.message,
		status = CASE
			WHEN whatsapp_messages.status = 'sent' THEN EXCLUDED.status
			WHEN whatsapp_messages.status = 'delivered' AND EXCLUDED.status = 'read' THEN EXCLUDED.status
			ELSE whatsapp_messages.status
		END,
		timestamp = EXCLUDED.timestamp,
		updated_at = CURRENT_TIMESTAMP`

// UpsertMessage inserts m or merges body, status and timestamp into the
// existing row with the same id. Status follows the same order as
// UpdateMessageStatus: a redelivered event never lowers it.
func (s *Store) UpsertMessage(ctx context.Context, m Message) error {
	if m.ID == "" {
		return &WriteError{Table: messagesTable, Err: fmt.Errorf("empty message id")}
	}
	if m.Status == "" {
		m.Status = StatusDelivered
	}
	_, err := s.exec(ctx, messagesTable, m.ID, upsertMessageSQL,
		m.ID, m.From, m.To, m.Body, m.Type, m.Timestamp.UTC(), string(m.Status))
	return err
}

const upsertContactSQL = `INSERT INTO whatsapp_contacts
	(contact_id, name, number, is_business)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (contact_id) DO UPDATE SET
		name = EXCLUDED.name,
		is_business = EXCLUDED.is_business,
		updated_at = CURRENT_TIMESTAMP`

// UpsertContact inserts c or updates name and is_business. Number and id are
// never rewritten.
func (s *Store) UpsertContact(ctx context.Context, c Contact) error {
	if c.ID == "" {
		return &WriteError{Table: contactsTable, Err: fmt.Errorf("empty contact id")}
	}
	_, err := s.exec(ctx, contactsTable, c.ID, upsertContactSQL, c.ID, c.Name, c.Number, c.IsBusiness)
	return err
}

// UpdateMessageStatus raises the status of an existing message. Lower or equal
// statuses are ignored, as are unknown ids. It reports whether a row changed.
func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status MessageStatus) (bool, error) {
	var lower []any
	switch status {
	case StatusDelivered:
		lower = []any{string(StatusSent)}
	case StatusRead:
		lower = []any{string(StatusSent), string(StatusDelivered)}
	case StatusError:
		lower = []any{string(StatusSent)}
	default:
		return false, nil
	}
	query := `UPDATE whatsapp_messages SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE message_id = $2 AND status IN (` + placeholders(3, len(lower)) + `)`
	args := append([]any{string(status), id}, lower...)
	n, err := s.exec(ctx, messagesTable, id, query, args...)
	return n > 0, err
}

// exec runs one statement on a dedicated pooled connection.
func (s *Store) exec(ctx context.Context, table, key, query string, args ...any) (int64, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "db", "db.write",
		attribute.String("db.table", table),
		attribute.String("db.key", key))
	defer span.End()

	n, err := s.execConn(ctx, query, args...)
	telemetry.ObservePersist(table, time.Since(start), err)
	s.reportPool()
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, &WriteError{Table: table, Key: key, Err: err}
	}
	telemetry.SetSpanSuccess(span)
	return n, nil
}

func (s *Store) execConn(ctx context.Context, query string, args ...any) (int64, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			slog.Warn("release connection", slog.Any("err", cerr), slog.String("component", "db"))
		}
	}()
	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) reportPool() {
	st := s.db.Stats()
	telemetry.UpdateDatabasePoolMetrics(st.OpenConnections, st.InUse)
}

// placeholders returns "$start, $start+1, ..." for n parameters.
func placeholders(start, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("$%d", start+i)
	}
	return out
}
