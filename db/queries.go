package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func newPagination(page, limit int, total int64) Pagination {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// normalizePage clamps page to >= 1 and limit to [1, MaxPageLimit].
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// MessageRow is a stored message joined with the sender's contact name.
type MessageRow struct {
	MessageID   string    `json:"message_id"`
	FromNumber  string    `json:"from_number"`
	ToNumber    string    `json:"to_number"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	ContactName *string   `json:"contact_name"`
}

// MessagePage is one page of messages, newest first.
type MessagePage struct {
	Messages   []MessageRow `json:"messages"`
	Pagination Pagination   `json:"pagination"`
}

// ContactRow is a stored contact.
type ContactRow struct {
	ContactID  string `json:"contact_id"`
	Name       string `json:"name"`
	Number     string `json:"number"`
	IsBusiness bool   `json:"is_business"`
}

// ContactPage is one page of contacts ordered by name then number.
type ContactPage struct {
	Contacts   []ContactRow `json:"contacts"`
	Pagination Pagination   `json:"pagination"`
}

// Stats are row counts of the owned tables.
type Stats struct {
	Messages int64 `json:"messages"`
	Contacts int64 `json:"contacts"`
}

// ListMessages returns page (1-based) of messages, newest first.
func (s *Store) ListMessages(ctx context.Context, page, limit int) (MessagePage, error) {
	page, limit = normalizePage(page, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT wm.message_id, wm.from_number, wm.to_number, wm.message, wm.message_type,
			wm.timestamp, wm.status, wc.name
		FROM whatsapp_messages wm
		LEFT JOIN whatsapp_contacts wc ON wc.contact_id = wm.from_number
		ORDER BY wm.timestamp DESC, wm.message_id
		LIMIT $1 OFFSET $2`, limit, (page-1)*limit)
	if err != nil {
		return MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := MessagePage{Messages: []MessageRow{}}
	for rows.Next() {
		var (
			r    MessageRow
			name sql.NullString
		)
		if err := rows.Scan(&r.MessageID, &r.FromNumber, &r.ToNumber, &r.Message, &r.MessageType, &r.Timestamp, &r.Status, &name); err != nil {
			return MessagePage{}, fmt.Errorf("scan message: %w", err)
		}
		if name.Valid {
			r.ContactName = &name.String
		}
		out.Messages = append(out.Messages, r)
	}
	if err := rows.Err(); err != nil {
		return MessagePage{}, fmt.Errorf("list messages: %w", err)
	}

	total, err := s.count(ctx, messagesTable)
	if err != nil {
		return MessagePage{}, err
	}
	out.Pagination = newPagination(page, limit, total)
	return out, nil
}

// ListContacts returns page (1-based) of contacts ordered by name, number.
func (s *Store) ListContacts(ctx context.Context, page, limit int) (ContactPage, error) {
	page, limit = normalizePage(page, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT contact_id, name, number, is_business
		FROM whatsapp_contacts
		ORDER BY name, number
		LIMIT $1 OFFSET $2`, limit, (page-1)*limit)
	if err != nil {
		return ContactPage{}, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	out := ContactPage{Contacts: []ContactRow{}}
	for rows.Next() {
		var r ContactRow
		if err := rows.Scan(&r.ContactID, &r.Name, &r.Number, &r.IsBusiness); err != nil {
			return ContactPage{}, fmt.Errorf("scan contact: %w", err)
		}
		out.Contacts = append(out.Contacts, r)
	}
	if err := rows.Err(); err != nil {
		return ContactPage{}, fmt.Errorf("list contacts: %w", err)
	}

	total, err := s.count(ctx, contactsTable)
	if err != nil {
		return ContactPage{}, err
	}
	out.Pagination = newPagination(page, limit, total)
	return out, nil
}

// Stats returns table row counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Messages, err = s.count(ctx, messagesTable); err != nil {
		return Stats{}, err
	}
	if st.Contacts, err = s.count(ctx, contactsTable); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// count is only called with the package's table constants.
func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
