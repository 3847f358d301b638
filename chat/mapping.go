package chat

import (
	"strings"
	"time"

	"github.com/onnwee/wa-tender/backend/db"
	"github.com/onnwee/wa-tender/backend/session"
)

// StatusBroadcast is the pseudo-contact that carries network-wide status updates.
const StatusBroadcast = "status@broadcast"

// UnknownContactName is stored when a contact has no usable name.
const UnknownContactName = "Unknown"

// IsStatusBroadcast reports whether addr belongs to the status pseudo-contact.
func IsStatusBroadcast(addr string) bool {
	return strings.Contains(addr, StatusBroadcast)
}

// MessageFromEvent derives the stored row for m. Self-originated messages have
// from/to swapped and start as sent; everything else starts as delivered.
func MessageFromEvent(m *session.Message, now time.Time) db.Message {
	out := db.Message{
		ID:        m.ID,
		From:      m.From,
		To:        m.To,
		Body:      m.Body,
		Type:      m.Type,
		Timestamp: m.Timestamp,
		Status:    db.StatusDelivered,
	}
	if out.To == "" {
		out.To = m.From
	}
	if out.Type == "" {
		out.Type = "text"
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = now
	}
	out.Timestamp = out.Timestamp.UTC()
	if m.FromMe {
		out.From, out.To = out.To, out.From
		out.Status = db.StatusSent
	}
	return out
}

// ContactFromEvent derives the stored contact for a sender. The name falls
// back from display name to push name to short name to "Unknown".
func ContactFromEvent(c *session.Contact) db.Contact {
	name := UnknownContactName
	for _, candidate := range []string{c.Name, c.PushName, c.ShortName} {
		if strings.TrimSpace(candidate) != "" {
			name = candidate
			break
		}
	}
	return db.Contact{
		ID:         c.ID,
		Name:       name,
		Number:     c.Number,
		IsBusiness: c.IsBusiness,
	}
}

func ackStatus(level session.AckLevel) (db.MessageStatus, bool) {
	switch level {
	case session.AckDelivered:
		return db.StatusDelivered, true
	case session.AckRead:
		return db.StatusRead, true
	}
	return "", false
}
