// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"

	"github.com/onnwee/wa-tender/backend/db"
	"github.com/onnwee/wa-tender/backend/session"
)

// Controller is the session surface the API drives. *session.Supervisor
// implements it.
type Controller interface {
	Status() session.Status
	QR() *session.QRCache
	Restart(ctx context.Context)
}

// Lister reads persisted chat history. *db.Store implements it.
type Lister interface {
	ListMessages(ctx context.Context, page, limit int) (db.MessagePage, error)
	ListContacts(ctx context.Context, page, limit int) (db.ContactPage, error)
	Stats(ctx context.Context) (db.Stats, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db     *sql.DB
	ctrl   Controller
	lister Lister
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(db *sql.DB, ctrl Controller, lister Lister) *Handlers {
	return &Handlers{db: db, ctrl: ctrl, lister: lister}
}
