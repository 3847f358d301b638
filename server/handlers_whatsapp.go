package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/wa-tender/backend/db"
	"github.com/onnwee/wa-tender/backend/telemetry"
)

// HandleStatus returns the current session status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

// HandleQRCode returns the pending login code. Once the session is ready there
// is nothing to scan and a message says so; otherwise 404.
func (h *Handlers) HandleQRCode(w http.ResponseWriter, r *http.Request) {
	if code, ok := h.ctrl.QR().Get(); ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"qrCode":   code.Payload,
			"issuedAt": code.IssuedAt,
		})
		return
	}
	if h.ctrl.Status().IsReady {
		writeJSON(w, http.StatusOK, map[string]string{"message": "WhatsApp is already connected"})
		return
	}
	writeError(w, http.StatusNotFound, "QR code not available")
}

// HandleRestart tears the session down and schedules a fresh start. It does
// not wait for the new session.
func (h *Handlers) HandleRestart(w http.ResponseWriter, r *http.Request) {
	telemetry.LoggerWithCorr(r.Context()).Info("whatsapp restart requested",
		slog.String("component", "http"), slog.String("remote_addr", clientIP(r)))
	h.ctrl.Restart(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"message": "WhatsApp client restart initiated"})
}

// HandleMessages lists stored messages, newest first.
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	page := parseIntQuery(r, "page", 1)
	limit := parseIntQuery(r, "limit", db.DefaultPageLimit)
	res, err := h.lister.ListMessages(r.Context(), page, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list messages", slog.String("component", "http"), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleContacts lists stored contacts by name.
func (h *Handlers) HandleContacts(w http.ResponseWriter, r *http.Request) {
	page := parseIntQuery(r, "page", 1)
	limit := parseIntQuery(r, "limit", db.DefaultPageLimit)
	res, err := h.lister.ListContacts(r.Context(), page, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list contacts", slog.String("component", "http"), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleStats returns row counts alongside the session status.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.lister.Stats(r.Context())
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("stats", slog.String("component", "http"), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": stats.Messages,
		"contacts": stats.Contacts,
		"session":  h.ctrl.Status(),
	})
}
