// Package server exposes the HTTP control surface for the WhatsApp session:
// status, QR handshake, restart, stored history, health and metrics. Every
// request gets a correlation id for consistent logging.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/wa-tender/backend/telemetry"
)

// NewMux returns the HTTP handler with all routes.
// The provided context bounds the rate limiter's cleanup goroutine.
func NewMux(ctx context.Context, db *sql.DB, ctrl Controller, lister Lister) http.Handler {
	authCfg := loadAuthConfig()
	rateLimiterCfg := loadRateLimiterConfig()
	corsCfg := loadCORSConfig()
	limiter := newIPRateLimiter(ctx, rateLimiterCfg)

	handlers := NewHandlers(db, ctrl, lister)

	// protected routes sit behind admin auth; restart is also rate limited
	protected := func(h http.HandlerFunc) http.Handler { return adminAuth(h, authCfg) }
	limited := func(h http.HandlerFunc) http.Handler {
		return adminAuth(rateLimitMiddleware(h, limiter), authCfg)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", handlers.HandleHealthz)
	mux.HandleFunc("GET /readyz", handlers.HandleReadyz)

	mux.Handle("GET /whatsapp/status", protected(handlers.HandleStatus))
	mux.Handle("GET /whatsapp/qrcode", protected(handlers.HandleQRCode))
	mux.Handle("GET /whatsapp/messages", protected(handlers.HandleMessages))
	mux.Handle("GET /whatsapp/contacts", protected(handlers.HandleContacts))
	mux.Handle("GET /whatsapp/stats", protected(handlers.HandleStats))
	mux.Handle("POST /whatsapp/restart", limited(handlers.HandleRestart))

	// correlation id and tracing around every request
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(rec, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
		if rec.statusCode >= 400 {
			code, msg := telemetry.ErrorStatus(fmt.Sprintf("HTTP %d", rec.statusCode))
			span.SetStatus(code, msg)
		}
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, handler http.Handler, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// WithoutCancel keeps ctx values but lets shutdown run to completion
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.String("component", "http"), slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("component", "http"), slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.String("component", "http"), slog.Any("err", err))
		return err
	}
	return nil
}
