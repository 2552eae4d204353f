package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// maxRequestBody caps inbound message size. Requests are tiny envelopes.
const maxRequestBody = 64 << 10

// TabFunc reports the page the daemon is attached to.
type TabFunc func(ctx context.Context) (Tab, error)

// HealthFunc reports component details merged into GET /health.
type HealthFunc func(ctx context.Context) map[string]any

// NewHandler returns the HTTP surface of the Bridge:
//
//	POST /api/message  Request envelope, dispatched through router
//	GET  /api/tab      current page
//	GET  /health       {"status":"ok"} plus whatever health reports
func NewHandler(router *Router, tab TabFunc, health HealthFunc, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID(logger))
	r.Use(rejectBrowserOrigin)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		if health != nil {
			for k, v := range health(r.Context()) {
				body[k] = v
			}
		}
		body["status"] = "ok"
		writeJSON(w, http.StatusOK, body)
	})

	r.Get("/api/tab", func(w http.ResponseWriter, r *http.Request) {
		if tab == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no page attached"})
			return
		}
		t, err := tab(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})

	r.Post("/api/message", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}

		resp, err := router.Dispatch(r.Context(), body)
		var nl *ErrNoListener
		switch {
		case errors.Is(err, ErrMalformed):
			writeError(w, http.StatusBadRequest, err)
			return
		case errors.As(err, &nl):
			writeError(w, http.StatusNotFound, err)
			return
		case err != nil:
			logger.WarnContext(r.Context(), "bridge: handler failed", "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(resp)
	})

	return r
}

// requestID tags every request with a UUIDv7 and logs it.
func requestID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.Must(uuid.NewV7()).String()
			}
			w.Header().Set("X-Request-Id", id)
			logger.DebugContext(r.Context(), "bridge: request",
				"method", r.Method, "path", r.URL.Path, "request_id", id)
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
