package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrMalformed is returned by Dispatch for bodies that are not a Request.
var ErrMalformed = errors.New("bridge: malformed request")

// Handler serves one action: payload in, response body out. A nil body
// means "no meaningful response".
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Router dispatches requests to the handler registered for their action.
// Safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	handlers map[Action]Handler
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a Router with no handlers.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		handlers: make(map[Action]Handler),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handle registers h for action, replacing any previous handler.
func (r *Router) Handle(action Action, h Handler) {
	r.mu.Lock()
	r.handlers[action] = h
	r.mu.Unlock()
}

// Call invokes the handler for action.
func (r *Router) Call(ctx context.Context, action Action, payload []byte) ([]byte, error) {
	r.mu.RLock()
	h := r.handlers[action]
	r.mu.RUnlock()

	if h == nil {
		return nil, &ErrNoListener{Action: action}
	}
	r.logger.DebugContext(ctx, "bridge: dispatch", "action", action)
	return h(ctx, payload)
}

// Dispatch decodes a Request envelope and calls its handler with the raw
// body as payload.
func (r *Router) Dispatch(ctx context.Context, body []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r.Call(ctx, req.Action, body)
}
