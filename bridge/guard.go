package bridge

import (
	"errors"
	"net/http"
)

var errCrossOrigin = errors.New("bridge: browser-originated requests are refused")

// rejectBrowserOrigin refuses requests that carry an Origin header. The
// editor never sends one; a web page calling the loopback port does.
func rejectBrowserOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") != "" {
			writeError(w, http.StatusForbidden, errCrossOrigin)
			return
		}
		next.ServeHTTP(w, r)
	})
}
