package handlers

import (
	"net/http"
	"strings"
)

// SecurityHeaders sets baseline security headers for all responses.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Cross-Origin-Resource-Policy", "same-origin")
		if isPrivatePath(r.URL.Path) {
			headers.Set("Cache-Control", "no-store")
		}

		next.ServeHTTP(w, r)
	})
}

// isPrivatePath reports whether responses may carry order or payment data.
func isPrivatePath(path string) bool {
	for _, prefix := range []string{"/api/", "/admin/", "/webhooks/"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
