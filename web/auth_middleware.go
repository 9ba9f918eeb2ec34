package web

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// authMiddleware enforces HTTP basic auth against a configured username and
// bcrypt password hash. With auth disabled it passes requests through.
func (h *RouteHandler) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	if !h.authEnabled {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.username)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="crawlsched"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
