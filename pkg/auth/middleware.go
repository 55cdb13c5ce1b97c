package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenMiddleware enforces a fixed token, sent either in header X-API-Token
// or as an "Authorization: Bearer" credential (the form Prometheus scrape
// configs use).
func TokenMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				http.Error(w, "api token not configured", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented(r)), []byte(expected)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presented(r *http.Request) string {
	if tok := r.Header.Get("X-API-Token"); tok != "" {
		return tok
	}
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(tok)
	}
	return ""
}
