package web

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// allowRequest reports whether r carries the configured token, writing a
// 401 when it does not. An empty token leaves the API open, which is the
// default for the loopback listener.
func (s *Server) allowRequest(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	for _, candidate := range presentedTokens(r) {
		if tokensMatch(candidate, s.cfg.Token) {
			return true
		}
	}
	writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	return false
}

// presentedTokens collects the ?token= query value, used by browsers that
// cannot set headers on EventSource and WebSocket, and an Authorization
// bearer value.
func presentedTokens(r *http.Request) []string {
	var out []string
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
		out = append(out, q)
	}
	scheme, value, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		if v := strings.TrimSpace(value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// tokensMatch compares digests so the timing does not depend on length.
func tokensMatch(got, want string) bool {
	a := sha256.Sum256([]byte(got))
	b := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
