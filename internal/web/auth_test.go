package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAllowRequestTokenSources(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", Token: "s3cret"})

	tests := []struct {
		name   string
		target string
		header string
		want   bool
	}{
		{name: "missing", target: "/api/status", want: false},
		{name: "query", target: "/api/status?token=s3cret", want: true},
		{name: "bearer", target: "/api/status", header: "Bearer s3cret", want: true},
		{name: "bearer lowercase scheme", target: "/api/status", header: "bearer s3cret", want: true},
		{name: "wrong query good header", target: "/api/status?token=nope", header: "Bearer s3cret", want: true},
		{name: "basic scheme", target: "/api/status", header: "Basic s3cret", want: false},
		{name: "prefix of token", target: "/api/status?token=s3c", want: false},
		{name: "empty bearer", target: "/api/status", header: "Bearer   ", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			if got := srv.allowRequest(rr, req); got != tt.want {
				t.Fatalf("allowRequest = %v, want %v", got, tt.want)
			}
			if !tt.want && rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
			}
		})
	}
}

func TestAllowRequestOpenWithoutToken(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	if !srv.allowRequest(httptest.NewRecorder(), req) {
		t.Fatal("expected open access when no token is configured")
	}
}
