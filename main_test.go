package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mager/cochlea/config"
	"github.com/mager/cochlea/logger"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestAppGraph(t *testing.T) {
	if err := fx.ValidateApp(app); err != nil {
		t.Fatalf("invalid dependency graph: %v", err)
	}
}

type echoRoute struct{ pattern string }

func (e echoRoute) Pattern() string { return e.pattern }

func (e echoRoute) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"ok":true}`))
}

type postRoute struct{ echoRoute }

func (postRoute) Methods() []string { return []string{http.MethodPost} }

func TestNewHTTPServerRoutes(t *testing.T) {
	log, _ := logger.NewTestLogger()
	srv := NewHTTPServer(fxtest.NewLifecycle(t), log, config.Config{Port: "0"}, []Route{
		echoRoute{pattern: "/health"},
		postRoute{echoRoute{pattern: "/analyzer/run"}},
	})

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodPost, "/analyzer/run", http.StatusOK},
		{http.MethodGet, "/analyzer/run", http.StatusMethodNotAllowed},
		{http.MethodGet, "/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)

		if rr.Code != tt.status {
			t.Errorf("%s %s: got %v want %v", tt.method, tt.path, rr.Code, tt.status)
		}
	}

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}
