package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/config"
	"github.com/mager/cochlea/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	log, _ := logger.NewTestLogger()
	return ProvideClient(log, config.Config{StorageURL: srv.URL + "/storage/v1", StorageServiceKey: "service-key"})
}

func TestUploadSendsCredentials(t *testing.T) {
	var got *http.Request
	var body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	})

	err := c.Upload(context.Background(), "tracks", "analyzer/p 1/v1/arrays.json", []byte(`{"a":1}`),
		UploadOptions{ContentType: "application/json", Upsert: true})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if got.Method != http.MethodPost {
		t.Errorf("method = %s", got.Method)
	}
	if got.URL.EscapedPath() != "/storage/v1/object/tracks/analyzer/p%201/v1/arrays.json" {
		t.Errorf("path = %s", got.URL.EscapedPath())
	}
	if got.Header.Get("Authorization") != "Bearer service-key" {
		t.Errorf("authorization = %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("apikey") != "service-key" {
		t.Errorf("apikey = %q", got.Header.Get("apikey"))
	}
	if got.Header.Get("x-upsert") != "true" {
		t.Error("missing x-upsert")
	}
	if body != `{"a":1}` {
		t.Errorf("body = %q", body)
	}
}

func TestDownloadNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	})

	_, err := c.Download(context.Background(), "tracks", "missing/arrays.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDownloadBadRequest(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		notFound bool
	}{
		{"not_found marker", `{"statusCode":"404","error":"not_found","message":"Object not found"}`, true},
		{"message only", `{"message":"Object not found"}`, true},
		{"invalid key", `{"statusCode":"400","error":"InvalidKey","message":"Invalid key"}`, false},
	}

	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, tt.body, http.StatusBadRequest)
		})

		_, err := c.Download(context.Background(), "tracks", "a/arrays.json")
		if errors.Is(err, ErrNotFound) != tt.notFound {
			t.Errorf("%s: err = %v", tt.name, err)
		}
		if !tt.notFound && !apperr.Is(err, apperr.Storage) {
			t.Errorf("%s: err = %v, want storage error", tt.name, err)
		}
	}
}

func TestDownload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bpm":124}`))
	})

	data, err := c.Download(context.Background(), "tracks", "a/arrays.json")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != `{"bpm":124}` {
		t.Errorf("data = %s", data)
	}
}

func TestSignedURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/sign/tracks/p1/master.wav" {
			t.Errorf("path = %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		if string(b) != `{"expiresIn":1800}` {
			t.Errorf("body = %s", b)
		}
		w.Write([]byte(`{"signedURL":"/object/sign/tracks/p1/master.wav?token=abc"}`))
	})

	u, err := c.SignedURL(context.Background(), "tracks", "p1/master.wav", 30*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if u != c.baseURL+"/object/sign/tracks/p1/master.wav?token=abc" {
		t.Errorf("url = %s", u)
	}
}
