// Package storage is a client for a Supabase-compatible object storage API.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/config"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ErrNotFound is returned by Download when the object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// UploadOptions control an upload.
type UploadOptions struct {
	ContentType string
	Upsert      bool
}

// Client talks to the storage REST API with service credentials.
type Client struct {
	log     *zap.SugaredLogger
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient builds a client. The http.Client must already carry the
// service credentials.
func NewClient(logger *zap.SugaredLogger, httpClient *http.Client, baseURL, apiKey string) *Client {
	return &Client{
		log:     logger,
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// ProvideClient builds the process-wide storage client. The credentialed
// transport is created here once and shared by every request.
func ProvideClient(logger *zap.SugaredLogger, cfg config.Config) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.StorageServiceKey,
		TokenType:   "Bearer",
	})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = 2 * time.Minute

	return NewClient(logger, httpClient, cfg.StorageURL, cfg.StorageServiceKey)
}

var Options = ProvideClient

// Configured reports whether a storage endpoint is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

func (c *Client) objectURL(kind, bucket, path string) string {
	segs := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	u := c.baseURL + "/object/"
	if kind != "" {
		u += kind + "/"
	}
	return u + url.PathEscape(bucket) + "/" + strings.Join(segs, "/")
}

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	return req, nil
}

// Download fetches an object.
func (c *Client) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.objectURL("", bucket, path), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "storage.download", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "storage.download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	// Supabase answers missing objects with 400 and a not_found body.
	if resp.StatusCode == http.StatusBadRequest {
		head, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if isNotFoundBody(head) {
			return nil, ErrNotFound
		}
		c.log.Warnw("Storage request failed",
			"op", "storage.download",
			"status", resp.StatusCode,
			"body", string(head),
		)
		return nil, apperr.New(apperr.Storage, "storage.download", "unexpected status 400")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("storage.download", resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "storage.download", err)
	}
	return data, nil
}

// Upload stores body at bucket/path.
func (c *Client) Upload(ctx context.Context, bucket, path string, body []byte, opts UploadOptions) error {
	req, err := c.newRequest(ctx, http.MethodPost, c.objectURL("", bucket, path), bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.Storage, "storage.upload", err)
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if opts.Upsert {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Storage, "storage.upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError("storage.upload", resp)
	}
	return nil
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignedURL returns a time-limited download URL for an object.
func (c *Client) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	body, err := json.Marshal(signRequest{ExpiresIn: int(ttl.Seconds())})
	if err != nil {
		return "", apperr.Wrap(apperr.Storage, "storage.sign", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.objectURL("sign", bucket, path), bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(apperr.Storage, "storage.sign", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.Storage, "storage.sign", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError("storage.sign", resp)
	}
	var sr signResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", apperr.Wrap(apperr.Storage, "storage.sign", err)
	}
	if sr.SignedURL == "" {
		return "", apperr.New(apperr.Storage, "storage.sign", "empty signed url")
	}
	if strings.HasPrefix(sr.SignedURL, "http") {
		return sr.SignedURL, nil
	}
	return c.baseURL + "/" + strings.TrimLeft(sr.SignedURL, "/"), nil
}

func isNotFoundBody(body []byte) bool {
	b := strings.ToLower(string(body))
	return strings.Contains(b, "not_found") || strings.Contains(b, "object not found")
}

func (c *Client) statusError(op string, resp *http.Response) error {
	head, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	c.log.Warnw("Storage request failed",
		"op", op,
		"status", resp.StatusCode,
		"body", string(head),
	)
	return apperr.New(apperr.Storage, op, fmt.Sprintf("unexpected status %d", resp.StatusCode))
}
