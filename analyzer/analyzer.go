// Package analyzer calls the external audio analysis service.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/canonical"
	"github.com/mager/cochlea/config"
	"go.uber.org/zap"
)

// rawHeadSize is how much of a bad upstream body is logged.
const rawHeadSize = 600

// Request is the analyzer job payload.
type Request struct {
	VersionID        string `json:"version_id"`
	ProjectID        string `json:"project_id"`
	AudioURL         string `json:"audio_url"`
	ProfileKey       string `json:"profile_key"`
	Mode             string `json:"mode"`
	Lang             string `json:"lang"`
	UploadArraysBlob bool   `json:"upload_arrays_blob"`
	StorageBucket    string `json:"storage_bucket"`
	StorageBasePath  string `json:"storage_base_path"`
	AnalyzerVersion  string `json:"analyzer_version,omitempty"`
}

// Client posts jobs to the analyzer.
type Client struct {
	log     *zap.SugaredLogger
	http    *http.Client
	url     string
	secret  string
	timeout time.Duration
}

func NewClient(logger *zap.SugaredLogger, httpClient *http.Client, url, secret string, timeout time.Duration) *Client {
	return &Client{log: logger, http: httpClient, url: url, secret: secret, timeout: timeout}
}

// ProvideClient provides the analyzer client.
func ProvideClient(logger *zap.SugaredLogger, cfg config.Config) *Client {
	return NewClient(logger, &http.Client{}, cfg.AnalyzerURL, cfg.AnalyzerSecret, cfg.AnalyzerTimeout)
}

var Options = ProvideClient

// Configured reports whether an analyzer endpoint is set.
func (c *Client) Configured() bool {
	return c.url != ""
}

// Analyze runs one analysis and returns the raw result. The call is
// bounded by the client timeout.
func (c *Client) Analyze(ctx context.Context, req Request) (map[string]any, error) {
	if c.url == "" {
		return nil, apperr.New(apperr.Config, "analyzer", "analyzer url is not configured")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analyzer request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.Config, "analyzer", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-analyzer-secret", c.secret)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.log.Errorw("Analyzer timed out", "versionId", req.VersionID, "timeout", c.timeout.String())
			return nil, apperr.Wrap(apperr.UpstreamTimeout, "analyzer", err)
		}
		return nil, apperr.Wrap(apperr.Upstream, "analyzer", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperr.Wrap(apperr.UpstreamTimeout, "analyzer", err)
		}
		return nil, apperr.Wrap(apperr.Upstream, "analyzer", err)
	}

	c.log.Infow("Analyzer responded",
		"versionId", req.VersionID,
		"status", resp.StatusCode,
		"bytes", len(text),
		"elapsed", time.Since(start).String(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logHead(req.VersionID, resp.StatusCode, text)
		return nil, apperr.New(apperr.Upstream, "analyzer", fmt.Sprintf("analyzer returned status %d", resp.StatusCode))
	}

	var result map[string]any
	if err := json.Unmarshal(text, &result); err != nil {
		c.logHead(req.VersionID, resp.StatusCode, text)
		return nil, &apperr.Error{Kind: apperr.Upstream, Op: "analyzer", Msg: "analyzer returned non-json body", Err: err}
	}

	if _, ok := canonical.Lookup(result, "version_id", "versionId", "version"); !ok {
		c.logHead(req.VersionID, resp.StatusCode, text)
		return nil, apperr.New(apperr.Upstream, "analyzer", "analyzer result has no version identity")
	}
	return result, nil
}

func (c *Client) logHead(versionID string, status int, text []byte) {
	head := text
	if len(head) > rawHeadSize {
		head = head[:rawHeadSize]
	}
	c.log.Errorw("Unexpected analyzer response",
		"versionId", versionID,
		"status", status,
		"rawHead", string(head),
	)
}
