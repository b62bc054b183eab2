package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/canonical"
	"github.com/mager/cochlea/config"
	"github.com/mager/cochlea/handler"
	"github.com/mager/cochlea/storage"
	"github.com/mager/cochlea/store"
	"github.com/mager/cochlea/view"
	"go.uber.org/zap"
)

// ArraysStore reads the arrays columns of a version.
type ArraysStore interface {
	StoredArrays(ctx context.Context, id string) (map[string]any, error)
	ArraysPath(ctx context.Context, id string) (string, error)
}

// Downloader fetches stored objects.
type Downloader interface {
	Download(ctx context.Context, bucket, path string) ([]byte, error)
}

// ArraysHandler serves the arrays view of a version.
type ArraysHandler struct {
	log     *zap.SugaredLogger
	store   ArraysStore
	objects Downloader
	bucket  string
}

func (*ArraysHandler) Pattern() string {
	return "/analyzer/arrays/{versionId}"
}

func (*ArraysHandler) Methods() []string {
	return []string{http.MethodGet}
}

// NewArraysHandler builds a new ArraysHandler.
func NewArraysHandler(log *zap.SugaredLogger, cfg config.Config, s *store.SQLStore, objects *storage.Client) *ArraysHandler {
	return &ArraysHandler{log: log, store: s, objects: objects, bucket: cfg.StorageBucket}
}

// Get the arrays view of a version
// @Summary Get analysis arrays
// @Description Returns the downsampled arrays view of an analyzed version
// @Produce json
// @Param versionId path string true "Version ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} handler.ErrorResponse
// @Router /analyzer/arrays/{versionId} [get]
func (h *ArraysHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["versionId"]
	if id == "" {
		handler.WriteError(w, h.log, apperr.New(apperr.Validation, "arrays", "missing versionId"))
		return
	}

	v, err := h.arrays(r.Context(), id)
	if err != nil {
		handler.WriteError(w, h.log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, v)
}

// arrays prefers the view stored on the row, then arrays_view.json, then
// projects arrays.json on the fly.
func (h *ArraysHandler) arrays(ctx context.Context, id string) (map[string]any, error) {
	stored, err := h.store.StoredArrays(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return stored, nil
	}

	p, err := h.store.ArraysPath(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == "" {
		return nil, apperr.New(apperr.NotFound, "arrays", "no arrays data available")
	}

	data, err := h.objects.Download(ctx, h.bucket, view.ViewPath(p))
	if err == nil {
		var v map[string]any
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		h.log.Warnw("Stored arrays view is not valid JSON", "versionId", id, "path", view.ViewPath(p))
	} else if !errors.Is(err, storage.ErrNotFound) {
		h.log.Warnw("Failed to download arrays view", "versionId", id, "error", err)
	}

	data, err = h.objects.Download(ctx, h.bucket, p)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "arrays", "arrays file not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "arrays", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &apperr.Error{Kind: apperr.Storage, Op: "arrays", Msg: "invalid arrays data format", Err: err}
	}
	return view.Project(canonical.Canonicalize(raw)), nil
}
