// Package apidoc serves the generated OpenAPI document.
package apidoc

import (
	"net/http"

	_ "github.com/mager/cochlea/docs"
	"github.com/swaggo/swag"
	"go.uber.org/zap"
)

// DocHandler serves swagger.json.
type DocHandler struct {
	log *zap.SugaredLogger
}

func (*DocHandler) Pattern() string {
	return "/swagger/doc.json"
}

func NewDocHandler(log *zap.SugaredLogger) *DocHandler {
	return &DocHandler{log: log}
}

func (h *DocHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		h.log.Errorw("Failed to read API doc", "error", err)
		http.Error(w, `{"error":"api doc unavailable"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(doc))
}
