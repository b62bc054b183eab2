package analysis

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/auth"
	"github.com/mager/cochlea/handler"
	"github.com/mager/cochlea/pipeline"
	"go.uber.org/zap"
)

// Runner runs the analysis pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, observe pipeline.Observer) (*pipeline.Result, error)
}

// Identifier resolves the caller of a request.
type Identifier interface {
	Identity(r *http.Request) (string, error)
}

// RunHandler triggers an analysis for one version.
type RunHandler struct {
	log    *zap.SugaredLogger
	auth   Identifier
	runner Runner
}

func (*RunHandler) Pattern() string {
	return "/analyzer/run"
}

func (*RunHandler) Methods() []string {
	return []string{http.MethodPost}
}

// NewRunHandler builds a new RunHandler.
func NewRunHandler(log *zap.SugaredLogger, verifier *auth.Verifier, svc *pipeline.Service) *RunHandler {
	return &RunHandler{log: log, auth: verifier, runner: svc}
}

// RunRequest is the body of POST /analyzer/run.
type RunRequest struct {
	VersionID       string `json:"version_id"`
	VersionIDAlt    string `json:"versionId,omitempty"`
	AnalyzerVersion string `json:"analyzer_version,omitempty"`
}

func (r RunRequest) pipelineRequest() pipeline.Request {
	id := r.VersionID
	if id == "" {
		id = r.VersionIDAlt
	}
	return pipeline.Request{VersionID: id, AnalyzerVersion: r.AnalyzerVersion}
}

// Run the analyzer for a version
// @Summary Run the analyzer
// @Description Analyzes a project version, ranks it against its genre reference model and stores the result
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body RunRequest true "Version to analyze"
// @Success 200 {object} pipeline.Result
// @Failure 400 {object} handler.ErrorResponse
// @Failure 401 {object} handler.ErrorResponse
// @Failure 404 {object} handler.ErrorResponse
// @Failure 502 {object} handler.ErrorResponse
// @Failure 504 {object} handler.ErrorResponse
// @Router /analyzer/run [post]
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := h.auth.Identity(r)
	if err != nil {
		handler.WriteError(w, h.log, err)
		return
	}

	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.WriteError(w, h.log, apperr.Wrap(apperr.Validation, "decode", err))
		return
	}
	req := body.pipelineRequest()

	h.log.Infow("Analyzer run requested", "versionId", req.VersionID, "user", sub)

	res, err := h.runner.Run(r.Context(), req, nil)
	if err != nil {
		handler.WriteError(w, h.log, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, res)
}
