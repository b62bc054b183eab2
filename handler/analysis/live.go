package analysis

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/auth"
	"github.com/mager/cochlea/handler"
	"github.com/mager/cochlea/pipeline"
	"go.uber.org/zap"
)

// Message types sent on the live socket.
const (
	MessageStage  = "stage"
	MessageResult = "result"
	MessageError  = "error"
)

// LiveMessage is one frame sent to a live client.
type LiveMessage struct {
	Type   string                 `json:"type"`
	Event  *pipeline.Event        `json:"event,omitempty"`
	Result *pipeline.Result       `json:"result,omitempty"`
	Error  *handler.ErrorResponse `json:"error,omitempty"`
}

// TokenVerifier checks a raw bearer token.
type TokenVerifier interface {
	Subject(token string) (string, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LiveHandler runs an analysis over a websocket and streams its stages.
type LiveHandler struct {
	log    *zap.SugaredLogger
	auth   TokenVerifier
	runner Runner
}

func (*LiveHandler) Pattern() string {
	return "/analyzer/live"
}

func (*LiveHandler) Methods() []string {
	return []string{http.MethodGet}
}

// NewLiveHandler builds a new LiveHandler.
func NewLiveHandler(log *zap.SugaredLogger, verifier *auth.Verifier, svc *pipeline.Service) *LiveHandler {
	return &LiveHandler{log: log, auth: verifier, runner: svc}
}

// Stream an analysis run
// @Summary Stream an analyzer run
// @Description Upgrades to a websocket. The client sends {"version_id"} and receives stage events followed by the result or an error.
// @Param access_token query string true "Bearer token"
// @Router /analyzer/live [get]
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := h.auth.Subject(liveToken(r))
	if err != nil {
		handler.WriteError(w, h.log, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("Error upgrading connection to WebSocket", "error", err)
		return
	}
	defer conn.Close()

	var body RunRequest
	if err := conn.ReadJSON(&body); err != nil {
		h.send(conn, errorMessage(apperr.Wrap(apperr.Validation, "decode", err)))
		return
	}
	req := body.pipelineRequest()

	h.log.Infow("Live analyzer run requested", "versionId", req.VersionID, "user", sub)

	// Events are written from the pipeline goroutine, which is the only writer.
	ok := true
	res, err := h.runner.Run(r.Context(), req, func(ev pipeline.Event) {
		if ok {
			ok = h.send(conn, LiveMessage{Type: MessageStage, Event: &ev})
		}
	})
	if err != nil {
		h.send(conn, errorMessage(err))
		return
	}
	h.send(conn, LiveMessage{Type: MessageResult, Result: res})
	h.close(conn)
}

func (h *LiveHandler) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		h.log.Errorw("Error closing WebSocket", "error", err)
	}
}

func (h *LiveHandler) send(conn *websocket.Conn, msg LiveMessage) bool {
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Errorw("Error sending WebSocket message", "error", err)
		return false
	}
	return true
}

func errorMessage(err error) LiveMessage {
	return LiveMessage{Type: MessageError, Error: &handler.ErrorResponse{Error: err.Error(), Kind: apperr.KindOf(err)}}
}

// liveToken reads the token from the Authorization header or, for
// browsers that cannot set headers on websockets, the access_token query.
func liveToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("access_token")
}
