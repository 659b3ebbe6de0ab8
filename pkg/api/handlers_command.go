package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/auth"
	"github.com/parlancehq/parlance/pkg/logging"
	"github.com/parlancehq/parlance/pkg/stream"
)

// ProcessRequest is the body for both command endpoints.
type ProcessRequest struct {
	Command string `json:"command"`
}

// ProcessResponse is the buffered endpoint's envelope. Data carries the full
// terminal result; Success is false only for a failed status, a partial
// result still reports success.
type ProcessResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    *action.Result `json:"data"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}

	req, ok := decodeProcessRequest(w, r)
	if !ok {
		return
	}

	user := auth.UserFromContext(r.Context())
	result := s.engine.Process(r.Context(), req.Command, user, nil)

	writeJSON(w, http.StatusOK, ProcessResponse{
		Success: result.Status != action.StatusFailed,
		Message: result.Message,
		Data:    result,
	})
}

func (s *Server) handleProcessStream(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}

	req, ok := decodeProcessRequest(w, r)
	if !ok {
		return
	}

	enc, err := stream.NewEncoder(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The engine turns every internal failure into a terminal Result, so
	// the error frame is reserved for faults in this handler's own plumbing.
	defer func() {
		if rec := recover(); rec != nil {
			s.logf(logging.LevelError, "stream_panic",
				fmt.Sprintf("command stream panicked: %v", rec),
				map[string]any{"stack": string(debug.Stack())})
			if !enc.Terminal() {
				_ = enc.Error("internal error")
			}
		}
	}()

	user := auth.UserFromContext(r.Context())
	result := s.engine.Process(r.Context(), req.Command, user, stream.NewSink(enc))

	if err := enc.Complete(result); err != nil {
		s.logf(logging.LevelError, "stream_terminal_failed", err.Error(), nil)
	}
}

// decodeProcessRequest parses and validates the command body, writing the
// 400 response itself when the body is unusable.
func decodeProcessRequest(w http.ResponseWriter, r *http.Request) (ProcessRequest, bool) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return req, false
	}
	return req, true
}
