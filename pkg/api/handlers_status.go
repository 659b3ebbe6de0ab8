package api

import (
	"net/http"

	"github.com/parlancehq/parlance/pkg/auth"
)

// StatusResponse reports the engine's resolution surface for the caller.
type StatusResponse struct {
	Configured   bool         `json:"configured"`
	Provider     string       `json:"provider"`
	ActionsCount int          `json:"actions_count"`
	Actions      []ActionInfo `json:"actions"`
}

// ActionInfo is one resolvable action.
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleStatus lists the actions the calling user can currently resolve:
// disabled capabilities and visibility-restricted actions are already
// filtered out by the engine.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}

	user := auth.UserFromContext(r.Context())
	candidates := s.engine.Candidates(user)

	infos := make([]ActionInfo, 0, len(candidates))
	for _, a := range candidates {
		infos = append(infos, ActionInfo{Name: a.Name(), Description: a.Description()})
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Configured:   s.engine.Configured(),
		Provider:     s.provider,
		ActionsCount: len(infos),
		Actions:      infos,
	})
}
