package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hiresynth/synth/pkg/synth"
)

// triggerRequest is the POST body for trigger execution.
type triggerRequest struct {
	Params map[string]any `json:"params"`
}

// stateResponse describes the orchestrator position for GET /api/v1/state.
type stateResponse struct {
	State     string             `json:"state"`
	Available []synth.Transition `json:"available"`
	Memory    map[string]any     `json:"memory"`
}

// StateAPI handles GET /api/v1/state.
func (s *Server) StateAPI(w http.ResponseWriter, _ *http.Request) {
	httpResponseJSON(w, stateResponse{
		State:     s.synth.CurrentState(),
		Available: s.synth.Available(),
		Memory:    s.synth.Memory(),
	}, http.StatusOK)
}

// TriggerAPI handles POST /api/v1/trigger/{trigger}. Events stream to the
// client as NDJSON; closing the connection cancels the run.
func (s *Server) TriggerAPI(w http.ResponseWriter, r *http.Request) {
	trigger := extractTrigger(r)
	if trigger == "" {
		httpResponse(w, "trigger is required", http.StatusBadRequest)
		return
	}

	var req triggerRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpResponse(w, "streaming not supported by this server", http.StatusInternalServerError)
		return
	}

	s.synthMu.Lock()
	defer s.synthMu.Unlock()

	runID, ctx, cleanup := s.registerRun(r.Context(), trigger)
	defer cleanup()

	events, err := s.synth.StreamingTrigger(ctx, trigger, req.Params)
	if err != nil {
		var terr *synth.TransitionError
		if errors.As(err, &terr) {
			httpResponse(w, terr.Error(), http.StatusConflict)
			return
		}
		httpResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	slog.Info("trigger run started", "run_id", runID, "trigger", trigger)

	for ev := range events {
		if !writeNDJSON(w, flusher, ev) {
			return
		}
	}

	writeNDJSON(w, flusher, map[string]any{
		"tag":    "RUN_COMPLETED",
		"run_id": runID,
		"state":  s.synth.CurrentState(),
	})
}

// extractTrigger extracts the trigger name from the request path.
// Expected path: /api/v1/trigger/{trigger}
func extractTrigger(r *http.Request) string {
	path := r.URL.Path
	const prefix = "/api/v1/trigger/"
	idx := strings.Index(path, prefix)
	if idx < 0 {
		return ""
	}

	return strings.TrimSuffix(path[idx+len(prefix):], "/")
}
