package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/youssefsiam38/agentctx/compaction"
	"github.com/youssefsiam38/agentctx/hooks"
	"github.com/youssefsiam38/agentctx/storage"
	"github.com/youssefsiam38/agentctx/tool"
	"github.com/youssefsiam38/agentctx/types"
)

// maxToolBody caps request bodies of the tool routes.
const maxToolBody = 1 << 20

type toolCallResponse struct {
	Tool       string `json:"tool"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// toolset restores the session behind the request and builds its toolset.
// It writes the error response itself and returns false on failure.
func (s *server) toolset(w http.ResponseWriter, r *http.Request) (*tool.Executor, *tool.Registry, bool) {
	id := r.PathValue("id")
	engine, err := s.app.engine(r.Context(), id)
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, nil, false
	}
	if err != nil {
		s.app.logger.Error("load session failed", "session_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, nil, false
	}

	h := hooks.NewRegistry()
	s.metrics.Register(h)
	s.app.registerLogging(r.Context(), h)

	executor, registry, err := s.app.cfg.NewToolExecutor(engine, h)
	if err != nil {
		s.app.logger.Error("build toolset failed", "session_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, nil, false
	}
	return executor, registry, true
}

func (s *server) handleTools(w http.ResponseWriter, r *http.Request) {
	_, registry, ok := s.toolset(w, r)
	if !ok {
		return
	}

	var body any
	switch format := r.URL.Query().Get("format"); format {
	case "", "names":
		body = registry.List()
	case "anthropic":
		body = registry.ToAnthropicTools()
	case "openai":
		body = registry.ToOpenAITools()
	default:
		http.Error(w, "unknown format "+format, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	input, err := io.ReadAll(io.LimitReader(r.Body, maxToolBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	executor, _, ok := s.toolset(w, r)
	if !ok {
		return
	}

	name := r.PathValue("name")
	res := executor.Execute(r.Context(), tool.Call{Name: name, Input: input})

	resp := toolCallResponse{Tool: name, Output: res.Output, DurationMS: res.Duration.Milliseconds()}
	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		status = toolErrorStatus(res.Err)
	}
	writeJSON(w, status, resp)
}

func (s *server) handleToolResults(w http.ResponseWriter, r *http.Request) {
	var msg types.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxToolBody)).Decode(&msg); err != nil {
		http.Error(w, "invalid message: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !msg.HasToolUse() {
		http.Error(w, "message has no tool calls", http.StatusBadRequest)
		return
	}
	executor, _, ok := s.toolset(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, executor.Respond(r.Context(), &msg))
}

func toolErrorStatus(err error) int {
	switch {
	case errors.Is(err, tool.ErrToolNotFound), errors.Is(err, compaction.ErrOffloadNotFound):
		return http.StatusNotFound
	case errors.Is(err, tool.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
