package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/osa/runtime/internal/agent"
	"github.com/osa/runtime/internal/contextasm"
	"github.com/osa/runtime/pkg/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	provider := s.deps.Config.LLM.DefaultProvider
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         Version,
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
		"provider":        provider,
	})
}

type orchestrateRequest struct {
	Input       string `json:"input"`
	SessionID   string `json:"session_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

type orchestrateResponse struct {
	SessionID      string        `json:"session_id"`
	Output         string        `json:"output"`
	Signal         models.Signal `json:"signal"`
	SkillsUsed     []string      `json:"skills_used"`
	IterationCount int           `json:"iteration_count"`
	ExecutionMs    int64         `json:"execution_ms"`
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req orchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request", err.Error())
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input is required", "invalid_request", "")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	worker := s.lookupOrCreateWorker(req.SessionID)

	start := time.Now()
	result := worker.Process(r.Context(), req.Input, agent.Options{Channel: "http"})
	elapsed := time.Since(start)

	switch result.Status {
	case agent.StatusFiltered:
		writeError(w, http.StatusUnprocessableEntity, "signal weight below noise threshold", "SIGNAL_BELOW_THRESHOLD", "")
		return
	case agent.StatusError:
		writeError(w, http.StatusInternalServerError, "agent processing failed", "agent_error", result.Reason)
		return
	}

	writeJSON(w, http.StatusOK, orchestrateResponse{
		SessionID:      req.SessionID,
		Output:         result.Response,
		Signal:         result.Signal,
		SkillsUsed:     result.SkillsUsed,
		IterationCount: result.IterationCount,
		ExecutionMs:    elapsed.Milliseconds(),
	})
}

func (s *Server) lookupOrCreateWorker(sessionID string) *agent.Worker {
	if existing, ok := s.deps.Sessions.Lookup(sessionID); ok {
		if w, ok := existing.(*agent.Worker); ok {
			return w
		}
	}
	w := agent.NewWorker(sessionID, s.deps.AgentDeps, s.deps.AgentCfg)
	if err := s.deps.Sessions.RegisterUnique(sessionID, w); err != nil {
		// Lost the race to a concurrent request for the same new session
		// id; use whichever worker won.
		if existing, ok := s.deps.Sessions.Lookup(sessionID); ok {
			if existingWorker, ok := existing.(*agent.Worker); ok {
				return existingWorker
			}
		}
	}
	return w
}

type classifyRequest struct {
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request", err.Error())
		return
	}
	result := s.deps.Classifier.Classify(r.Context(), req.Message, req.Channel)
	writeJSON(w, http.StatusOK, map[string]any{"signal": result.Signal})
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"skills": s.deps.Tools.ListTools()})
}

func (s *Server) handleExecuteSkill(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	args, err := readRawBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request", err.Error())
		return
	}

	result, err := s.deps.Tools.Execute(r.Context(), name, args)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "skill execution failed", "skill_error", err.Error())
		return
	}
	if result.IsError {
		writeError(w, http.StatusUnprocessableEntity, result.Content, "skill_error", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result.Content})
}

func readRawBody(r *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if r.ContentLength == 0 {
		return json.RawMessage(`{}`), nil
	}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type memoryWriteRequest struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

func (s *Server) handleMemoryWrite(w http.ResponseWriter, r *http.Request) {
	var req memoryWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request", err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required", "invalid_request", "")
		return
	}

	path := s.deps.Config.MemoryFile()
	entry := req.Content
	if req.Category != "" {
		entry = "[" + req.Category + "] " + entry
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist memory", "agent_error", err.Error())
		return
	}
	defer f.Close()
	if _, err := f.WriteString(entry + "\n"); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist memory", "agent_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "stored"})
}

func (s *Server) handleMemoryRecall(w http.ResponseWriter, r *http.Request) {
	path := s.deps.Config.MemoryFile()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]any{"content": ""})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read memory", "agent_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": string(data)})
}

func (s *Server) handleMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := contextasm.LoadMachines(s.deps.Config.OSTemplatesDir())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load machines", "agent_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"machines": machines, "count": len(machines)})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := s.deps.SSE.Serve(w, r, sessionID); err != nil {
		s.logger.Info(r.Context(), "sse stream ended", "session_id", sessionID, "error", err)
	}
}
