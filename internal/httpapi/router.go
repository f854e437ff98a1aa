// Package httpapi implements the REST ingress: orchestration,
// classification, tool/skill execution, memory, machines, and the SSE
// stream endpoint.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/osa/runtime/internal/agent"
	"github.com/osa/runtime/internal/config"
	"github.com/osa/runtime/internal/monitor"
	"github.com/osa/runtime/internal/observability"
	"github.com/osa/runtime/internal/providers"
	"github.com/osa/runtime/internal/sessionreg"
	"github.com/osa/runtime/internal/signal"
	"github.com/osa/runtime/internal/sse"
	"github.com/osa/runtime/internal/toolsreg"
)

// Version is the build-reported runtime version surfaced by /health.
var Version = "dev"

// Deps wires the HTTP surface to the rest of the runtime.
type Deps struct {
	Config     *config.Config
	Sessions   *sessionreg.Registry
	AgentDeps  agent.Dependencies
	AgentCfg   agent.Config
	Providers  *providers.Registry
	Tools      *toolsreg.Registry
	Classifier *signal.Classifier
	Monitor    *monitor.Monitor
	SSE        *sse.Bridge
	Logger     *observability.Logger
}

// Server serves the REST API: orchestration, classification, tool/skill
// execution, memory, machines, and the SSE stream.
type Server struct {
	deps      Deps
	startedAt time.Time
	logger    *observability.Logger
}

// NewRouter builds the chi router for Deps. Mount it directly or wrap it
// in an *http.Server.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Server{deps: deps, startedAt: time.Now(), logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Get("/health", s.handleHealth)

	verifier := NewJWTVerifier(deps.Config.Auth.JWTSecret)
	r.Group(func(api chi.Router) {
		api.Use(requireAuth(verifier, deps.Config.Auth.Enabled))

		api.Post("/api/v1/orchestrate", s.handleOrchestrate)
		api.Post("/api/v1/classify", s.handleClassify)
		api.Get("/api/v1/skills", s.handleListSkills)
		api.Post("/api/v1/skills/{name}/execute", s.handleExecuteSkill)
		api.Post("/api/v1/memory", s.handleMemoryWrite)
		api.Get("/api/v1/memory/recall", s.handleMemoryRecall)
		api.Get("/api/v1/machines", s.handleMachines)
		api.Get("/api/v1/stream/{session_id}", s.handleStream)
	})

	return r
}
