// Package boot assembles every core component in dependency order and
// owns the runtime's start/stop lifecycle (C13): config, observability,
// event bus, session registry, providers, tool registry, signal
// classifier, context assembler, compactor, task queue (+ reaper),
// sidecar, proactive monitor, and finally the HTTP/SSE surface.
package boot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/osa/runtime/internal/agent"
	"github.com/osa/runtime/internal/compaction"
	"github.com/osa/runtime/internal/config"
	"github.com/osa/runtime/internal/contextasm"
	"github.com/osa/runtime/internal/eventbus"
	"github.com/osa/runtime/internal/httpapi"
	"github.com/osa/runtime/internal/monitor"
	"github.com/osa/runtime/internal/observability"
	"github.com/osa/runtime/internal/providers"
	"github.com/osa/runtime/internal/sessionreg"
	"github.com/osa/runtime/internal/sidecar"
	"github.com/osa/runtime/internal/signal"
	"github.com/osa/runtime/internal/sse"
	"github.com/osa/runtime/internal/taskqueue"
	"github.com/osa/runtime/internal/toolsreg"
)

// Runtime holds every started component, ready for Start/Shutdown.
type Runtime struct {
	Config     *config.Config
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Bus        *eventbus.Bus
	Sessions   *sessionreg.Registry
	Providers  *providers.Registry
	Tools      *toolsreg.Registry
	Classifier *signal.Classifier
	Assembler  *contextasm.Assembler
	Compactor  *compaction.Compactor
	Tasks      taskqueue.Store
	Reaper     *taskqueue.Reaper
	Sidecar    *sidecar.Port
	Monitor    *monitor.Monitor
	SSE        *sse.Bridge
	AgentDeps  agent.Dependencies
	AgentCfg   agent.Config

	httpServer *http.Server
	reaperDone chan struct{}
}

// New wires every component from cfg but starts nothing. Callers get a
// fully constructed Runtime to inspect or test before calling Start.
func New(cfg *config.Config) (*Runtime, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()
	bus := eventbus.New(eventbus.Config{}, logger, metrics)

	for _, dir := range []string{
		cfg.Session.ConfigDir,
		cfg.SessionsDir(),
		cfg.OSTemplatesDir(),
		cfg.BinariesDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config dir %s: %w", dir, err)
		}
	}

	providerReg, err := buildProviders(cfg)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}

	toolReg := toolsreg.New(toolsreg.Config{DefaultTimeout: cfg.Tools.ExecTimeout})
	if err := toolsreg.RegisterBuiltins(toolReg, cfg.Tools.ModelSizeBytes, cfg.Tools.ExecTimeout, cfg.Tools.ModelSizeBytes, cfg.Tools.ExecTimeout); err != nil {
		return nil, fmt.Errorf("register built-in tools: %w", err)
	}

	classifier := signal.New(signal.DefaultConfig())
	assembler := contextasm.New()
	// OnPressure is left nil: the Session Worker already publishes
	// context_pressure per-session after each Compact call (it has the
	// session id that this process-wide Compactor does not).
	compactor := compaction.New(compaction.Config{})

	store, err := buildTaskStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("build task store: %w", err)
	}
	reaper := taskqueue.NewReaper(store, cfg.Tasks.ReapInterval, logger, metrics)

	sidecarPort := sidecar.New(sidecar.Config{
		BinaryPath:   cfg.Sidecar.BinaryPath,
		RestartDelay: cfg.Sidecar.RestartDelay,
		Logger:       logger,
	})

	sessions := sessionreg.New(metrics)

	agentDeps := agent.Dependencies{
		Bus:        bus,
		Providers:  providerReg,
		Tools:      toolReg,
		Classifier: classifier,
		Assembler:  assembler,
		Compactor:  compactor,
		Logger:     logger,
		Metrics:    metrics,
	}
	agentCfg := agent.Config{
		MaxIterations:   agent.DefaultConfig().MaxIterations,
		DefaultProvider: cfg.LLM.DefaultProvider,
		DefaultModel:    cfg.LLM.DefaultModel,
		ModelSizeBytes:  cfg.Tools.ModelSizeBytes,
	}

	mon := monitor.New(monitor.Config{
		Scanners: []monitor.NamedScanner{
			{Name: "stale_session", Scanner: monitor.StaleSessionScanner(cfg.SessionsDir(), monitor.DefaultStaleThreshold)},
			{Name: "unanswered_question", Scanner: monitor.UnansweredQuestionScanner(cfg.SessionsDir())},
			{Name: "follow_up", Scanner: monitor.FollowUpScanner(cfg.SessionsDir(), monitor.DefaultFollowUpPatterns)},
			{Name: "failed_task", Scanner: monitor.FailedTaskScanner(store)},
			{Name: "system_health", Scanner: monitor.SystemHealthScanner(cfg.Session.ConfigDir, monitor.DefaultDiskUsageThreshold)},
		},
		Interval:  cfg.Cron.Interval,
		MaxAlerts: cfg.Cron.MaxAlerts,
		Bus:       bus,
		Logger:    logger,
	})

	sseBridge := sse.New(bus, logger)

	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics,
		Bus:        bus,
		Sessions:   sessions,
		Providers:  providerReg,
		Tools:      toolReg,
		Classifier: classifier,
		Assembler:  assembler,
		Compactor:  compactor,
		Tasks:      store,
		Reaper:     reaper,
		Sidecar:    sidecarPort,
		Monitor:    mon,
		SSE:        sseBridge,
		AgentDeps:  agentDeps,
		AgentCfg:   agentCfg,
		reaperDone: make(chan struct{}),
	}
	return rt, nil
}

func buildProviders(cfg *config.Config) (*providers.Registry, error) {
	reg := providers.New()
	registered := 0

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       key,
			DefaultModel: cfg.LLM.DefaultModel,
			MaxRetries:   cfg.LLM.MaxRetries,
			RetryDelay:   cfg.LLM.RetryBackoff,
		})
		if err != nil {
			return nil, err
		}
		reg.PutProviderConfig(&providers.Record{
			Name: "anthropic", Provider: p, DefaultModel: cfg.LLM.DefaultModel,
			EnvModelVar: "ANTHROPIC_MODEL", Configured: true,
		})
		registered++
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       key,
			DefaultModel: cfg.LLM.DefaultModel,
			MaxRetries:   cfg.LLM.MaxRetries,
			RetryDelay:   cfg.LLM.RetryBackoff,
		})
		if err != nil {
			return nil, err
		}
		reg.PutProviderConfig(&providers.Record{
			Name: "openai", Provider: p, DefaultModel: cfg.LLM.DefaultModel,
			EnvModelVar: "OPENAI_MODEL", Configured: true,
		})
		registered++
	}

	if registered > 0 {
		reg.SetDefault(cfg.LLM.DefaultProvider)
	}
	return reg, nil
}

func buildTaskStore(cfg *config.Config) (taskqueue.Store, error) {
	if cfg.Database.URL != "" {
		return taskqueue.NewPostgresStore(cfg.Database.URL)
	}
	return taskqueue.NewSQLiteStore(filepath.Join(cfg.Session.ConfigDir, "tasks.db"))
}

// Start launches every background component: the task queue reaper, the
// sidecar supervisor (if configured), the proactive monitor, and the
// HTTP/SSE listener. It returns once the HTTP server is listening;
// callers should select on ctx.Done() or an error channel for shutdown.
func (rt *Runtime) Start(ctx context.Context) error {
	go func() {
		defer close(rt.reaperDone)
		rt.Reaper.Run(ctx)
	}()

	rt.Sidecar.Start(ctx)

	if err := rt.Monitor.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		Config:     rt.Config,
		Sessions:   rt.Sessions,
		AgentDeps:  rt.AgentDeps,
		AgentCfg:   rt.AgentCfg,
		Providers:  rt.Providers,
		Tools:      rt.Tools,
		Classifier: rt.Classifier,
		Monitor:    rt.Monitor,
		SSE:        rt.SSE,
		Logger:     rt.Logger,
	})

	addr := fmt.Sprintf("%s:%d", rt.Config.Server.Host, rt.Config.Server.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	rt.httpServer = &http.Server{Addr: listener.Addr().String(), Handler: handler}

	go func() {
		if err := rt.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Error(context.Background(), "http server error", "error", err)
		}
	}()
	rt.Logger.Info(context.Background(), "runtime started", "addr", addr)

	return nil
}

// Shutdown stops the HTTP listener gracefully, then the monitor and
// sidecar, then closes the task store.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if rt.httpServer != nil {
		if err := rt.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
	}
	rt.Monitor.Stop()
	rt.Sidecar.Stop()
	if rt.Tasks != nil {
		if err := rt.Tasks.Close(); err != nil {
			return fmt.Errorf("close task store: %w", err)
		}
	}
	return nil
}
