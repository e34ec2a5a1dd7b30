package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freddiev4/rune/internal/config"
	"github.com/freddiev4/rune/internal/logger"
	"github.com/freddiev4/rune/internal/observability"
	"github.com/freddiev4/rune/pkg/agent"
	"github.com/freddiev4/rune/pkg/mcp"
	"github.com/freddiev4/rune/pkg/session"
	"github.com/freddiev4/rune/pkg/tool"
)

// harness wires the configured pieces of one CLI invocation together.
type harness struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *session.Store
	manager *mcp.Manager
	loop    *agent.Loop
	cleanup *session.Cleanup
}

// newHarness loads config, sets up logging, starts MCP servers, and builds
// the agent loop. agentName and model override the configured defaults when
// non-empty.
func newHarness(ctx context.Context, agentName, model string, approver tool.ApprovalCallback) (*harness, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logCfg := logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSizeMB: 50,
		MaxAge:    7,
		Compress:  true,
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	lg, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}

	apiKey := cfg.APIKey()
	if apiKey == "" {
		lg.Close()
		return nil, fmt.Errorf("no API key for provider %s, set it in the config or environment", cfg.Provider)
	}
	provider, err := agent.NewProvider(cfg.Provider, apiKey)
	if err != nil {
		lg.Close()
		return nil, err
	}

	store, err := session.NewStore(cfg.SessionsDir)
	if err != nil {
		lg.Close()
		return nil, err
	}

	var cleanup *session.Cleanup
	if cfg.Cleanup.Enabled {
		retention := time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour
		cleanup = session.NewCleanup(store, retention, cfg.Cleanup.Schedule)
		if err := cleanup.Start(); err != nil {
			log.Warn().Err(err).Msg("session cleanup disabled")
			cleanup = nil
		}
	}

	var manager *mcp.Manager
	if cfg.MCPConfigPath != "" {
		servers, err := config.LoadMCPServers(cfg.MCPConfigPath)
		if err != nil {
			lg.Close()
			return nil, err
		}
		manager = mcp.NewManager()
		manager.StartAll(ctx, servers)
	}

	if agentName == "" {
		agentName = cfg.Agent
	}
	if model == "" {
		model = cfg.Model
	}

	loopCfg := agent.Config{
		Model:               model,
		AgentName:           agentName,
		AutoApprove:         cfg.AutoApprove,
		MaxRetries:          cfg.MaxRetries,
		CompactionThreshold: cfg.CompactionThreshold,
	}
	// An approver implies interactive gating.
	if approver != nil {
		loopCfg.AutoApprove = false
	}

	opts := agent.LoopOptions{
		Config:   loopCfg,
		Provider: provider,
		Approver: approver,
	}
	if manager != nil {
		opts.External = manager
	}
	loop, err := agent.NewLoop(opts)
	if err != nil {
		if manager != nil {
			manager.ShutdownAll()
		}
		lg.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		observability.EnsureRegistered()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warn().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint failed")
			}
		}()
	}

	return &harness{
		cfg:     cfg,
		log:     lg,
		store:   store,
		manager: manager,
		loop:    loop,
		cleanup: cleanup,
	}, nil
}

// close persists the session and releases resources.
func (h *harness) close() {
	if err := h.store.Save(h.loop.Session()); err != nil {
		log.Warn().Err(err).Msg("failed to persist session")
	}
	if h.cleanup != nil {
		h.cleanup.Stop()
	}
	h.loop.Shutdown()
	h.log.Close()
}
