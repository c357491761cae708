package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/inquest/internal/agent"
	"github.com/dusk-indust/inquest/internal/config"
	"github.com/dusk-indust/inquest/internal/orchestrator"
	"github.com/dusk-indust/inquest/internal/registry"
)

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zcfg.Build()
}

// wireCore loads configuration and assembles the orchestration core: the
// lease registry (Redis-backed when configured), the remote investigator
// registry, and the session scheduler.
func wireCore(ctx context.Context, flags cliFlags, logger *zap.Logger) (*orchestrator.Core, *config.Config, error) {
	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	agents, err := discoverAgents(ctx, flags.Agents)
	if err != nil {
		return nil, nil, err
	}

	var locker registry.Locker = registry.NewMemLocker()
	if cfg.RedisURL != "" {
		client, err := registry.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		locker = registry.NewRedisLocker(client)
	}

	reg := registry.New(locker, cfg.LeaseTTL.Duration, logger)
	return orchestrator.NewCore(cfg, agents, reg, logger), cfg, nil
}

// discoverAgents probes each remote base URL for its investigator kind and
// registers a remote adapter factory under it.
func discoverAgents(ctx context.Context, list string) (*agent.Registry, error) {
	agents := agent.NewRegistry()
	if list == "" {
		return agents, nil
	}
	hc := &http.Client{Timeout: 10 * time.Second}
	for _, raw := range strings.Split(list, ",") {
		endpoint := strings.TrimSpace(raw)
		if endpoint == "" {
			continue
		}
		kind, err := agent.Discover(ctx, hc, endpoint)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", endpoint, err)
		}
		if err := agents.Register(kind, func() agent.Adapter {
			return agent.NewRemote(endpoint, kind)
		}); err != nil {
			return nil, err
		}
	}
	return agents, nil
}
