package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/config"
	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/mcp"
	"github.com/fyrsmithlabs/vecfs/internal/services"
)

// runMCP serves the vector fs as MCP tools on stdio until ctx ends or the
// client disconnects. Logs go to stderr.
func runMCP(ctx context.Context, configPath string) error {
	d, err := bootstrap(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer d.close()

	requester, err := mcpRequester(d.cfg)
	if err != nil {
		return err
	}

	reg, err := services.Build(ctx, d.cfg, d.logger.Underlying())
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			d.logger.Warn(ctx, "closing services", zap.Error(err))
		}
	}()

	srv, err := mcp.NewServer(mcp.Config{
		Version:   version,
		Requester: requester,
		Redactor:  reg.Redactor(),
		Logger:    d.logger.Underlying().Named("mcp"),
	}, reg.VectorFS())
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return srv.Run(ctx)
}

// mcpRequester returns the configured requester, or the first configured
// profile when none is set.
func mcpRequester(cfg *config.Config) (identity.Name, error) {
	if cfg.MCP.Requester != "" {
		name, err := identity.Parse(cfg.MCP.Requester)
		if err != nil {
			return identity.Name{}, fmt.Errorf("parsing mcp requester: %w", err)
		}
		return name, nil
	}

	node, err := identity.Parse(cfg.VectorFS.NodeName)
	if err != nil {
		return identity.Name{}, fmt.Errorf("parsing node name: %w", err)
	}
	profiles, err := services.ParseProfiles(node, cfg.VectorFS.Profiles)
	if err != nil {
		return identity.Name{}, err
	}
	if len(profiles) == 0 {
		return identity.Name{}, fmt.Errorf("mcp.requester or vectorfs.profiles must be set")
	}
	return profiles[0], nil
}
