// Package mcp serves a VecFS node as Model Context Protocol tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the vector fs directly. Every tool call acts as the configured
// requester, so the usual read and write permissions apply.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/secrets"
	"github.com/fyrsmithlabs/vecfs/internal/vectorfs"
)

// Server exposes vector fs operations as MCP tools.
type Server struct {
	mcp       *mcp.Server
	fs        *vectorfs.VectorFS
	requester identity.Name
	redactor  *secrets.Redactor
	metrics   *Metrics
	logger    *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "vecfs")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Requester is the identity every tool call acts as. Required.
	Requester identity.Name

	// Redactor scrubs text saved through vecfs_save. Optional.
	Redactor *secrets.Redactor

	// Logger for structured logging
	Logger *zap.Logger
}

// NewServer creates an MCP server over fs.
func NewServer(cfg Config, fs *vectorfs.VectorFS) (*Server, error) {
	if fs == nil {
		return nil, errors.New("vector fs is required")
	}
	if cfg.Requester.IsZero() {
		return nil, errors.New("requester is required")
	}
	if cfg.Name == "" {
		cfg.Name = "vecfs"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		fs:        fs,
		requester: cfg.Requester,
		redactor:  cfg.Redactor,
		metrics:   NewMetrics(cfg.Logger),
		logger:    cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport",
		zap.String("requester", s.requester.String()))
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves one session on transport. It is used with in-memory
// transports.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
