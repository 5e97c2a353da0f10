package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/session"
)

// Server serves drawing tools backed by a session manager.
type Server struct {
	mcp      *mcp.Server
	sessions *session.Manager
	metrics  *Metrics
	logger   *zap.Logger

	mu        sync.Mutex
	defaultID string
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "sketchd")
	Name string
	// Version is the server version (default: "dev")
	Version string
	Logger  *zap.Logger
	// SessionID pins the default session. Empty creates one on first use.
	SessionID string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "sketchd",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server with every drawing tool registered.
func NewServer(cfg *Config, sessions *session.Manager) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	s := &Server{
		mcp:       mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		sessions:  sessions,
		metrics:   NewMetrics(cfg.Logger),
		logger:    cfg.Logger.Named("mcp"),
		defaultID: cfg.SessionID,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx ends or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single client on t. Used with in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// resolve returns id, or the default session's id.
func (s *Server) resolve(ctx context.Context, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.defaultID != "" {
		return s.defaultID, nil
	}
	sess, err := s.sessions.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("creating default session: %w", err)
	}
	s.defaultID = sess.ID
	s.logger.Info("default session created", zap.String("session_id", sess.ID))
	return s.defaultID, nil
}
