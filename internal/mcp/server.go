// Package mcp implements the MCP (Model Context Protocol) server for idlocker.
// Agents can browse the vault but never receive sensitive field values in
// plaintext, and they cannot change anything.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/PRATHAM1ST/IdLocker-sub001/internal/app"
	"github.com/PRATHAM1ST/IdLocker-sub001/internal/config"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/audit"
)

// Version is reported to MCP clients.
const Version = "0.3.0"

// Server represents the MCP server for idlocker.
type Server struct {
	server *mcp.Server
	app    *app.App
	logger *slog.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Home is the vault directory. If empty, config.Home() is used.
	Home string

	// Password is the master password for the vault.
	// If empty, the server reads IDLOCKER_PASSWORD from the environment.
	Password string

	Logger *slog.Logger
}

// NewServer opens and unlocks the vault and registers the tools.
func NewServer(ctx context.Context, opts *ServerOptions) (*Server, error) {
	if opts == nil {
		opts = &ServerOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	home := opts.Home
	if home == "" {
		var err error
		if home, err = config.Home(); err != nil {
			return nil, err
		}
	}

	password := opts.Password
	if password == "" {
		password = os.Getenv(config.EnvPassword)
		// Child processes must not inherit it.
		os.Unsetenv(config.EnvPassword)
	}
	if password == "" {
		return nil, fmt.Errorf("no password provided: set %s environment variable", config.EnvPassword)
	}

	a, err := app.Open(ctx, home, app.WithLogger(logger), app.WithSource(audit.SourceMCP))
	if err != nil {
		return nil, err
	}
	if err := a.Unlock(ctx, password); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to unlock vault: %w", err), a.Close(ctx))
	}
	if err := a.LoadErr(); err != nil {
		logger.Warn("vault items could not be loaded; serving an empty vault", "error", err)
	}
	return newServer(a, logger), nil
}

func newServer(a *app.App, logger *slog.Logger) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: "idlocker", Version: Version}, nil),
		app:    a,
		logger: logger,
	}
	s.registerTools()
	return s
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vault_search",
		Description: "Search vault items by label, field value or the last digits of a card or account number. Returns item summaries with sensitive values masked.",
	}, s.handleVaultSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vault_get_item",
		Description: "Get one vault item by id with its fields and attachment metadata. Sensitive values are masked (e.g. '****1234').",
	}, s.handleVaultGetItem)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "asset_list",
		Description: "List stored attachments with their type, size and reference count, optionally only those of one item. Does NOT return file content.",
	}, s.handleAssetList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "category_list",
		Description: "List item categories and their field schemas.",
	}, s.handleCategoryList)
}

// Run serves MCP over stdio until ctx ends, then locks and closes the vault.
func (s *Server) Run(ctx context.Context) error {
	err := s.server.Run(ctx, &mcp.StdioTransport{})
	return errors.Join(err, s.app.Close(context.WithoutCancel(ctx)))
}
