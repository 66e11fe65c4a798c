package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opendiscourse/opendiscourse/internal/database"
	"github.com/opendiscourse/opendiscourse/internal/mcp"
)

// runMCP starts the MCP server on stdio transport, exposing read-only query
// tools over the ingested data.
func runMCP() error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting MCP server", "version", AppVersion)

	sink, err := database.Open(ctx, cfg.PostgresConnectionString(), slog.Default())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer sink.Close()

	server, err := mcp.NewServer(mcp.Config{
		Name:    "opendiscourse",
		Version: AppVersion,
		Querier: sink,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	slog.Info("MCP server ready", "name", "opendiscourse", "version", AppVersion, "transport", "stdio")

	if err := server.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	slog.Info("MCP server shut down gracefully")
	return nil
}
