// Package mcp exposes the ingested legislative data over the Model Context
// Protocol. Each tool is a read-only query; nothing here can write to the
// database or reach the upstream APIs.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opendiscourse/opendiscourse/internal/tools"
)

// Server wraps the MCP SDK server and the query tool kit.
type Server struct {
	mcpServer *mcp.Server
	kit       *tools.Kit
	name      string
	version   string
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	Querier tools.Querier
}

// NewServer creates an MCP server with all query tools registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}

	kit, err := tools.NewKit(cfg.Querier, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create kit: %w", err)
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		kit:       kit,
		name:      cfg.Name,
		version:   cfg.Version,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Run starts the MCP server on the given transport. Blocking; it handles
// all protocol communication until the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	countsSchema, err := jsonschema.For[tools.DatasetCountsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for datasetCounts: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "datasetCounts",
		Description: "Report row counts for the ingested legislative data tables.",
		InputSchema: countsSchema,
	}, s.DatasetCounts)

	recentSchema, err := jsonschema.For[tools.RecentBillsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for recentBills: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "recentBills",
		Description: "List the most recently introduced federal bills, optionally filtered by congress number.",
		InputSchema: recentSchema,
	}, s.RecentBills)

	stateSchema, err := jsonschema.For[tools.StateBillsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for stateBills: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "stateBills",
		Description: "List state legislature bills by latest action, optionally filtered by jurisdiction and session.",
		InputSchema: stateSchema,
	}, s.StateBills)

	packagesSchema, err := jsonschema.For[tools.RecordPackagesInput](nil)
	if err != nil {
		return fmt.Errorf("schema for recordPackages: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "recordPackages",
		Description: "List stored Congressional Record packages, newest first, optionally bounded by issue date.",
		InputSchema: packagesSchema,
	}, s.RecordPackages)

	runsSchema, err := jsonschema.For[tools.RunStatsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for runStats: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "runStats",
		Description: "List recorded ingestion runs with their counters, newest first, optionally filtered by dataset.",
		InputSchema: runsSchema,
	}, s.RunStats)

	return nil
}

// DatasetCounts handles the datasetCounts MCP tool call.
func (s *Server) DatasetCounts(ctx context.Context, req *mcp.CallToolRequest, in tools.DatasetCountsInput) (*mcp.CallToolResult, any, error) {
	counts, err := s.kit.DatasetCounts(ctx, in)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return dataResult(counts), nil, nil
}

// RecentBills handles the recentBills MCP tool call.
func (s *Server) RecentBills(ctx context.Context, req *mcp.CallToolRequest, in tools.RecentBillsInput) (*mcp.CallToolResult, any, error) {
	bills, err := s.kit.RecentBills(ctx, in)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return dataResult(bills), nil, nil
}

// StateBills handles the stateBills MCP tool call.
func (s *Server) StateBills(ctx context.Context, req *mcp.CallToolRequest, in tools.StateBillsInput) (*mcp.CallToolResult, any, error) {
	bills, err := s.kit.StateBills(ctx, in)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return dataResult(bills), nil, nil
}

// RecordPackages handles the recordPackages MCP tool call.
func (s *Server) RecordPackages(ctx context.Context, req *mcp.CallToolRequest, in tools.RecordPackagesInput) (*mcp.CallToolResult, any, error) {
	packages, err := s.kit.RecordPackages(ctx, in)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return dataResult(packages), nil, nil
}

// RunStats handles the runStats MCP tool call.
func (s *Server) RunStats(ctx context.Context, req *mcp.CallToolRequest, in tools.RunStatsInput) (*mcp.CallToolResult, any, error) {
	runs, err := s.kit.RunStats(ctx, in)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return dataResult(runs), nil, nil
}

// dataResult renders data as one JSON text block; clients parse it.
func dataResult(data any) *mcp.CallToolResult {
	b, err := json.Marshal(data)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "marshal error"}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}
