// Package cmd provides the opendiscourse CLI commands.
//
// Commands:
//   - ingest-congress: federal bills from Congress.gov
//   - ingest-govinfo: Congressional Record from GovInfo.gov
//   - ingest-openstates: state legislature bills from OpenStates.org
//   - verify-keys: probe each configured upstream API key
//   - migrate: apply pending database migrations
//   - mcp: Model Context Protocol server over the ingested data
//
// Signal handling and graceful shutdown are implemented for all commands via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the opendiscourse CLI.
func Execute() error {
	// Initialize logger once at entry point. Progress goes to stderr so
	// stdout stays clean for summaries and MCP stdio.
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "ingest-congress":
		return runIngestCongress(args)
	case "ingest-govinfo":
		return runIngestGovInfo(args)
	case "ingest-openstates":
		return runIngestOpenStates(args)
	case "verify-keys":
		return runVerifyKeys(args)
	case "migrate":
		return runMigrate(args)
	case "mcp":
		return runMCP()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("opendiscourse - legislative data ingestion")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  opendiscourse ingest-congress --congress 118 [--bill-type hr] [--skip-details]")
	fmt.Println("  opendiscourse ingest-govinfo --start-date 2024-01-01 [--end-date 2024-01-31] [--skip-granules]")
	fmt.Println("  opendiscourse ingest-openstates --jurisdiction ca [--session 20232024] [--chamber upper] [--updated-since 2024-01-01]")
	fmt.Println("  opendiscourse verify-keys")
	fmt.Println("  opendiscourse migrate")
	fmt.Println("  opendiscourse mcp")
	fmt.Println("  opendiscourse --version")
	fmt.Println("  opendiscourse --help")
	fmt.Println()
	fmt.Println("All ingest commands accept --api-key and --database-url overrides.")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  CONGRESS_API_KEY    Congress.gov API key")
	fmt.Println("  GOVINFO_API_KEY     GovInfo.gov API key")
	fmt.Println("  OPENSTATES_API_KEY  OpenStates.org API key")
	fmt.Println("  DATABASE_URL        PostgreSQL connection URL")
	fmt.Println("  DEBUG               Enable debug logging")
}
