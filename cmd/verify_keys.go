package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/opendiscourse/opendiscourse/internal/congress"
	"github.com/opendiscourse/opendiscourse/internal/govinfo"
	"github.com/opendiscourse/opendiscourse/internal/openstates"
)

// keyStatus is the verification outcome for one upstream.
type keyStatus int

const (
	keyNotConfigured keyStatus = iota
	keyValid
	keyInvalid
)

// runVerifyKeys probes every configured upstream API key with a minimal
// request. Exit is non-zero when any configured key fails, or when no key is
// configured at all.
func runVerifyKeys(args []string) error {
	fs := flag.NewFlagSet("verify-keys", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rule := strings.Repeat("=", 80)
	fmt.Printf("\n%s\nAPI KEY VERIFICATION\n%s\n\n", rule, rule)

	type upstream struct {
		name  string
		key   string
		probe func(context.Context, string) error
	}
	upstreams := []upstream{
		{"GovInfo", cfg.GovInfoAPIKey, func(ctx context.Context, key string) error {
			return govinfo.New(key, slog.Default(),
				govinfo.WithHTTPOptions(httpTimeout(cfg), cfg.MaxRetries)).Probe(ctx)
		}},
		{"Congress", cfg.CongressAPIKey, func(ctx context.Context, key string) error {
			return congress.New(key, slog.Default(),
				congress.WithHTTPOptions(httpTimeout(cfg), cfg.MaxRetries)).Probe(ctx)
		}},
		{"OpenStates", cfg.OpenStatesAPIKey, func(ctx context.Context, key string) error {
			return openstates.New(key, slog.Default(),
				openstates.WithHTTPOptions(httpTimeout(cfg), cfg.MaxRetries)).Probe(ctx)
		}},
	}

	results := make(map[string]keyStatus, len(upstreams))
	for _, u := range upstreams {
		if u.key == "" {
			slog.Warn("API key not set", "upstream", u.name)
			results[u.name] = keyNotConfigured
			continue
		}
		slog.Info("verifying API key", "upstream", u.name)
		if err := u.probe(ctx, u.key); err != nil {
			slog.Error("API key verification failed", "upstream", u.name, "error", err)
			results[u.name] = keyInvalid
			continue
		}
		slog.Info("API key is valid", "upstream", u.name)
		results[u.name] = keyValid
	}

	fmt.Printf("\n%s\nVERIFICATION SUMMARY\n%s\n", rule, rule)
	for _, u := range upstreams {
		switch results[u.name] {
		case keyValid:
			fmt.Printf("  ✓ %s: Valid\n", u.name)
		case keyInvalid:
			fmt.Printf("  ✗ %s: Invalid\n", u.name)
		default:
			fmt.Printf("  ⚠ %s: Not configured\n", u.name)
		}
	}
	fmt.Printf("%s\n\n", rule)

	anyConfigured := false
	for _, status := range results {
		switch status {
		case keyInvalid:
			return errors.New("one or more API keys are invalid")
		case keyValid:
			anyConfigured = true
		}
	}
	if !anyConfigured {
		return errors.New("no API keys configured")
	}

	slog.Info("all configured API keys are valid")
	return nil
}
