// Package config assembles the small immutable runtime configuration the
// core protocol engine and CLI need, threaded explicitly instead of held in
// package-level globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RuntimeConfig is threaded explicitly to every component that needs it,
// rather than read from package-level globals.
type RuntimeConfig struct {
	Verbose     bool
	Interactive bool
	PktSize     int
	Timeout     time.Duration
	StatusAddr  string
}

// defaults matches the BootROM/DA device descriptor's reported packet size
// and a bulk-transfer timeout generous enough for 1 MiB chunk transfers
// (spec.md §5).
func defaults() RuntimeConfig {
	return RuntimeConfig{
		Verbose:     false,
		Interactive: true,
		PktSize:     64,
		Timeout:     30 * time.Second,
		StatusAddr:  "",
	}
}

// Option customizes a RuntimeConfig built by Load.
type Option func(*RuntimeConfig)

// WithVerbose sets verbose tracing, mirroring the CLI's -v/--verbose flag.
func WithVerbose(v bool) Option { return func(c *RuntimeConfig) { c.Verbose = v } }

// WithInteractive sets whether to wait for Enter before exiting, mirroring
// -n/--no-interactive (inverted).
func WithInteractive(v bool) Option { return func(c *RuntimeConfig) { c.Interactive = v } }

// WithStatusAddr sets the local status HTTP listen address (empty disables
// it), mirroring -status-addr.
func WithStatusAddr(addr string) Option { return func(c *RuntimeConfig) { c.StatusAddr = addr } }

// Load builds a RuntimeConfig by layering compiled-in defaults, then
// environment variable overrides, then the supplied functional options —
// in that order, so CLI flags (passed as options) always win.
func Load(opts ...Option) (RuntimeConfig, error) {
	cfg := defaults()

	if v := os.Getenv("MTKFLASH_PKTSIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("MTKFLASH_PKTSIZE: %w", err)
		}
		cfg.PktSize = n
	}
	if v := os.Getenv("MTKFLASH_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("MTKFLASH_TIMEOUT_MS: %w", err)
		}
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg, nil
}
