// Package config handles application configuration and setup
package config

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/netnode"
	"github.com/IDAPluginProject/ida-minsc/internal/options"
)

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

// OpenStore opens the key value store backing the tag cache, persistent
// in the configured directory or in memory if none is configured.
func OpenStore(opts options.Program, logger *log.Logger) (netnode.Store, error) {
	if opts.Database == "" {
		store, err := netnode.OpenInMemory(logger)
		if err != nil {
			return nil, fmt.Errorf("opening in-memory store: %w", err)
		}
		return store, nil
	}

	store, err := netnode.Open(opts.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store in '%s': %w", opts.Database, err)
	}
	return store, nil
}
