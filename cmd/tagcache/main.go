// Package main implements a tool that replays database snapshots against
// the tag cache and verifies its ledger.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/cli"
	"github.com/IDAPluginProject/ida-minsc/internal/config"
	"github.com/IDAPluginProject/ida-minsc/internal/hook"
	"github.com/IDAPluginProject/ida-minsc/internal/hooks"
	"github.com/IDAPluginProject/ida-minsc/internal/host"
	"github.com/IDAPluginProject/ida-minsc/internal/host/mock"
	"github.com/IDAPluginProject/ida-minsc/internal/options"
	"github.com/IDAPluginProject/ida-minsc/internal/snapshot"
	"github.com/IDAPluginProject/ida-minsc/internal/tagcache"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	opts, err := cli.ParseFlags()
	if err != nil {
		logger := config.CreateLogger(opts.Debug, opts.Quiet)
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			printBanner(opts)
			usageErr.ShowUsage()
		} else {
			logger.Error(err.Error())
		}
		os.Exit(1)
	}

	logger := config.CreateLogger(opts.Debug, opts.Quiet)
	printBanner(opts)

	if err := run(logger, opts); err != nil {
		logger.Fatal("processing snapshot failed", log.Err(err))
	}
}

func printBanner(opts options.Program) {
	if opts.Quiet {
		return
	}
	fmt.Println("[----------------------------------------]")
	fmt.Println("[ tagcache - database tag cache verifier ]")
	fmt.Printf("[----------------------------------------]\n\n")
	fmt.Printf("version: %s\n\n", buildinfo.Version(version, commit, date))
}

func run(logger *log.Logger, opts options.Program) error {
	snap, err := snapshot.Load(opts.Snapshot)
	if err != nil {
		return err
	}

	store, err := config.OpenStore(opts, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store failed", log.Err(err))
		}
	}()

	registry := hook.NewRegistry(logger)
	db := mock.New(registry, host.Bounds{Start: snap.Bounds.Start, End: snap.Bounds.End})
	globals := tagcache.NewGlobals(logger, store)
	contents := tagcache.NewContents(logger, store, func(ea uint64) (uint64, bool) {
		if db.IsExternal(ea) {
			return 0, false
		}
		return db.FunctionAt(ea)
	})

	cache := hooks.New(logger, db, registry, globals, contents,
		hooks.Options{ForceMergeStrays: opts.MergeStrays})
	cache.Attach()
	cache.SetProgress(func(done, total int) {
		if opts.Debug {
			logger.Debug("cache build progress",
				log.Int("done", done), log.Int("total", total))
		}
	})

	db.Init()
	if err := snap.Seed(db); err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}
	db.Loaded()

	if err := snap.Replay(db); err != nil {
		return fmt.Errorf("replaying edits: %w", err)
	}

	if opts.Dump {
		return dumpLedger(globals, contents)
	}
	return nil
}

// dumpLedger prints the reference counts of both ledger namespaces.
func dumpLedger(globals *tagcache.Globals, contents *tagcache.Contents) error {
	fmt.Println("globals:")
	keys := globals.Keys()
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %d\n", name, keys[name])
	}

	if err := globals.Iterate(func(ea, count uint64) error {
		fmt.Printf("  %#x: %d\n", ea, count)
		return nil
	}); err != nil {
		return fmt.Errorf("iterating globals: %w", err)
	}

	fmt.Println("contents:")
	if err := contents.Iterate(func(fn uint64, state *tagcache.State) error {
		fmt.Printf("  function %#x:\n", fn)
		keyNames := make([]string, 0, len(state.Keys))
		for name := range state.Keys {
			keyNames = append(keyNames, name)
		}
		sort.Strings(keyNames)
		for _, name := range keyNames {
			fmt.Printf("    %s: %d\n", name, state.Keys[name])
		}
		return nil
	}); err != nil {
		return fmt.Errorf("iterating contents: %w", err)
	}
	return nil
}
