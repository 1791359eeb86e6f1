// Package cli handles command line interface logic
package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/IDAPluginProject/ida-minsc/internal/options"
)

// ParseFlags parses command line flags and returns the program options.
func ParseFlags() (options.Program, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	var opts options.Program
	readOptionFlags(flags, &opts)

	err := flags.Parse(os.Args[1:])
	args := flags.Args()
	if err != nil || len(args) == 0 {
		return opts, &UsageError{flags: flags}
	}

	if err := validateArgs(args); err != nil {
		return opts, err
	}
	opts.Snapshot = args[0]

	return opts, nil
}

// UsageError represents an error that should show usage information.
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	return e.msg
}

func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: tagcache [options] <database snapshot file>\n\n")
	e.flags.PrintDefaults()
	fmt.Println()
}

// validateArgs checks if arguments are in correct order
func validateArgs(args []string) error {
	for i, arg := range args {
		if i > 0 && arg[0] == '-' {
			return &UsageError{
				msg: fmt.Sprintf("Potential argument %s found after the snapshot file, please pass the snapshot file as last argument", arg),
			}
		}
	}
	return nil
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.StringVar(&opts.Database, "db", "", "directory of the persistent tag cache, uses an in-memory cache if not given")
	flags.BoolVar(&opts.Dump, "dump", false, "print the tag ledger after processing the snapshot")
	flags.BoolVar(&opts.MergeStrays, "merge-strays", false, "merge stray cache entries into their owning function during relocation")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
}
