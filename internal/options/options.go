// Package options contains the program options.
package options

// Program options of the tag cache tool.
type Program struct {
	Snapshot string // database snapshot file to load

	Database    string // tag cache directory, in-memory when empty
	Dump        bool   // print the ledger after processing
	MergeStrays bool   // merge stray cache entries during relocation

	Debug bool
	Quiet bool
}
