// Package host defines the contract that the tag cache consumes from the
// disassembler host process.
package host

// DefaultColor is the color value of an item without a custom color.
const DefaultColor uint32 = 0xffffffff

// Extra comment line index bases. A comment block before an item starts
// at ExtraPrefixIndex, a block after it at ExtraSuffixIndex, and each
// block can span up to MaxExtraLines lines.
const (
	ExtraPrefixIndex = 1000
	ExtraSuffixIndex = 2000
	MaxExtraLines    = 1000
)

// Bounds describes a half-open address range [Start, End).
type Bounds struct {
	Start uint64
	End   uint64
}

// Contains returns whether the address lies within the bounds.
func (b Bounds) Contains(ea uint64) bool {
	return b.Start <= ea && ea < b.End
}

// Len returns the size of the range.
func (b Bounds) Len() uint64 {
	return b.End - b.Start
}

// Database is the read/write surface of the host's program database.
// All calls are synchronous, the host delivers mutation notifications on
// the same thread that performs the mutation.
type Database interface {
	// Bounds returns the valid address range of the database.
	Bounds() Bounds

	// Comment returns the comment text stored at an address.
	Comment(ea uint64, repeatable bool) string
	// SetComment stores the comment text at an address.
	SetComment(ea uint64, text string, repeatable bool) error

	// FunctionComment returns the comment of the function starting at fn.
	FunctionComment(fn uint64, repeatable bool) string
	// SetFunctionComment stores the comment of the function starting at fn.
	SetFunctionComment(fn uint64, text string, repeatable bool) error

	// TypeInfo returns the serialized type descriptor applied at an
	// address, or nil if none is applied.
	TypeInfo(ea uint64) []byte

	// Addresses returns the defined item addresses within the bounds in
	// ascending order.
	Addresses(bounds Bounds) []uint64

	// FunctionAt returns the entry address of the function owning ea.
	FunctionAt(ea uint64) (uint64, bool)
	// FunctionBounds returns the overall range of the function starting
	// at fn.
	FunctionBounds(fn uint64) (Bounds, bool)
	// Functions returns the entry addresses of all functions in
	// ascending order.
	Functions() []uint64
	// Chunks returns the chunk ranges owned by the function starting at
	// fn, the entry chunk first.
	Chunks(fn uint64) []Bounds
	// ChunkOwners returns the entry addresses of every function owning
	// the chunk that contains ea.
	ChunkOwners(ea uint64) []uint64

	// IsExternal reports whether the address belongs to a runtime-linked
	// (import) region. Such addresses are accounted as globals even when
	// the host materializes a function for them.
	IsExternal(ea uint64) bool

	// NameInfo reports whether the address carries an auto-generated
	// label and whether it carries a user-defined name.
	NameInfo(ea uint64) (label, custom bool)
	// Color returns the color applied to the item at the address, or
	// DefaultColor.
	Color(ea uint64) uint32
	// HasExtraComment reports whether an extra comment block exists
	// before (prefix) or after the item at the address.
	HasExtraComment(ea uint64, prefix bool) bool
}
