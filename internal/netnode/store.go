// Package netnode provides the low-level key-addressed store that
// persists derived metadata such as the tag cache.
package netnode

import "encoding/binary"

// Store is a synchronous key-value store partitioned into named nodes.
// Keys within a node are ordered bytewise.
type Store interface {
	// Get returns the value stored for the key, or nil if absent.
	Get(node string, key []byte) ([]byte, error)
	// Set stores the value for the key, replacing any previous value.
	Set(node string, key, value []byte) error
	// Remove deletes the key. Removing an absent key is not an error.
	Remove(node string, key []byte) error
	// Scan visits every key of the node in key order. Returning an error
	// from the callback stops the scan and is returned as is.
	Scan(node string, fn func(key, value []byte) error) error
	// Close releases the underlying storage.
	Close() error
}

// AddressKey encodes an address as a store key preserving numeric order.
func AddressKey(ea uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, ea)
	return key
}

// KeyAddress decodes a key produced by AddressKey.
func KeyAddress(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

// CountValue encodes a reference count for storage.
func CountValue(count uint64) []byte {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, count)
	return value
}

// ValueCount decodes a reference count stored by CountValue.
func ValueCount(value []byte) uint64 {
	if len(value) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(value)
}
