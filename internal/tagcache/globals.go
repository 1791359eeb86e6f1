// Package tagcache maintains the reference-count ledger that tracks how
// many addresses carry each tag key, split into a globals namespace for
// addresses outside of functions and a contents namespace keyed by the
// owning function.
package tagcache

import (
	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/netnode"
)

// store nodes of the globals namespace. Key counts are keyed by tag
// name, address counts by address.
const (
	globalsKeysNode      = "tagcache.globals.keys"
	globalsAddressesNode = "tagcache.globals.addresses"
)

// Globals counts tag keys on addresses that are not owned by a function.
// Function-level tags (on the function's entry address) are also
// accounted here.
type Globals struct {
	logger *log.Logger
	store  netnode.Store
}

// NewGlobals creates the globals namespace of the ledger on top of a
// store.
func NewGlobals(logger *log.Logger, store netnode.Store) *Globals {
	return &Globals{
		logger: logger,
		store:  store,
	}
}

// Inc increments the reference count of a tag key at an address and
// returns the new count for the key. The first occurrence makes the key
// tracked.
func (g *Globals) Inc(ea uint64, key string) uint64 {
	count, _ := g.adjustKey(key, 1)
	g.adjustAddress(ea, 1)
	return count
}

// Dec decrements the reference count of a tag key at an address and
// returns the new count. Decrementing below zero clamps at zero and is
// reported, reaching zero untracks the key. A clamped decrement leaves
// the per-address count alone so the two halves of the ledger stay in
// step.
func (g *Globals) Dec(ea uint64, key string) uint64 {
	count, ok := g.adjustKey(key, -1)
	if ok {
		g.adjustAddress(ea, -1)
	}
	return count
}

// Count returns the reference count tracked for a tag key.
func (g *Globals) Count(key string) uint64 {
	value, err := g.store.Get(globalsKeysNode, []byte(key))
	if err != nil {
		g.logger.Error("reading global key count failed",
			log.String("key", key), log.Err(err))
		return 0
	}
	return netnode.ValueCount(value)
}

// Keys returns all tracked tag keys with their counts.
func (g *Globals) Keys() map[string]uint64 {
	keys := map[string]uint64{}
	err := g.store.Scan(globalsKeysNode, func(key, value []byte) error {
		keys[string(key)] = netnode.ValueCount(value)
		return nil
	})
	if err != nil {
		g.logger.Error("scanning global key counts failed", log.Err(err))
	}
	return keys
}

// AddressCount returns the number of tags accounted at an address.
func (g *Globals) AddressCount(ea uint64) uint64 {
	value, err := g.store.Get(globalsAddressesNode, netnode.AddressKey(ea))
	if err != nil {
		g.logger.Error("reading global address count failed",
			log.Hex("address", ea), log.Err(err))
		return 0
	}
	return netnode.ValueCount(value)
}

// Iterate visits every tagged address with its tag count in address
// order.
func (g *Globals) Iterate(fn func(ea uint64, count uint64) error) error {
	return g.store.Scan(globalsAddressesNode, func(key, value []byte) error {
		return fn(netnode.KeyAddress(key), netnode.ValueCount(value))
	})
}

// SetAddressCount overwrites the tag count stored for an address. It is
// used by relocation jobs to re-key entries; a zero count removes the
// entry. It reports whether the store accepted the update.
func (g *Globals) SetAddressCount(ea uint64, count uint64) bool {
	var err error
	if count == 0 {
		err = g.store.Remove(globalsAddressesNode, netnode.AddressKey(ea))
	} else {
		err = g.store.Set(globalsAddressesNode, netnode.AddressKey(ea), netnode.CountValue(count))
	}
	if err != nil {
		g.logger.Error("storing global address count failed",
			log.Hex("address", ea), log.Err(err))
		return false
	}
	return true
}

// RemoveAddress drops the per-address entry, returning its previous
// count. It reports whether the store accepted the removal.
func (g *Globals) RemoveAddress(ea uint64) (uint64, bool) {
	count := g.AddressCount(ea)
	if err := g.store.Remove(globalsAddressesNode, netnode.AddressKey(ea)); err != nil {
		g.logger.Error("removing global address count failed",
			log.Hex("address", ea), log.Err(err))
		return count, false
	}
	return count, true
}

// adjustKey applies a delta to a key count and reports whether it was
// applied. A decrement of an untracked key underflows and is rejected.
func (g *Globals) adjustKey(key string, delta int64) (uint64, bool) {
	count := g.Count(key)
	if delta < 0 && count == 0 {
		g.logger.Error("reference count underflow for global tag",
			log.String("key", key))
		return 0, false
	}
	count = applyDelta(count, delta)

	var err error
	if count == 0 {
		err = g.store.Remove(globalsKeysNode, []byte(key))
	} else {
		err = g.store.Set(globalsKeysNode, []byte(key), netnode.CountValue(count))
	}
	if err != nil {
		g.logger.Error("storing global key count failed",
			log.String("key", key), log.Err(err))
	}
	return count, true
}

func (g *Globals) adjustAddress(ea uint64, delta int64) {
	count := applyDelta(g.AddressCount(ea), delta)

	var err error
	if count == 0 {
		err = g.store.Remove(globalsAddressesNode, netnode.AddressKey(ea))
	} else {
		err = g.store.Set(globalsAddressesNode, netnode.AddressKey(ea), netnode.CountValue(count))
	}
	if err != nil {
		g.logger.Error("storing global address count failed",
			log.Hex("address", ea), log.Err(err))
	}
}

// applyDelta adjusts a count, clamping at zero.
func applyDelta(count uint64, delta int64) uint64 {
	if delta >= 0 {
		return count + uint64(delta)
	}
	dec := uint64(-delta)
	if count < dec {
		return 0
	}
	return count - dec
}
