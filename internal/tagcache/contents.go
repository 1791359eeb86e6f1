package tagcache

import (
	"encoding/json"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/netnode"
)

// contentsNode stores one serialized shard per function, keyed by the
// function's entry address. Sharding bounds the size of any single
// store entry to one function's worth of tags.
const contentsNode = "tagcache.contents"

// shardCacheSize bounds the number of deserialized shards kept in
// memory. Writes go through to the store.
const shardCacheSize = 128

// OwnerResolver returns the entry address of the function owning an
// address.
type OwnerResolver func(ea uint64) (uint64, bool)

// State is the ledger shard of a single function: reference counts per
// tag key plus the index of tagged addresses with their tag counts.
type State struct {
	Keys      map[string]uint64 `json:"keys"`
	Addresses map[uint64]uint64 `json:"addresses"`
}

func newState() *State {
	return &State{
		Keys:      map[string]uint64{},
		Addresses: map[uint64]uint64{},
	}
}

func (s *State) empty() bool {
	return len(s.Keys) == 0 && len(s.Addresses) == 0
}

// Contents counts tag keys on addresses owned by functions, one shard
// per owning function.
type Contents struct {
	logger  *log.Logger
	store   netnode.Store
	resolve OwnerResolver

	cache *lru.Cache[uint64, *State]
}

// NewContents creates the contents namespace of the ledger. The
// resolver locates the owning function when callers do not supply one.
func NewContents(logger *log.Logger, store netnode.Store, resolve OwnerResolver) *Contents {
	cache, _ := lru.New[uint64, *State](shardCacheSize)
	return &Contents{
		logger:  logger,
		store:   store,
		resolve: resolve,
		cache:   cache,
	}
}

// Inc increments the reference count of a tag key at an address within
// the owning function resolved from the address.
func (c *Contents) Inc(ea uint64, key string) uint64 {
	fn, ok := c.resolve(ea)
	if !ok {
		c.logger.Error("no owning function for contents tag",
			log.Hex("address", ea), log.String("key", key))
		return 0
	}
	return c.IncFor(fn, ea, key)
}

// IncFor increments the reference count of a tag key at an address
// within the shard of the given function.
func (c *Contents) IncFor(fn, ea uint64, key string) uint64 {
	state := c.ReadState(fn)
	if state == nil {
		state = newState()
	}

	state.Keys[key]++
	state.Addresses[ea]++
	count := state.Keys[key]

	c.WriteState(fn, state)
	return count
}

// Dec decrements the reference count of a tag key at an address within
// the owning function resolved from the address.
func (c *Contents) Dec(ea uint64, key string) uint64 {
	fn, ok := c.resolve(ea)
	if !ok {
		c.logger.Error("no owning function for contents tag",
			log.Hex("address", ea), log.String("key", key))
		return 0
	}
	return c.DecFor(fn, ea, key)
}

// DecFor decrements the reference count of a tag key at an address
// within the shard of the given function. Decrementing below zero
// clamps at zero and is reported, reaching zero untracks the key. A
// clamped decrement leaves the per-address count alone so the two
// halves of the shard stay in step.
func (c *Contents) DecFor(fn, ea uint64, key string) uint64 {
	state := c.ReadState(fn)
	if state == nil {
		c.logger.Error("reference count underflow for contents tag",
			log.Hex("function", fn), log.Hex("address", ea), log.String("key", key))
		return 0
	}

	if state.Keys[key] == 0 {
		c.logger.Error("reference count underflow for contents tag",
			log.Hex("function", fn), log.Hex("address", ea), log.String("key", key))
		return 0
	}

	state.Keys[key]--
	if state.Keys[key] == 0 {
		delete(state.Keys, key)
	}

	if state.Addresses[ea] > 0 {
		state.Addresses[ea]--
	}
	if state.Addresses[ea] == 0 {
		delete(state.Addresses, ea)
	}

	count := state.Keys[key]
	c.WriteState(fn, state)
	return count
}

// Keys returns the tracked tag keys of a function with their counts.
func (c *Contents) Keys(fn uint64) map[string]uint64 {
	state := c.ReadState(fn)
	if state == nil {
		return map[string]uint64{}
	}

	keys := make(map[string]uint64, len(state.Keys))
	for key, count := range state.Keys {
		keys[key] = count
	}
	return keys
}

// Count returns the reference count of a tag key within a function.
func (c *Contents) Count(fn uint64, key string) uint64 {
	state := c.ReadState(fn)
	if state == nil {
		return 0
	}
	return state.Keys[key]
}

// Addresses returns the tagged addresses of a function in ascending
// order.
func (c *Contents) Addresses(fn uint64) []uint64 {
	state := c.ReadState(fn)
	if state == nil {
		return nil
	}

	addresses := make([]uint64, 0, len(state.Addresses))
	for ea := range state.Addresses {
		addresses = append(addresses, ea)
	}
	slices.Sort(addresses)
	return addresses
}

// Iterate visits every function shard in function address order.
func (c *Contents) Iterate(fn func(function uint64, state *State) error) error {
	return c.store.Scan(contentsNode, func(key, value []byte) error {
		state := &State{}
		if err := json.Unmarshal(value, state); err != nil {
			c.logger.Error("corrupt contents shard",
				log.Hex("function", netnode.KeyAddress(key)), log.Err(err))
			return nil
		}
		return fn(netnode.KeyAddress(key), state)
	})
}

// ReadState loads the shard of a function, or nil if none is stored.
func (c *Contents) ReadState(fn uint64) *State {
	if state, ok := c.cache.Get(fn); ok {
		return state
	}

	value, err := c.store.Get(contentsNode, netnode.AddressKey(fn))
	if err != nil {
		c.logger.Error("reading contents shard failed",
			log.Hex("function", fn), log.Err(err))
		return nil
	}
	if value == nil {
		return nil
	}

	state := &State{}
	if err := json.Unmarshal(value, state); err != nil {
		c.logger.Error("corrupt contents shard",
			log.Hex("function", fn), log.Err(err))
		return nil
	}
	if state.Keys == nil {
		state.Keys = map[string]uint64{}
	}
	if state.Addresses == nil {
		state.Addresses = map[uint64]uint64{}
	}

	c.cache.Add(fn, state)
	return state
}

// WriteState stores the shard of a function. A nil or empty state
// removes the shard. It reports whether the store accepted the update.
func (c *Contents) WriteState(fn uint64, state *State) bool {
	if state == nil || state.empty() {
		c.cache.Remove(fn)
		if err := c.store.Remove(contentsNode, netnode.AddressKey(fn)); err != nil {
			c.logger.Error("removing contents shard failed",
				log.Hex("function", fn), log.Err(err))
			return false
		}
		return true
	}

	value, err := json.Marshal(state)
	if err != nil {
		c.logger.Error("serializing contents shard failed",
			log.Hex("function", fn), log.Err(err))
		return false
	}
	if err := c.store.Set(contentsNode, netnode.AddressKey(fn), value); err != nil {
		c.logger.Error("writing contents shard failed",
			log.Hex("function", fn), log.Err(err))
		return false
	}

	c.cache.Add(fn, state)
	return true
}
