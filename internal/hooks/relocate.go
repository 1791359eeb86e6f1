package hooks

import (
	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/hook"
	"github.com/IDAPluginProject/ida-minsc/internal/tagcache"
)

func (h *Hooks) segmentMoved(ev hook.Event) {
	e := ev.(hook.SegmentMovedEvent)
	if failed := h.Relocate(e.From, e.To, e.Size); len(failed) > 0 {
		h.logger.Error("segment relocation left stale ledger entries",
			log.Hex("from", e.From), log.Hex("to", e.To),
			log.Int("failed", len(failed)))
	}
}

// Relocate re-keys all ledger entries of the moved address range
// [from, from+size) to its new base. Processing is best-effort: a failed
// re-insert is logged, its address recorded and the batch continues.
// The returned slice holds the addresses whose entries could not be
// moved.
func (h *Hooks) Relocate(from, to, size uint64) []uint64 {
	h.logger.Info("relocating tag cache",
		log.Hex("from", from), log.Hex("to", to), log.Hex("size", size))

	failed := h.relocateContents(from, to, size)
	return append(failed, h.relocateGlobals(from, to, size)...)
}

// relocateContents moves every per-function shard whose function lay in
// the moved range to the function's new address, rewriting the address
// index keys by the relocation delta. Shards that no longer map to a
// live function afterwards are strays and cleaned up conservatively,
// never silently.
func (h *Hooks) relocateContents(from, to, size uint64) []uint64 {
	var moved []uint64
	if err := h.contents.Iterate(func(fn uint64, _ *tagcache.State) error {
		if fn >= from && fn < from+size {
			moved = append(moved, fn)
		}
		return nil
	}); err != nil {
		h.logger.Error("reading contents ledger failed", log.Err(err))
	}

	var failed []uint64
	for _, fn := range moved {
		state := h.contents.ReadState(fn)
		if state == nil {
			h.logger.Warn("contents entry vanished during relocation",
				log.Hex("function", fn))
			continue
		}

		target := fn - from + to
		if _, ok := h.db.FunctionBounds(target); !ok {
			h.handleStray(fn, target, state)
			continue
		}

		addresses := make(map[uint64]uint64, len(state.Addresses))
		for ea, count := range state.Addresses {
			addresses[ea-from+to] = count
		}
		state.Addresses = addresses

		h.contents.WriteState(fn, nil)
		if !h.contents.WriteState(target, state) {
			failed = append(failed, fn)
		}
	}
	return failed
}

// handleStray cleans up a relocated contents shard whose target address
// is not a function entry.
func (h *Hooks) handleStray(fn, target uint64, state *tagcache.State) {
	owners := h.db.ChunkOwners(target)
	switch {
	case h.db.IsExternal(target):
		h.logger.Debug("dropping cache of runtime-linked function",
			log.Hex("function", fn), log.Hex("target", target))
		h.contents.WriteState(fn, nil)

	case len(owners) == 0:
		h.logger.Warn("purging cache entry without a function at its new address",
			log.Hex("function", fn), log.Hex("target", target))
		h.contents.WriteState(fn, nil)

	case len(owners) > 1:
		h.logger.Warn("purging cache entry for a tail shared by multiple functions",
			log.Hex("function", fn), log.Hex("target", target))
		h.contents.WriteState(fn, nil)

	case h.options.ForceMergeStrays:
		h.logger.Warn("merging stray cache entry into owning function",
			log.Hex("function", fn), log.Hex("target", target),
			log.Hex("owner", owners[0]))
		h.mergeShard(owners[0], fn, target-fn, state)

	default:
		// the address is in use by a live function that does not start
		// there, keep the entry so no counts are lost
		h.logger.Warn("preserving stray cache entry in place",
			log.Hex("function", fn), log.Hex("target", target),
			log.Hex("owner", owners[0]))
	}
}

// mergeShard folds a stray shard into the shard of the owning function,
// rewriting its address index keys by the relocation delta.
func (h *Hooks) mergeShard(owner, fn, delta uint64, state *tagcache.State) {
	merged := h.contents.ReadState(owner)
	if merged == nil {
		merged = &tagcache.State{
			Keys:      map[string]uint64{},
			Addresses: map[uint64]uint64{},
		}
	}
	for key, count := range state.Keys {
		merged.Keys[key] += count
	}
	for ea, count := range state.Addresses {
		merged.Addresses[ea+delta] += count
	}

	h.contents.WriteState(fn, nil)
	h.contents.WriteState(owner, merged)
}

// relocateGlobals re-keys the per-address half of the globals ledger.
// The per-key counts are unaffected, only the address index moves.
func (h *Hooks) relocateGlobals(from, to, size uint64) []uint64 {
	type entry struct {
		ea    uint64
		count uint64
	}
	var moved []entry
	if err := h.globals.Iterate(func(ea, count uint64) error {
		if ea >= from && ea < from+size {
			moved = append(moved, entry{ea: ea, count: count})
		}
		return nil
	}); err != nil {
		h.logger.Error("reading globals ledger failed", log.Err(err))
	}

	var failed []uint64
	for _, e := range moved {
		count, ok := h.globals.RemoveAddress(e.ea)
		if !ok {
			h.logger.Warn("globals entry vanished during relocation",
				log.Hex("address", e.ea))
			continue
		}
		if !h.globals.SetAddressCount(e.ea-from+to, count) {
			h.logger.Error("re-inserting relocated globals entry failed",
				log.Hex("address", e.ea), log.Hex("target", e.ea-from+to))
			failed = append(failed, e.ea)
		}
	}
	return failed
}
