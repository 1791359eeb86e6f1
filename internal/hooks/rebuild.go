package hooks

import (
	"github.com/retroenv/retrogolib/log"
)

// Build performs the initial cache build, walking every address of every
// function and claiming its tags for the owning function's contents
// namespace. Addresses that a stale globals ledger still accounts for
// are decremented there, repairing a ledger that predates the cache.
// Addresses already present in a contents shard are left alone so that
// rebuilding an intact cache does not double-count.
func (h *Hooks) Build() {
	stale := map[uint64]struct{}{}
	if err := h.globals.Iterate(func(ea, _ uint64) error {
		stale[ea] = struct{}{}
		return nil
	}); err != nil {
		h.logger.Error("reading stale global ledger failed", log.Err(err))
	}

	functions := h.db.Functions()
	total := len(functions)
	h.logger.Info("building tag cache", log.Int("functions", total))

	for i, fn := range functions {
		if h.progress != nil {
			h.progress(i, total)
		}
		if h.db.IsExternal(fn) {
			h.logger.Debug("skipping runtime-linked function",
				log.Hex("function", fn))
			continue
		}

		cached := map[uint64]struct{}{}
		if state := h.contents.ReadState(fn); state != nil {
			for ea := range state.Addresses {
				cached[ea] = struct{}{}
			}
		}

		for _, chunk := range h.db.Chunks(fn) {
			for _, ea := range h.db.Addresses(chunk) {
				if _, ok := cached[ea]; ok {
					continue
				}
				for key := range h.addressTags(ea) {
					if globalKey(ea, fn, key) {
						continue
					}
					if _, ok := stale[ea]; ok {
						h.globals.Dec(ea, key)
					}
					h.contents.IncFor(fn, ea, key)
				}
			}
		}
	}

	if h.progress != nil {
		h.progress(total, total)
	}
}
