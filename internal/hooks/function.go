package hooks

import (
	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/hook"
	"github.com/IDAPluginProject/ida-minsc/internal/host"
)

// functionAdded converts the tags of every address now owned by the new
// function from the globals namespace to its contents namespace.
func (h *Hooks) functionAdded(ev hook.Event) {
	e := ev.(hook.FunctionAddedEvent)
	if !h.ready(e.Function) {
		return
	}
	if h.db.IsExternal(e.Function) {
		h.logger.Debug("ignoring runtime-linked function",
			log.Hex("function", e.Function))
		return
	}

	for _, chunk := range h.db.Chunks(e.Function) {
		for _, ea := range h.db.Addresses(chunk) {
			for key := range h.addressTags(ea) {
				if globalKey(ea, e.Function, key) {
					continue
				}
				h.globals.Dec(ea, key)
				h.contents.IncFor(e.Function, ea, key)
			}
		}
	}
}

// functionDeleting converts the contents tags of the function being
// removed back to globals and drops the function's own tags.
func (h *Hooks) functionDeleting(ev hook.Event) {
	e := ev.(hook.FunctionDeletingEvent)
	if !h.ready(e.Function) {
		return
	}
	if h.db.IsExternal(e.Function) {
		h.logger.Debug("ignoring runtime-linked function",
			log.Hex("function", e.Function))
		return
	}

	for _, chunk := range h.db.Chunks(e.Function) {
		for _, ea := range h.db.Addresses(chunk) {
			for key := range h.addressTags(ea) {
				if globalKey(ea, e.Function, key) {
					continue
				}
				h.contents.DecFor(e.Function, ea, key)
				h.globals.Inc(ea, key)
			}
		}
	}

	for key := range h.functionTags(e.Function) {
		h.globals.Dec(e.Function, key)
	}
}

// tailAppended accounts a tail chunk attached to a function. A tail
// gaining its first owner is promoted from globals to contents; a tail
// that is already owned elsewhere is tallied additively into the new
// owner only.
func (h *Hooks) tailAppended(ev hook.Event) {
	e := ev.(hook.TailAppendedEvent)
	if !h.ready(e.Function) {
		return
	}

	shared := len(h.db.ChunkOwners(e.Tail.Start)) > 1
	for _, ea := range h.db.Addresses(e.Tail) {
		for key := range h.addressTags(ea) {
			if globalKey(ea, e.Function, key) {
				continue
			}
			if !shared {
				h.globals.Dec(ea, key)
			}
			h.contents.IncFor(e.Function, ea, key)
		}
	}
}

// tailDeleting accounts a tail chunk detaching from a function, while
// the function still owns it. Losing the last owner demotes the tail's
// tags back to globals.
func (h *Hooks) tailDeleting(ev hook.Event) {
	e := ev.(hook.TailDeletingEvent)
	if !h.ready(e.Function) {
		return
	}

	lastOwner := len(h.db.ChunkOwners(e.Tail.Start)) == 1
	for _, ea := range h.db.Addresses(e.Tail) {
		for key := range h.addressTags(ea) {
			if globalKey(ea, e.Function, key) {
				continue
			}
			h.contents.DecFor(e.Function, ea, key)
			if lastOwner {
				h.globals.Inc(ea, key)
			}
		}
	}
}

// tailOwnerChanged moves a tail's tags between the contents namespaces
// of the old and the new owning function.
func (h *Hooks) tailOwnerChanged(ev hook.Event) {
	e := ev.(hook.TailOwnerChangedEvent)
	if !h.ready(e.Tail.Start) {
		return
	}

	for _, ea := range h.db.Addresses(e.Tail) {
		for key := range h.addressTags(ea) {
			if globalKey(ea, e.Owner, key) {
				continue
			}
			h.contents.DecFor(e.OldOwner, ea, key)
			h.contents.IncFor(e.Owner, ea, key)
		}
	}
}

// functionStartChanged accounts an entry boundary move. Addresses gained
// by the function move from globals to its contents, addresses lost move
// back. The contents shard is re-keyed to the new entry address since
// the per-function store is addressed by it.
func (h *Hooks) functionStartChanged(ev hook.Event) {
	e := ev.(hook.FunctionStartChangedEvent)
	if !h.ready(e.Function) {
		return
	}

	switch {
	case e.NewStart < e.Function: // function grows at the front
		h.convertRange(host.Bounds{Start: e.NewStart, End: e.Function}, e.Function, true)
	case e.NewStart > e.Function: // function shrinks at the front
		h.convertRange(host.Bounds{Start: e.Function, End: e.NewStart}, e.Function, false)
	default:
		return
	}

	if state := h.contents.ReadState(e.Function); state != nil {
		h.contents.WriteState(e.Function, nil)
		h.contents.WriteState(e.NewStart, state)
	}
}

// functionEndChanged accounts an end boundary move, symmetric to
// functionStartChanged but without re-keying.
func (h *Hooks) functionEndChanged(ev hook.Event) {
	e := ev.(hook.FunctionEndChangedEvent)
	if !h.ready(e.Function) {
		return
	}

	switch {
	case e.NewEnd > e.End: // function grows at the back
		h.convertRange(host.Bounds{Start: e.End, End: e.NewEnd}, e.Function, true)
	case e.NewEnd < e.End: // function shrinks at the back
		h.convertRange(host.Bounds{Start: e.NewEnd, End: e.End}, e.Function, false)
	}
}

// convertRange moves the tags of every address in the range between the
// globals namespace and the contents namespace of a function.
func (h *Hooks) convertRange(bounds host.Bounds, fn uint64, toContents bool) {
	for _, ea := range h.db.Addresses(bounds) {
		for key := range h.addressTags(ea) {
			if globalKey(ea, fn, key) {
				continue
			}
			if toContents {
				h.globals.Dec(ea, key)
				h.contents.IncFor(fn, ea, key)
			} else {
				h.contents.DecFor(fn, ea, key)
				h.globals.Inc(ea, key)
			}
		}
	}
}
