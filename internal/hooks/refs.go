package hooks

import (
	"github.com/IDAPluginProject/ida-minsc/internal/comment"
	"github.com/IDAPluginProject/ida-minsc/internal/host"
)

// globalKey reports whether a tag key is accounted in the globals
// namespace even when the address is owned by a function. Type
// information is always a global tag, and a name on a function's entry
// address names the function itself.
func globalKey(ea, fn uint64, key string) bool {
	switch key {
	case comment.TypeInfoTag:
		return true
	case comment.NameTag:
		return ea == fn
	}
	return false
}

// owner returns the function whose contents namespace accounts for a
// tag key at an address. Runtime-linked addresses stay in the globals
// namespace even when the host materializes a function for them.
func (h *Hooks) owner(ea uint64, key string) (uint64, bool) {
	fn, ok := h.db.FunctionAt(ea)
	if !ok || h.db.IsExternal(ea) || globalKey(ea, fn, key) {
		return 0, false
	}
	return fn, true
}

func (h *Hooks) incRef(ea uint64, key string) {
	if fn, ok := h.owner(ea, key); ok {
		h.contents.IncFor(fn, ea, key)
		return
	}
	h.globals.Inc(ea, key)
}

func (h *Hooks) decRef(ea uint64, key string) {
	if fn, ok := h.owner(ea, key); ok {
		h.contents.DecFor(fn, ea, key)
		return
	}
	h.globals.Dec(ea, key)
}

// updateRefs applies the presence diff between the old and the new tags
// of an address: keys that disappear are decremented, keys that appear
// are incremented, value-only changes leave the counts alone.
func (h *Hooks) updateRefs(ea uint64, old, updated comment.Tags) {
	for key := range old {
		if _, ok := updated[key]; !ok {
			h.decRef(ea, key)
		}
	}
	for key := range updated {
		if _, ok := old[key]; !ok {
			h.incRef(ea, key)
		}
	}
}

func (h *Hooks) createRefs(ea uint64, tags comment.Tags) {
	for key := range tags {
		h.incRef(ea, key)
	}
}

func (h *Hooks) deleteRefs(ea uint64, tags comment.Tags) {
	for key := range tags {
		h.decRef(ea, key)
	}
}

// addressTags returns the set of tag keys present at an address, both
// the explicit keys decoded from its comments and the implicit keys
// derived from host attributes.
func (h *Hooks) addressTags(ea uint64) map[string]struct{} {
	merged, _ := comment.Merge(
		comment.Decode(h.db.Comment(ea, true)),
		comment.Decode(h.db.Comment(ea, false)))

	keys := make(map[string]struct{}, len(merged))
	for key := range merged {
		keys[key] = struct{}{}
	}

	if _, custom := h.db.NameInfo(ea); custom {
		keys[comment.NameTag] = struct{}{}
	}
	if h.db.Color(ea) != host.DefaultColor {
		keys[comment.ColorTag] = struct{}{}
	}
	if len(h.db.TypeInfo(ea)) > 0 {
		keys[comment.TypeInfoTag] = struct{}{}
	}
	if h.db.HasExtraComment(ea, true) {
		keys[comment.ExtraPrefixTag] = struct{}{}
	}
	if h.db.HasExtraComment(ea, false) {
		keys[comment.ExtraSuffixTag] = struct{}{}
	}
	return keys
}

// functionTags returns the set of tag keys attached to a function
// itself, as opposed to the addresses of its body: the keys of its
// function comments plus the implicit name and type keys of its entry
// address, which are global tags that live and die with the function.
// The entry's color is a plain address tag and is not included.
func (h *Hooks) functionTags(fn uint64) map[string]struct{} {
	merged, _ := comment.Merge(
		comment.Decode(h.db.FunctionComment(fn, true)),
		comment.Decode(h.db.FunctionComment(fn, false)))

	keys := make(map[string]struct{}, len(merged))
	for key := range merged {
		keys[key] = struct{}{}
	}

	if _, custom := h.db.NameInfo(fn); custom {
		keys[comment.NameTag] = struct{}{}
	}
	if len(h.db.TypeInfo(fn)) > 0 {
		keys[comment.TypeInfoTag] = struct{}{}
	}
	return keys
}
