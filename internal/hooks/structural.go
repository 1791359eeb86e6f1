package hooks

import (
	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/comment"
	"github.com/IDAPluginProject/ida-minsc/internal/hook"
	"github.com/IDAPluginProject/ida-minsc/internal/host"
)

// renamed accounts the implicit name key. The notification is delivered
// before the host applies the change, so the name attributes still
// describe the old state. A name on a function's entry address names
// the function and counts as a global tag, names elsewhere follow the
// owner of the address.
func (h *Hooks) renamed(ev hook.Event) {
	e := ev.(hook.RenamedEvent)
	if !h.ready(e.Address) {
		return
	}

	label, custom := h.db.NameInfo(e.Address)
	if e.Name == "" {
		if custom {
			h.decRef(e.Address, comment.NameTag)
		}
		return
	}
	if !custom {
		if label {
			h.logger.Debug("custom name replaces auto-generated label",
				log.Hex("address", e.Address), log.String("name", e.Name))
		}
		h.incRef(e.Address, comment.NameTag)
	}
}

// extraCommentChanged accounts the presence of an extra comment block.
// Only the first line of a block toggles the tag; an update to an
// existing block is indistinguishable from a fresh set and counts again.
func (h *Hooks) extraCommentChanged(ev hook.Event) {
	e := ev.(hook.ExtraCommentChangedEvent)
	if !h.ready(e.Address) {
		return
	}

	var key string
	switch e.LineIndex {
	case host.ExtraPrefixIndex:
		key = comment.ExtraPrefixTag
	case host.ExtraSuffixIndex:
		key = comment.ExtraSuffixTag
	default:
		h.logger.Debug("ignoring extra comment continuation line",
			log.Hex("address", e.Address), log.Int("line", e.LineIndex))
		return
	}

	if e.Cleared {
		h.decRef(e.Address, key)
		return
	}
	h.incRef(e.Address, key)
}

// itemColorChanged accounts the presence of a custom color. A reset to
// the default color clears the tag, everything else counts as a set.
func (h *Hooks) itemColorChanged(ev hook.Event) {
	e := ev.(hook.ItemColorChangedEvent)
	if !h.ready(e.Address) {
		return
	}

	if e.Color == host.DefaultColor {
		h.decRef(e.Address, comment.ColorTag)
		return
	}
	h.incRef(e.Address, comment.ColorTag)
}
