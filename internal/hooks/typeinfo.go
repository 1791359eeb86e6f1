package hooks

import (
	"bytes"

	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/comment"
	"github.com/IDAPluginProject/ida-minsc/internal/hook"
)

// typeChanging observes a type edit before the host commits it. Type
// information maps to the single implicit key, presence of a non-empty
// serialized descriptor is the tag. Type tags always account against
// the globals namespace, even inside a function.
func (h *Hooks) typeChanging(ev hook.Event) {
	e := ev.(hook.TypeChangingEvent)
	if !h.ready(e.Address) {
		return
	}

	if old := h.db.TypeInfo(e.Address); len(old) > 0 {
		h.decRef(e.Address, comment.TypeInfoTag)
	}

	h.typeInfo.New(e.Address, func(fin hook.Event) {
		h.typeInfoCommit(e, fin.(hook.TypeChangedEvent))
	}, nil)
}

func (h *Hooks) typeChanged(ev hook.Event) {
	e := ev.(hook.TypeChangedEvent)
	if !h.ready(e.Address) {
		return
	}

	if err := h.typeInfo.Finalize(e.Address, e); err != nil {
		h.logger.Error("type changed without a matching changing notification",
			log.Hex("address", e.Address), log.Err(err))
	}
}

// typeInfoCommit reconciles the two halves of a type edit. Mismatches
// between the halves are resolved towards whichever side still matches,
// falling back to what the host actually stores.
func (h *Hooks) typeInfoCommit(changing hook.TypeChangingEvent, changed hook.TypeChangedEvent) {
	restore := h.registry.Suppress(hook.TypeChanging, hook.TypeChanged)
	defer restore()

	ea, ti := changed.Address, changed.Type
	sameAddress := changed.Address == changing.Address
	sameType := bytes.Equal(changed.Type, changing.Type)

	switch {
	case sameAddress && sameType:
	case !sameAddress && !sameType:
		h.logger.Warn("mismatched type notification pair",
			log.Hex("address", changing.Address), log.Hex("changed_address", changed.Address))
		ea, ti = changing.Address, changing.Type
	case !sameAddress:
		h.logger.Warn("type notification pair disagrees on the address",
			log.Hex("address", changing.Address), log.Hex("changed_address", changed.Address))
		ea = changing.Address
	default:
		h.logger.Warn("type notification pair disagrees on the type",
			log.Hex("address", changing.Address))
		ti = h.db.TypeInfo(ea)
	}

	if len(ti) > 0 {
		h.incRef(ea, comment.TypeInfoTag)
	}
}
