package hooks

import (
	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/comment"
	"github.com/IDAPluginProject/ida-minsc/internal/hook"
)

// commentChanging observes the proposed comment before the host commits
// it. The ledger diff is applied here already because the changed
// notification does not re-supply the proposed text.
func (h *Hooks) commentChanging(ev hook.Event) {
	e := ev.(hook.CommentChangingEvent)
	if !h.ready(e.Address) {
		return
	}

	old := comment.Decode(h.db.Comment(e.Address, e.Repeatable))
	proposed := comment.Decode(e.Text)
	h.updateRefs(e.Address, old, proposed)

	h.comments.New(e.Address, func(fin hook.Event) {
		h.commentCommit(e, old, proposed, fin.(hook.CommentChangedEvent))
	}, nil)
}

func (h *Hooks) commentChanged(ev hook.Event) {
	e := ev.(hook.CommentChangedEvent)
	if !h.ready(e.Address) {
		return
	}

	if err := h.comments.Finalize(e.Address, e); err != nil {
		h.logger.Error("comment changed without a matching changing notification",
			log.Hex("address", e.Address), log.Err(err))
	}
}

// commentCommit runs when the changed half of a comment edit arrives. On
// the happy path it rewrites the comment in canonical form; a mismatch
// between the two halves is reconciled from what the host actually
// stores. All writes run with the comment notifications suppressed to
// avoid re-entering this correlator.
func (h *Hooks) commentCommit(changing hook.CommentChangingEvent,
	old, proposed comment.Tags, changed hook.CommentChangedEvent) {

	restore := h.registry.Suppress(hook.CommentChanging, hook.CommentChanged)
	defer restore()

	if changed.Address != changing.Address || changed.Repeatable != changing.Repeatable {
		h.recoverComment(changing, old, proposed, changed)
		return
	}

	text := h.db.Comment(changed.Address, changed.Repeatable)
	switch {
	case comment.Check(text):
		canonical := comment.Encode(comment.Decode(text))
		if canonical != text {
			h.writeComment(changed.Address, canonical, changed.Repeatable)
		}
	case text != "":
		// raw text, leave it as the user typed it
	default:
		// the host ended up without a comment, drop the references the
		// changing half added
		h.deleteRefs(changed.Address, proposed)
	}
}

// recoverComment handles a changed notification that does not match its
// changing half, caused by out-of-order or duplicate delivery. The
// changing-phase ledger diff is inverted, the stale comment is cleared
// and the ledger is rebuilt from what the host reports now.
func (h *Hooks) recoverComment(changing hook.CommentChangingEvent,
	old, proposed comment.Tags, changed hook.CommentChangedEvent) {

	h.logger.Error("mismatched comment notification pair",
		log.Hex("address", changing.Address), log.Hex("changed_address", changed.Address))

	h.updateRefs(changing.Address, proposed, old)
	h.deleteRefs(changing.Address, old)
	h.writeComment(changing.Address, "", changing.Repeatable)

	actual := comment.Decode(h.db.Comment(changed.Address, changed.Repeatable))
	h.createRefs(changed.Address, actual)
}

func (h *Hooks) writeComment(ea uint64, text string, repeatable bool) {
	if err := h.db.SetComment(ea, text, repeatable); err != nil {
		h.logger.Error("writing comment failed",
			log.Hex("address", ea), log.Err(err))
	}
}

// rangeCommentChanging observes a function comment edit before the host
// commits it. Function comments account against the globals namespace
// keyed by the function's entry address.
func (h *Hooks) rangeCommentChanging(ev hook.Event) {
	e := ev.(hook.RangeCommentChangingEvent)
	if !h.ready(e.Start) {
		return
	}
	fn, ok := h.db.FunctionBounds(e.Start)
	if !ok || fn.Start != e.Start {
		h.logger.Debug("ignoring range comment outside a function",
			log.Hex("address", e.Start))
		return
	}

	old := comment.Decode(h.db.FunctionComment(e.Start, e.Repeatable))
	proposed := comment.Decode(e.Text)
	h.updateFunctionRefs(e.Start, old, proposed)

	h.rangeComments.New(e.Start, func(fin hook.Event) {
		h.rangeCommentCommit(e, old, proposed, fin.(hook.RangeCommentChangedEvent))
	}, nil)
}

func (h *Hooks) rangeCommentChanged(ev hook.Event) {
	e := ev.(hook.RangeCommentChangedEvent)
	if !h.ready(e.Start) {
		return
	}
	if _, ok := h.db.FunctionBounds(e.Start); !ok {
		h.logger.Debug("ignoring range comment outside a function",
			log.Hex("address", e.Start))
		return
	}

	if err := h.rangeComments.Finalize(e.Start, e); err != nil {
		h.logger.Error("function comment changed without a matching changing notification",
			log.Hex("function", e.Start), log.Err(err))
	}
}

func (h *Hooks) rangeCommentCommit(changing hook.RangeCommentChangingEvent,
	old, proposed comment.Tags, changed hook.RangeCommentChangedEvent) {

	restore := h.registry.Suppress(hook.RangeCommentChanging, hook.RangeCommentChanged)
	defer restore()

	if changed.Start != changing.Start || changed.Repeatable != changing.Repeatable {
		h.recoverFunctionComment(changing, old, proposed, changed)
		return
	}

	text := h.db.FunctionComment(changed.Start, changed.Repeatable)
	switch {
	case comment.Check(text):
		canonical := comment.Encode(comment.Decode(text))
		if canonical != text {
			h.writeFunctionComment(changed.Start, canonical, changed.Repeatable)
		}
	case text != "":
	default:
		h.deleteFunctionRefs(changed.Start, proposed)
	}
}

func (h *Hooks) recoverFunctionComment(changing hook.RangeCommentChangingEvent,
	old, proposed comment.Tags, changed hook.RangeCommentChangedEvent) {

	h.logger.Error("mismatched function comment notification pair",
		log.Hex("function", changing.Start), log.Hex("changed_function", changed.Start))

	h.updateFunctionRefs(changing.Start, proposed, old)
	h.deleteFunctionRefs(changing.Start, old)
	h.writeFunctionComment(changing.Start, "", changing.Repeatable)

	actual := comment.Decode(h.db.FunctionComment(changed.Start, changed.Repeatable))
	for key := range actual {
		h.globals.Inc(changed.Start, key)
	}
}

func (h *Hooks) updateFunctionRefs(fn uint64, old, updated comment.Tags) {
	for key := range old {
		if _, ok := updated[key]; !ok {
			h.globals.Dec(fn, key)
		}
	}
	for key := range updated {
		if _, ok := old[key]; !ok {
			h.globals.Inc(fn, key)
		}
	}
}

func (h *Hooks) deleteFunctionRefs(fn uint64, tags comment.Tags) {
	for key := range tags {
		h.globals.Dec(fn, key)
	}
}

func (h *Hooks) writeFunctionComment(fn uint64, text string, repeatable bool) {
	if err := h.db.SetFunctionComment(fn, text, repeatable); err != nil {
		h.logger.Error("writing function comment failed",
			log.Hex("function", fn), log.Err(err))
	}
}
