package hooks

import (
	"errors"

	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/hook"
)

// ErrAddressNotFound is returned by Finalize when no pending edit exists
// for the address, meaning a changed notification arrived without its
// matching changing half.
var ErrAddressNotFound = errors.New("no pending edit for address")

type editState int

const (
	awaitingChanged editState = iota
	done
)

type pendingEdit struct {
	state  editState
	commit func(hook.Event)
	cancel func()
}

// tracker correlates the changing half of an edit with its changed half.
// A pending edit is keyed by address and holds the commit logic captured
// when the changing notification was observed. The host delivers both
// halves on a single thread, so no locking is needed.
type tracker struct {
	logger  *log.Logger
	name    string
	pending map[uint64]*pendingEdit
}

func newTracker(logger *log.Logger, name string) *tracker {
	return &tracker{
		logger:  logger,
		name:    name,
		pending: map[uint64]*pendingEdit{},
	}
}

// New begins a pending edit for an address. An existing pending edit for
// the same address is cancelled first: its commit is skipped, but ledger
// updates already applied by its changing half are not rolled back.
func (t *tracker) New(ea uint64, commit func(hook.Event), cancel func()) {
	if previous, ok := t.pending[ea]; ok {
		t.logger.Info("discarding pending edit",
			log.String("tracker", t.name), log.Hex("address", ea))
		if previous.cancel != nil {
			previous.cancel()
		}
	}
	t.pending[ea] = &pendingEdit{
		state:  awaitingChanged,
		commit: commit,
		cancel: cancel,
	}
}

// Finalize resumes the pending edit for an address with the changed
// notification and removes it. Returns ErrAddressNotFound if no edit is
// pending for the address.
func (t *tracker) Finalize(ea uint64, ev hook.Event) error {
	edit, ok := t.pending[ea]
	if !ok {
		return ErrAddressNotFound
	}

	delete(t.pending, ea)
	edit.state = done
	edit.commit(ev)
	return nil
}

// Reset discards all pending edits, for example when the database is
// re-initialized underneath the cache.
func (t *tracker) Reset() {
	if len(t.pending) > 0 {
		t.logger.Info("discarding incomplete edits",
			log.String("tracker", t.name), log.Int("count", len(t.pending)))
	}
	t.pending = map[uint64]*pendingEdit{}
}
