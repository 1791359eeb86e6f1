// Package hooks keeps the tag cache consistent with the host database by
// reacting to mutation notifications. Comment and type edits are
// correlated across their changing/changed notification pairs, structural
// changes are applied in a single shot, and bulk jobs rebuild or relocate
// the cache wholesale.
package hooks

import (
	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/hook"
	"github.com/IDAPluginProject/ida-minsc/internal/host"
	"github.com/IDAPluginProject/ida-minsc/internal/tagcache"
)

// State tracks the lifecycle of the host database.
type State int

// Database lifecycle states.
const (
	StateInit State = iota
	StateLoaded
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLoaded:
		return "loaded"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// ProgressFunc reports progress of a bulk job as done out of total steps.
type ProgressFunc func(done, total int)

// Options adjusts optional cache maintenance behavior.
type Options struct {
	// ForceMergeStrays merges relocated cache entries that land inside a
	// live function into that function's cache instead of preserving
	// them in place.
	ForceMergeStrays bool
}

// Hooks connects the host's notification stream to the tag cache ledger.
type Hooks struct {
	logger   *log.Logger
	db       host.Database
	registry *hook.Registry
	globals  *tagcache.Globals
	contents *tagcache.Contents

	state    State
	progress ProgressFunc
	options  Options

	comments      *tracker
	rangeComments *tracker
	typeInfo      *tracker
}

// New creates the cache maintenance hooks. Attach must be called to
// start receiving notifications.
func New(logger *log.Logger, db host.Database, registry *hook.Registry,
	globals *tagcache.Globals, contents *tagcache.Contents, options Options) *Hooks {

	return &Hooks{
		logger:   logger,
		db:       db,
		registry: registry,
		globals:  globals,
		contents: contents,
		state:    StateInit,
		options:  options,

		comments:      newTracker(logger, "comment"),
		rangeComments: newTracker(logger, "function comment"),
		typeInfo:      newTracker(logger, "typeinfo"),
	}
}

// State returns the current database lifecycle state.
func (h *Hooks) State() State {
	return h.state
}

// SetProgress installs a progress callback for bulk jobs.
func (h *Hooks) SetProgress(fn ProgressFunc) {
	h.progress = fn
}

// Attach registers all notification handlers. Lifecycle handlers run
// before any other subscriber so that the state transitions are visible
// to handlers registered at default priority.
func (h *Hooks) Attach() {
	const lifecyclePriority = -100

	h.registry.Add(hook.DatabaseInit, h.databaseInit, lifecyclePriority)
	h.registry.Add(hook.DatabaseCreated, h.databaseCreated, lifecyclePriority)
	h.registry.Add(hook.DatabaseLoaded, h.databaseLoaded, lifecyclePriority)
	h.registry.Add(hook.AnalysisFinished, h.analysisFinished, lifecyclePriority)

	h.registry.Add(hook.CommentChanging, h.commentChanging, 0)
	h.registry.Add(hook.CommentChanged, h.commentChanged, 0)
	h.registry.Add(hook.RangeCommentChanging, h.rangeCommentChanging, 0)
	h.registry.Add(hook.RangeCommentChanged, h.rangeCommentChanged, 0)
	h.registry.Add(hook.TypeChanging, h.typeChanging, 0)
	h.registry.Add(hook.TypeChanged, h.typeChanged, 0)

	h.registry.Add(hook.Renamed, h.renamed, 0)
	h.registry.Add(hook.ExtraCommentChanged, h.extraCommentChanged, 0)
	h.registry.Add(hook.ItemColorChanged, h.itemColorChanged, 0)

	h.registry.Add(hook.FunctionAdded, h.functionAdded, 0)
	h.registry.Add(hook.FunctionDeleting, h.functionDeleting, 0)
	h.registry.Add(hook.TailAppended, h.tailAppended, 0)
	h.registry.Add(hook.TailDeleting, h.tailDeleting, 0)
	h.registry.Add(hook.TailOwnerChanged, h.tailOwnerChanged, 0)
	h.registry.Add(hook.FunctionStartChanged, h.functionStartChanged, 0)
	h.registry.Add(hook.FunctionEndChanged, h.functionEndChanged, 0)

	h.registry.Add(hook.SegmentMoved, h.segmentMoved, 0)
	h.registry.Add(hook.SegmentStartChanged, h.segmentBoundaryChanged, 0)
	h.registry.Add(hook.SegmentEndChanged, h.segmentBoundaryChanged, 0)
}

func (h *Hooks) databaseInit(hook.Event) {
	if h.state != StateInit {
		h.logger.Info("database re-initialized",
			log.Stringer("state", h.state))
	}

	h.comments.Reset()
	h.rangeComments.Reset()
	h.typeInfo.Reset()
	h.state = StateInit
}

func (h *Hooks) databaseCreated(hook.Event) {
	h.transition(StateInit, StateLoaded, "created")
}

func (h *Hooks) databaseLoaded(hook.Event) {
	h.transition(StateInit, StateLoaded, "loaded")
}

func (h *Hooks) analysisFinished(hook.Event) {
	if h.state != StateLoaded {
		h.logger.Debug("ignoring analysis queue drain",
			log.Stringer("state", h.state))
		return
	}

	h.Build()
	h.transition(StateLoaded, StateReady, "analysis finished")
}

func (h *Hooks) transition(from, to State, reason string) {
	if h.state != from {
		h.logger.Error("unexpected database state transition",
			log.Stringer("state", h.state), log.Stringer("expected", from),
			log.Stringer("next", to), log.String("reason", reason))
	}
	h.state = to
}

// ready reports whether a notification for the address should be
// processed. Out-of-range addresses are delivered by the host for
// synthetic items and are skipped before any state is created.
func (h *Hooks) ready(ea uint64) bool {
	if h.state != StateReady {
		h.logger.Debug("ignoring notification before database is ready",
			log.Stringer("state", h.state), log.Hex("address", ea))
		return false
	}
	if !h.db.Bounds().Contains(ea) {
		h.logger.Debug("ignoring notification for out-of-bounds address",
			log.Hex("address", ea))
		return false
	}
	return true
}

func (h *Hooks) segmentBoundaryChanged(ev hook.Event) {
	// segment boundary changes do not re-bucket any tags
	h.logger.Debug("ignoring segment boundary change",
		log.String("kind", string(ev.Kind())))
}
