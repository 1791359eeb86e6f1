// Package hook implements the notification registry that connects host
// events to their handlers.
package hook

import "github.com/IDAPluginProject/ida-minsc/internal/host"

// Kind identifies a host notification type.
type Kind string

// Notification types delivered by the host.
const (
	DatabaseInit     Kind = "database_init"
	DatabaseCreated  Kind = "database_created"
	DatabaseLoaded   Kind = "database_loaded"
	AnalysisFinished Kind = "analysis_finished"

	CommentChanging      Kind = "changing_cmt"
	CommentChanged       Kind = "cmt_changed"
	RangeCommentChanging Kind = "changing_range_cmt"
	RangeCommentChanged  Kind = "range_cmt_changed"
	TypeChanging         Kind = "changing_ti"
	TypeChanged          Kind = "ti_changed"

	Renamed             Kind = "renamed"
	ExtraCommentChanged Kind = "extra_cmt_changed"
	ItemColorChanged    Kind = "item_color_changed"

	FunctionAdded        Kind = "func_added"
	FunctionDeleting     Kind = "deleting_func"
	TailAppended         Kind = "func_tail_appended"
	TailDeleting         Kind = "deleting_func_tail"
	TailOwnerChanged     Kind = "tail_owner_changed"
	FunctionStartChanged Kind = "set_func_start"
	FunctionEndChanged   Kind = "set_func_end"

	SegmentStartChanged Kind = "segm_start_changed"
	SegmentEndChanged   Kind = "segm_end_changed"
	SegmentMoved        Kind = "segm_moved"
)

// Event is a host notification payload.
type Event interface {
	Kind() Kind
}

// DatabaseInitEvent signals that a database is being opened.
type DatabaseInitEvent struct{}

func (DatabaseInitEvent) Kind() Kind { return DatabaseInit }

// DatabaseCreatedEvent signals that a fresh database was created and
// auto-analysis is about to run.
type DatabaseCreatedEvent struct{}

func (DatabaseCreatedEvent) Kind() Kind { return DatabaseCreated }

// DatabaseLoadedEvent signals that an existing database finished loading.
type DatabaseLoadedEvent struct{}

func (DatabaseLoadedEvent) Kind() Kind { return DatabaseLoaded }

// AnalysisFinishedEvent signals that the host's analysis queues drained.
type AnalysisFinishedEvent struct {
	Final bool
}

func (AnalysisFinishedEvent) Kind() Kind { return AnalysisFinished }

// CommentChangingEvent fires before a comment at an address is changed.
type CommentChangingEvent struct {
	Address    uint64
	Repeatable bool
	Text       string // proposed new comment
}

func (CommentChangingEvent) Kind() Kind { return CommentChanging }

// CommentChangedEvent fires after a comment at an address was changed.
type CommentChangedEvent struct {
	Address    uint64
	Repeatable bool
}

func (CommentChangedEvent) Kind() Kind { return CommentChanged }

// RangeCommentChangingEvent fires before a function comment is changed.
type RangeCommentChangingEvent struct {
	Start      uint64 // start of the commented range
	Repeatable bool
	Text       string // proposed new comment
}

func (RangeCommentChangingEvent) Kind() Kind { return RangeCommentChanging }

// RangeCommentChangedEvent fires after a function comment was changed.
type RangeCommentChangedEvent struct {
	Start      uint64
	Repeatable bool
	Text       string // final comment as reported by the host
}

func (RangeCommentChangedEvent) Kind() Kind { return RangeCommentChanged }

// TypeChangingEvent fires before type information at an address is
// changed.
type TypeChangingEvent struct {
	Address uint64
	Type    []byte // proposed serialized type descriptor
	Name    []byte // proposed field name blob
}

func (TypeChangingEvent) Kind() Kind { return TypeChanging }

// TypeChangedEvent fires after type information at an address was
// changed.
type TypeChangedEvent struct {
	Address uint64
	Type    []byte
	Name    []byte
}

func (TypeChangedEvent) Kind() Kind { return TypeChanged }

// RenamedEvent fires when a name is set or cleared at an address. It is
// delivered before the host applies the change.
type RenamedEvent struct {
	Address uint64
	Name    string // empty when the name is being removed
}

func (RenamedEvent) Kind() Kind { return Renamed }

// ExtraCommentChangedEvent fires after an extra comment line changed.
type ExtraCommentChangedEvent struct {
	Address   uint64
	LineIndex int
	Cleared   bool
}

func (ExtraCommentChangedEvent) Kind() Kind { return ExtraCommentChanged }

// ItemColorChangedEvent fires after the color of an item changed.
type ItemColorChangedEvent struct {
	Address uint64
	Color   uint32
}

func (ItemColorChangedEvent) Kind() Kind { return ItemColorChanged }

// FunctionAddedEvent fires after a function was created.
type FunctionAddedEvent struct {
	Function uint64
}

func (FunctionAddedEvent) Kind() Kind { return FunctionAdded }

// FunctionDeletingEvent fires before a function is removed.
type FunctionDeletingEvent struct {
	Function uint64
}

func (FunctionDeletingEvent) Kind() Kind { return FunctionDeleting }

// TailAppendedEvent fires after a tail chunk was attached to a function.
type TailAppendedEvent struct {
	Function uint64
	Tail     host.Bounds
}

func (TailAppendedEvent) Kind() Kind { return TailAppended }

// TailDeletingEvent fires before a tail chunk is detached from a
// function, while the function still owns it.
type TailDeletingEvent struct {
	Function uint64
	Tail     host.Bounds
}

func (TailDeletingEvent) Kind() Kind { return TailDeleting }

// TailOwnerChangedEvent fires after a tail chunk was reassigned to
// another owning function.
type TailOwnerChangedEvent struct {
	Tail     host.Bounds
	Owner    uint64 // new owning function
	OldOwner uint64
}

func (TailOwnerChangedEvent) Kind() Kind { return TailOwnerChanged }

// FunctionStartChangedEvent fires before the entry boundary of a
// function moves.
type FunctionStartChangedEvent struct {
	Function uint64 // current entry address
	NewStart uint64
}

func (FunctionStartChangedEvent) Kind() Kind { return FunctionStartChanged }

// FunctionEndChangedEvent fires before the end boundary of a function
// moves.
type FunctionEndChangedEvent struct {
	Function uint64
	End      uint64 // current end address
	NewEnd   uint64
}

func (FunctionEndChangedEvent) Kind() Kind { return FunctionEndChanged }

// SegmentStartChangedEvent fires after a segment's start moved.
type SegmentStartChangedEvent struct {
	Segment  uint64
	OldStart uint64
}

func (SegmentStartChangedEvent) Kind() Kind { return SegmentStartChanged }

// SegmentEndChangedEvent fires after a segment's end moved.
type SegmentEndChangedEvent struct {
	Segment uint64
	OldEnd  uint64
}

func (SegmentEndChangedEvent) Kind() Kind { return SegmentEndChanged }

// SegmentMovedEvent fires after a segment was relocated.
type SegmentMovedEvent struct {
	From uint64
	To   uint64
	Size uint64
}

func (SegmentMovedEvent) Kind() Kind { return SegmentMoved }
