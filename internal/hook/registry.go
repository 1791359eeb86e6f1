package hook

import (
	"sort"

	"github.com/retroenv/retrogolib/log"
)

// Handler processes a single notification.
type Handler func(Event)

type entry struct {
	priority int
	order    int // insertion order, stable tiebreaker
	handler  Handler
}

// Registry dispatches host notifications to registered handlers in
// priority order. Notification types can be disabled temporarily to keep
// a handler's own writes from re-entering the same handler; disabling
// is reference-counted so that nested brackets compose.
type Registry struct {
	logger   *log.Logger
	handlers map[Kind][]entry
	disabled map[Kind]int
	added    int
}

// NewRegistry creates an empty notification registry.
func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		logger:   logger,
		handlers: map[Kind][]entry{},
		disabled: map[Kind]int{},
	}
}

// Add registers a handler for a notification type. Handlers with a lower
// priority run first.
func (r *Registry) Add(kind Kind, handler Handler, priority int) {
	r.added++
	entries := append(r.handlers[kind], entry{
		priority: priority,
		order:    r.added,
		handler:  handler,
	})
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].order < entries[j].order
	})
	r.handlers[kind] = entries
}

// Disable suspends dispatching of a notification type. Each Disable call
// must be paired with an Enable call.
func (r *Registry) Disable(kind Kind) {
	r.disabled[kind]++
}

// Enable resumes dispatching of a notification type once all nested
// Disable calls are undone.
func (r *Registry) Enable(kind Kind) {
	if r.disabled[kind] == 0 {
		r.logger.Error("unbalanced enable of notification",
			log.String("kind", string(kind)))
		return
	}
	r.disabled[kind]--
}

// Suppress disables the given notification types and returns a function
// that re-enables them. The returned function must be called on every
// exit path, typically via defer.
func (r *Registry) Suppress(kinds ...Kind) func() {
	for _, kind := range kinds {
		r.Disable(kind)
	}
	return func() {
		for _, kind := range kinds {
			r.Enable(kind)
		}
	}
}

// Dispatch delivers a notification to all handlers registered for its
// type, unless the type is currently disabled.
func (r *Registry) Dispatch(ev Event) {
	kind := ev.Kind()
	if r.disabled[kind] > 0 {
		r.logger.Debug("skipping suppressed notification",
			log.String("kind", string(kind)))
		return
	}
	for _, e := range r.handlers[kind] {
		e.handler(ev)
	}
}
