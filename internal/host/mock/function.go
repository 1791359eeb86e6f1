package mock

import (
	"fmt"
	"slices"

	"github.com/IDAPluginProject/ida-minsc/internal/hook"
	"github.com/IDAPluginProject/ida-minsc/internal/host"
)

// FunctionAt implements host.Database. For a chunk shared by multiple
// functions the lowest owning entry address wins.
func (d *Database) FunctionAt(ea uint64) (uint64, bool) {
	owners := d.owners(ea)
	if len(owners) == 0 {
		return 0, false
	}
	return owners[0], true
}

// FunctionBounds implements host.Database.
func (d *Database) FunctionBounds(fn uint64) (host.Bounds, bool) {
	chunks, ok := d.functions[fn]
	if !ok {
		return host.Bounds{}, false
	}

	bounds := chunks[0]
	for _, chunk := range chunks[1:] {
		bounds.Start = min(bounds.Start, chunk.Start)
		bounds.End = max(bounds.End, chunk.End)
	}
	return bounds, true
}

// Functions implements host.Database.
func (d *Database) Functions() []uint64 {
	functions := make([]uint64, 0, len(d.functions))
	for fn := range d.functions {
		functions = append(functions, fn)
	}
	slices.Sort(functions)
	return functions
}

// Chunks implements host.Database.
func (d *Database) Chunks(fn uint64) []host.Bounds {
	return slices.Clone(d.functions[fn])
}

// ChunkOwners implements host.Database.
func (d *Database) ChunkOwners(ea uint64) []uint64 {
	return d.owners(ea)
}

func (d *Database) owners(ea uint64) []uint64 {
	var owners []uint64
	for fn, chunks := range d.functions {
		for _, chunk := range chunks {
			if chunk.Contains(ea) {
				owners = append(owners, fn)
				break
			}
		}
	}
	slices.Sort(owners)
	return owners
}

// CreateFunction registers a function with a single entry chunk and
// delivers the notification after the function exists.
func (d *Database) CreateFunction(bounds host.Bounds) error {
	if _, ok := d.functions[bounds.Start]; ok {
		return fmt.Errorf("function at %#x already exists", bounds.Start)
	}

	d.functions[bounds.Start] = []host.Bounds{bounds}
	d.registry.Dispatch(hook.FunctionAddedEvent{Function: bounds.Start})
	return nil
}

// DeleteFunction removes a function, delivering the notification while
// the function still exists. Function-level attributes are destroyed
// with it: the function comments, the custom name of the entry and the
// entry's type information.
func (d *Database) DeleteFunction(fn uint64) error {
	if _, ok := d.functions[fn]; !ok {
		return fmt.Errorf("no function at %#x", fn)
	}

	d.registry.Dispatch(hook.FunctionDeletingEvent{Function: fn})
	delete(d.functions, fn)
	delete(d.fnComments, commentKey{ea: fn, repeatable: true})
	delete(d.fnComments, commentKey{ea: fn, repeatable: false})
	delete(d.names, fn)
	delete(d.labels, fn)
	delete(d.typeInfo, fn)
	return nil
}

// AppendTail attaches a tail chunk to a function and delivers the
// notification after the attach.
func (d *Database) AppendTail(fn uint64, tail host.Bounds) error {
	chunks, ok := d.functions[fn]
	if !ok {
		return fmt.Errorf("no function at %#x", fn)
	}

	d.functions[fn] = append(chunks, tail)
	d.registry.Dispatch(hook.TailAppendedEvent{Function: fn, Tail: tail})
	return nil
}

// RemoveTail detaches a tail chunk from a function, delivering the
// notification while the function still owns the tail.
func (d *Database) RemoveTail(fn uint64, tail host.Bounds) error {
	chunks, ok := d.functions[fn]
	if !ok {
		return fmt.Errorf("no function at %#x", fn)
	}
	index := slices.Index(chunks, tail)
	if index <= 0 {
		return fmt.Errorf("function at %#x does not own tail %#x", fn, tail.Start)
	}

	d.registry.Dispatch(hook.TailDeletingEvent{Function: fn, Tail: tail})
	d.functions[fn] = slices.Delete(chunks, index, index+1)
	return nil
}

// ReassignTail moves a tail chunk from one owning function to another
// and delivers the notification after the reassignment.
func (d *Database) ReassignTail(tail host.Bounds, from, to uint64) error {
	chunks, ok := d.functions[from]
	if !ok {
		return fmt.Errorf("no function at %#x", from)
	}
	if _, ok := d.functions[to]; !ok {
		return fmt.Errorf("no function at %#x", to)
	}
	index := slices.Index(chunks, tail)
	if index <= 0 {
		return fmt.Errorf("function at %#x does not own tail %#x", from, tail.Start)
	}

	d.functions[from] = slices.Delete(chunks, index, index+1)
	d.functions[to] = append(d.functions[to], tail)
	d.registry.Dispatch(hook.TailOwnerChangedEvent{
		Tail:     tail,
		Owner:    to,
		OldOwner: from,
	})
	return nil
}

// SetFunctionStart moves the entry boundary of a function, delivering
// the notification before the move as a real host does.
func (d *Database) SetFunctionStart(fn, newStart uint64) error {
	chunks, ok := d.functions[fn]
	if !ok {
		return fmt.Errorf("no function at %#x", fn)
	}

	d.registry.Dispatch(hook.FunctionStartChangedEvent{Function: fn, NewStart: newStart})
	chunks[0].Start = newStart
	delete(d.functions, fn)
	d.functions[newStart] = chunks
	return nil
}

// SetFunctionEnd moves the end boundary of a function's entry chunk,
// delivering the notification before the move.
func (d *Database) SetFunctionEnd(fn, newEnd uint64) error {
	chunks, ok := d.functions[fn]
	if !ok {
		return fmt.Errorf("no function at %#x", fn)
	}

	d.registry.Dispatch(hook.FunctionEndChangedEvent{
		Function: fn,
		End:      chunks[0].End,
		NewEnd:   newEnd,
	})
	chunks[0].End = newEnd
	return nil
}
