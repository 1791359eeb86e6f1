package mock

import (
	"github.com/IDAPluginProject/ida-minsc/internal/hook"
	"github.com/IDAPluginProject/ida-minsc/internal/host"
)

// Init delivers the database initialization notification.
func (d *Database) Init() {
	d.registry.Dispatch(hook.DatabaseInitEvent{})
}

// Loaded delivers the notifications of an existing database finishing
// its load and the analysis queues draining.
func (d *Database) Loaded() {
	d.registry.Dispatch(hook.DatabaseLoadedEvent{})
	d.registry.Dispatch(hook.AnalysisFinishedEvent{Final: true})
}

// Created delivers the notifications of a fresh database being created
// and analyzed.
func (d *Database) Created() {
	d.registry.Dispatch(hook.DatabaseCreatedEvent{})
	d.registry.Dispatch(hook.AnalysisFinishedEvent{Final: true})
}

// MoveSegment relocates all database contents in [from, from+size) by
// to-from and delivers the notification after the move.
func (d *Database) MoveSegment(from, to, size uint64) {
	moved := host.Bounds{Start: from, End: from + size}
	rekey := func(ea uint64) uint64 {
		return ea - from + to
	}

	items := map[uint64]struct{}{}
	for ea := range d.items {
		if moved.Contains(ea) {
			items[rekey(ea)] = struct{}{}
		} else {
			items[ea] = struct{}{}
		}
	}
	d.items = items

	comments := map[commentKey]string{}
	for key, text := range d.comments {
		if moved.Contains(key.ea) {
			key.ea = rekey(key.ea)
		}
		comments[key] = text
	}
	d.comments = comments

	fnComments := map[commentKey]string{}
	for key, text := range d.fnComments {
		if moved.Contains(key.ea) {
			key.ea = rekey(key.ea)
		}
		fnComments[key] = text
	}
	d.fnComments = fnComments

	typeInfo := map[uint64][]byte{}
	for ea, ti := range d.typeInfo {
		if moved.Contains(ea) {
			ea = rekey(ea)
		}
		typeInfo[ea] = ti
	}
	d.typeInfo = typeInfo

	functions := map[uint64][]host.Bounds{}
	for fn, chunks := range d.functions {
		for i, chunk := range chunks {
			if moved.Contains(chunk.Start) {
				chunks[i] = host.Bounds{Start: rekey(chunk.Start), End: rekey(chunk.End)}
			}
		}
		if moved.Contains(fn) {
			fn = rekey(fn)
		}
		functions[fn] = chunks
	}
	d.functions = functions

	for i, bounds := range d.external {
		if moved.Contains(bounds.Start) {
			d.external[i] = host.Bounds{Start: rekey(bounds.Start), End: rekey(bounds.End)}
		}
	}

	names := map[uint64]string{}
	for ea, name := range d.names {
		if moved.Contains(ea) {
			ea = rekey(ea)
		}
		names[ea] = name
	}
	d.names = names

	labels := map[uint64]struct{}{}
	for ea := range d.labels {
		if moved.Contains(ea) {
			ea = rekey(ea)
		}
		labels[ea] = struct{}{}
	}
	d.labels = labels

	colors := map[uint64]uint32{}
	for ea, color := range d.colors {
		if moved.Contains(ea) {
			ea = rekey(ea)
		}
		colors[ea] = color
	}
	d.colors = colors

	extra := map[extraKey]string{}
	for key, text := range d.extra {
		if moved.Contains(key.ea) {
			key.ea = rekey(key.ea)
		}
		extra[key] = text
	}
	d.extra = extra

	d.registry.Dispatch(hook.SegmentMovedEvent{From: from, To: to, Size: size})
}
