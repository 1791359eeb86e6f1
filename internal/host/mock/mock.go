// Package mock provides an in-memory host database that delivers the
// same mutation notifications a real host would, for tests and for
// replaying database snapshots.
package mock

import (
	"fmt"
	"slices"

	"github.com/IDAPluginProject/ida-minsc/internal/hook"
	"github.com/IDAPluginProject/ida-minsc/internal/host"
)

type commentKey struct {
	ea         uint64
	repeatable bool
}

type extraKey struct {
	ea     uint64
	prefix bool
}

// Database is an in-memory implementation of host.Database. Mutators
// dispatch the notification pairs of a real host: a changing
// notification before the mutation is applied and a changed notification
// afterwards, on the same call stack.
type Database struct {
	registry *hook.Registry
	bounds   host.Bounds

	items      map[uint64]struct{}
	comments   map[commentKey]string
	fnComments map[commentKey]string
	typeInfo   map[uint64][]byte
	functions  map[uint64][]host.Bounds // entry chunk first
	external   []host.Bounds
	names      map[uint64]string
	labels     map[uint64]struct{}
	colors     map[uint64]uint32
	extra      map[extraKey]string
}

var _ host.Database = (*Database)(nil)

// New creates an empty database covering the given address range.
func New(registry *hook.Registry, bounds host.Bounds) *Database {
	return &Database{
		registry: registry,
		bounds:   bounds,

		items:      map[uint64]struct{}{},
		comments:   map[commentKey]string{},
		fnComments: map[commentKey]string{},
		typeInfo:   map[uint64][]byte{},
		functions:  map[uint64][]host.Bounds{},
		names:      map[uint64]string{},
		labels:     map[uint64]struct{}{},
		colors:     map[uint64]uint32{},
		extra:      map[extraKey]string{},
	}
}

// Bounds implements host.Database.
func (d *Database) Bounds() host.Bounds {
	return d.bounds
}

// DefineItem marks an address as the start of a defined item.
func (d *Database) DefineItem(ea uint64) {
	d.items[ea] = struct{}{}
}

// MarkExternal marks an address range as runtime-linked.
func (d *Database) MarkExternal(bounds host.Bounds) {
	d.external = append(d.external, bounds)
}

// IsExternal implements host.Database.
func (d *Database) IsExternal(ea uint64) bool {
	for _, bounds := range d.external {
		if bounds.Contains(ea) {
			return true
		}
	}
	return false
}

// Comment implements host.Database.
func (d *Database) Comment(ea uint64, repeatable bool) string {
	return d.comments[commentKey{ea: ea, repeatable: repeatable}]
}

// SetComment implements host.Database, delivering the changing/changed
// notification pair around the write.
func (d *Database) SetComment(ea uint64, text string, repeatable bool) error {
	d.registry.Dispatch(hook.CommentChangingEvent{
		Address:    ea,
		Repeatable: repeatable,
		Text:       text,
	})
	d.setComment(ea, text, repeatable)
	d.registry.Dispatch(hook.CommentChangedEvent{
		Address:    ea,
		Repeatable: repeatable,
	})
	return nil
}

func (d *Database) setComment(ea uint64, text string, repeatable bool) {
	key := commentKey{ea: ea, repeatable: repeatable}
	if text == "" {
		delete(d.comments, key)
		return
	}
	d.comments[key] = text
}

// FunctionComment implements host.Database.
func (d *Database) FunctionComment(fn uint64, repeatable bool) string {
	return d.fnComments[commentKey{ea: fn, repeatable: repeatable}]
}

// SetFunctionComment implements host.Database, delivering the range
// comment notification pair around the write.
func (d *Database) SetFunctionComment(fn uint64, text string, repeatable bool) error {
	if _, ok := d.functions[fn]; !ok {
		return fmt.Errorf("no function at %#x", fn)
	}

	d.registry.Dispatch(hook.RangeCommentChangingEvent{
		Start:      fn,
		Repeatable: repeatable,
		Text:       text,
	})
	key := commentKey{ea: fn, repeatable: repeatable}
	if text == "" {
		delete(d.fnComments, key)
	} else {
		d.fnComments[key] = text
	}
	d.registry.Dispatch(hook.RangeCommentChangedEvent{
		Start:      fn,
		Repeatable: repeatable,
		Text:       text,
	})
	return nil
}

// TypeInfo implements host.Database.
func (d *Database) TypeInfo(ea uint64) []byte {
	return d.typeInfo[ea]
}

// SetTypeInfo applies a serialized type descriptor, delivering the type
// notification pair around the write. An empty descriptor removes the
// applied type.
func (d *Database) SetTypeInfo(ea uint64, ti, name []byte) {
	d.registry.Dispatch(hook.TypeChangingEvent{Address: ea, Type: ti, Name: name})
	if len(ti) == 0 {
		delete(d.typeInfo, ea)
	} else {
		d.typeInfo[ea] = slices.Clone(ti)
	}
	d.registry.Dispatch(hook.TypeChangedEvent{Address: ea, Type: ti, Name: name})
}

// Addresses implements host.Database.
func (d *Database) Addresses(bounds host.Bounds) []uint64 {
	var addresses []uint64
	for ea := range d.items {
		if bounds.Contains(ea) {
			addresses = append(addresses, ea)
		}
	}
	slices.Sort(addresses)
	return addresses
}

// NameInfo implements host.Database.
func (d *Database) NameInfo(ea uint64) (bool, bool) {
	_, label := d.labels[ea]
	return label, d.names[ea] != ""
}

// SetName sets or clears the name at an address. The notification is
// delivered before the change is applied, as a real host does.
func (d *Database) SetName(ea uint64, name string) {
	d.registry.Dispatch(hook.RenamedEvent{Address: ea, Name: name})
	if name == "" {
		delete(d.names, ea)
		return
	}
	d.names[ea] = name
}

// SetLabel marks an address as carrying an auto-generated label.
func (d *Database) SetLabel(ea uint64) {
	d.labels[ea] = struct{}{}
}

// Color implements host.Database.
func (d *Database) Color(ea uint64) uint32 {
	if color, ok := d.colors[ea]; ok {
		return color
	}
	return host.DefaultColor
}

// SetColor applies a color to an item and delivers the notification.
func (d *Database) SetColor(ea uint64, color uint32) {
	if color == host.DefaultColor {
		delete(d.colors, ea)
	} else {
		d.colors[ea] = color
	}
	d.registry.Dispatch(hook.ItemColorChangedEvent{Address: ea, Color: color})
}

// HasExtraComment implements host.Database.
func (d *Database) HasExtraComment(ea uint64, prefix bool) bool {
	_, ok := d.extra[extraKey{ea: ea, prefix: prefix}]
	return ok
}

// SetExtraComment sets or clears an extra comment block and delivers
// the notification for its first line.
func (d *Database) SetExtraComment(ea uint64, prefix bool, text string) {
	key := extraKey{ea: ea, prefix: prefix}
	if text == "" {
		delete(d.extra, key)
	} else {
		d.extra[key] = text
	}

	index := host.ExtraSuffixIndex
	if prefix {
		index = host.ExtraPrefixIndex
	}
	d.registry.Dispatch(hook.ExtraCommentChangedEvent{
		Address:   ea,
		LineIndex: index,
		Cleared:   text == "",
	})
}
