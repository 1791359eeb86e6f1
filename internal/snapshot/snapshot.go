// Package snapshot loads database snapshots from YAML files. A snapshot
// describes the initial contents of a database and an optional edit
// script that is replayed through the notification stream once the
// database is ready.
package snapshot

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/IDAPluginProject/ida-minsc/internal/host"
	"github.com/IDAPluginProject/ida-minsc/internal/host/mock"
)

// Range describes a half-open address range.
type Range struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

func (r Range) bounds() host.Bounds {
	return host.Bounds{Start: r.Start, End: r.End}
}

// Comment describes a comment attached to an address or function.
type Comment struct {
	Address    uint64 `yaml:"address"`
	Text       string `yaml:"text"`
	Repeatable bool   `yaml:"repeatable"`
}

// Name describes a name or label attached to an address.
type Name struct {
	Address uint64 `yaml:"address"`
	Name    string `yaml:"name"`
	Label   bool   `yaml:"label"`
}

// Color describes a color applied to an item.
type Color struct {
	Address uint64 `yaml:"address"`
	Color   uint32 `yaml:"color"`
}

// TypeInfo describes a serialized type descriptor applied at an address.
type TypeInfo struct {
	Address uint64 `yaml:"address"`
	Data    string `yaml:"data"` // hex encoded
}

// Extra describes an extra comment block before or after an item.
type Extra struct {
	Address uint64 `yaml:"address"`
	Prefix  bool   `yaml:"prefix"`
	Text    string `yaml:"text"`
}

// Function describes a function and its chunks, the entry chunk first.
type Function struct {
	Chunks []Range `yaml:"chunks"`
}

// Edit is a single replayed database mutation.
type Edit struct {
	Op string `yaml:"op"`

	Address    uint64 `yaml:"address,omitempty"`
	Text       string `yaml:"text,omitempty"`
	Repeatable bool   `yaml:"repeatable,omitempty"`
	Name       string `yaml:"name,omitempty"`
	Color      uint32 `yaml:"color,omitempty"`
	Prefix     bool   `yaml:"prefix,omitempty"`
	Data       string `yaml:"data,omitempty"` // hex encoded
	Start      uint64 `yaml:"start,omitempty"`
	End        uint64 `yaml:"end,omitempty"`
	Function   uint64 `yaml:"function,omitempty"`
	To         uint64 `yaml:"to,omitempty"`
	From       uint64 `yaml:"from,omitempty"`
	Size       uint64 `yaml:"size,omitempty"`
}

// Snapshot is the YAML representation of a database.
type Snapshot struct {
	Bounds           Range      `yaml:"bounds"`
	Items            []uint64   `yaml:"items"`
	Externals        []Range    `yaml:"externals"`
	Functions        []Function `yaml:"functions"`
	Comments         []Comment  `yaml:"comments"`
	FunctionComments []Comment  `yaml:"function_comments"`
	Names            []Name     `yaml:"names"`
	Colors           []Color    `yaml:"colors"`
	Types            []TypeInfo `yaml:"types"`
	Extras           []Extra    `yaml:"extras"`
	Edits            []Edit     `yaml:"edits"`
}

// Load reads and parses a snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}

	var snapshot Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot file: %w", err)
	}
	if snapshot.Bounds.End <= snapshot.Bounds.Start {
		return nil, fmt.Errorf("invalid database bounds %#x-%#x",
			snapshot.Bounds.Start, snapshot.Bounds.End)
	}
	return &snapshot, nil
}

// Seed populates a fresh database with the snapshot's initial contents.
// Notifications fired during seeding are delivered before the database
// is marked ready, subscribers are expected to ignore them.
func (s *Snapshot) Seed(db *mock.Database) error {
	for _, ea := range s.Items {
		db.DefineItem(ea)
	}
	for _, r := range s.Externals {
		db.MarkExternal(r.bounds())
	}

	for i, fn := range s.Functions {
		if len(fn.Chunks) == 0 {
			return fmt.Errorf("function %d has no chunks", i)
		}
		if err := db.CreateFunction(fn.Chunks[0].bounds()); err != nil {
			return fmt.Errorf("creating function: %w", err)
		}
		for _, tail := range fn.Chunks[1:] {
			if err := db.AppendTail(fn.Chunks[0].Start, tail.bounds()); err != nil {
				return fmt.Errorf("attaching tail: %w", err)
			}
		}
	}

	for _, c := range s.Comments {
		if err := db.SetComment(c.Address, c.Text, c.Repeatable); err != nil {
			return fmt.Errorf("seeding comment: %w", err)
		}
	}
	for _, c := range s.FunctionComments {
		if err := db.SetFunctionComment(c.Address, c.Text, c.Repeatable); err != nil {
			return fmt.Errorf("seeding function comment: %w", err)
		}
	}
	for _, n := range s.Names {
		if n.Label {
			db.SetLabel(n.Address)
		}
		if n.Name != "" {
			db.SetName(n.Address, n.Name)
		}
	}
	for _, c := range s.Colors {
		db.SetColor(c.Address, c.Color)
	}
	for _, ti := range s.Types {
		data, err := hex.DecodeString(ti.Data)
		if err != nil {
			return fmt.Errorf("decoding type data at %#x: %w", ti.Address, err)
		}
		db.SetTypeInfo(ti.Address, data, nil)
	}
	for _, e := range s.Extras {
		db.SetExtraComment(e.Address, e.Prefix, e.Text)
	}
	return nil
}

// Replay applies the snapshot's edit script to the database, delivering
// the notifications of each mutation.
func (s *Snapshot) Replay(db *mock.Database) error {
	for i, edit := range s.Edits {
		if err := apply(db, edit); err != nil {
			return fmt.Errorf("edit %d (%s): %w", i, edit.Op, err)
		}
	}
	return nil
}

func apply(db *mock.Database, edit Edit) error {
	switch edit.Op {
	case "comment":
		return db.SetComment(edit.Address, edit.Text, edit.Repeatable)

	case "function_comment":
		return db.SetFunctionComment(edit.Address, edit.Text, edit.Repeatable)

	case "name":
		db.SetName(edit.Address, edit.Name)

	case "color":
		db.SetColor(edit.Address, edit.Color)

	case "extra":
		db.SetExtraComment(edit.Address, edit.Prefix, edit.Text)

	case "type":
		data, err := hex.DecodeString(edit.Data)
		if err != nil {
			return fmt.Errorf("decoding type data: %w", err)
		}
		db.SetTypeInfo(edit.Address, data, nil)

	case "create_function":
		return db.CreateFunction(host.Bounds{Start: edit.Start, End: edit.End})

	case "delete_function":
		return db.DeleteFunction(edit.Function)

	case "append_tail":
		return db.AppendTail(edit.Function, host.Bounds{Start: edit.Start, End: edit.End})

	case "remove_tail":
		return db.RemoveTail(edit.Function, host.Bounds{Start: edit.Start, End: edit.End})

	case "set_function_start":
		return db.SetFunctionStart(edit.Function, edit.Start)

	case "set_function_end":
		return db.SetFunctionEnd(edit.Function, edit.End)

	case "move_segment":
		db.MoveSegment(edit.From, edit.To, edit.Size)

	default:
		return fmt.Errorf("unknown op %q", edit.Op)
	}
	return nil
}
