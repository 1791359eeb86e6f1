package hooks_test

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"

	"github.com/IDAPluginProject/ida-minsc/internal/hook"
	"github.com/IDAPluginProject/ida-minsc/internal/hooks"
	"github.com/IDAPluginProject/ida-minsc/internal/host"
	"github.com/IDAPluginProject/ida-minsc/internal/host/mock"
	"github.com/IDAPluginProject/ida-minsc/internal/netnode"
	"github.com/IDAPluginProject/ida-minsc/internal/tagcache"
)

type fixture struct {
	db       *mock.Database
	registry *hook.Registry
	globals  *tagcache.Globals
	contents *tagcache.Contents
	hooks    *hooks.Hooks
}

// quietT keeps log.NewTestLogger from aborting the test on error-level
// records, which the protocol-violation subtests produce intentionally.
type quietT struct{ *testing.T }

func (quietT) FailNow() {}

func newFixture(t *testing.T, options hooks.Options) *fixture {
	t.Helper()

	logger := log.NewTestLogger(quietT{t})
	store, err := netnode.OpenInMemory(logger)
	assert.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	registry := hook.NewRegistry(logger)
	db := mock.New(registry, host.Bounds{Start: 0, End: 0x1000000})
	globals := tagcache.NewGlobals(logger, store)
	contents := tagcache.NewContents(logger, store, func(ea uint64) (uint64, bool) {
		if db.IsExternal(ea) {
			return 0, false
		}
		return db.FunctionAt(ea)
	})

	h := hooks.New(logger, db, registry, globals, contents, options)
	h.Attach()

	return &fixture{
		db:       db,
		registry: registry,
		globals:  globals,
		contents: contents,
		hooks:    h,
	}
}

// ready brings the database to the ready state with the cache built.
func (f *fixture) ready(t *testing.T) {
	t.Helper()
	f.db.Loaded()
	assert.Equal(t, hooks.StateReady, f.hooks.State())
}

func TestCommentCorrelation(t *testing.T) {
	t.Run("setting a tag comment counts its key", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		assert.NoError(t, f.db.SetComment(0x401000, "[key1] value1", true))
		assert.Equal(t, uint64(1), f.globals.Count("key1"))
		assert.Equal(t, uint64(1), f.globals.AddressCount(0x401000))
	})

	t.Run("clearing a tag comment untracks its key", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		assert.NoError(t, f.db.SetComment(0x401000, "[key1] value1", true))
		assert.NoError(t, f.db.SetComment(0x401000, "", true))

		assert.Equal(t, uint64(0), f.globals.Count("key1"))
		_, tracked := f.globals.Keys()["key1"]
		assert.False(t, tracked)
	})

	t.Run("comment is rewritten in canonical form", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		assert.NoError(t, f.db.SetComment(0x401000, "[b] 2\n[a] 1", false))
		assert.Equal(t, "[a] 1\n[b] 2", f.db.Comment(0x401000, false))
		assert.Equal(t, uint64(1), f.globals.Count("a"))
		assert.Equal(t, uint64(1), f.globals.Count("b"))
	})

	t.Run("raw text comments leave the ledger alone", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		assert.NoError(t, f.db.SetComment(0x401000, "just a note", false))
		assert.Equal(t, "just a note", f.db.Comment(0x401000, false))
		assert.Equal(t, uint64(0), f.globals.AddressCount(0x401000))
	})

	t.Run("duplicate changing cancels the first pending edit", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.registry.Dispatch(hook.CommentChangingEvent{
			Address: 0x401000, Repeatable: true, Text: "[key1] value1",
		})
		f.registry.Dispatch(hook.CommentChangingEvent{
			Address: 0x401000, Repeatable: true, Text: "",
		})
		f.registry.Dispatch(hook.CommentChangedEvent{
			Address: 0x401000, Repeatable: true,
		})

		// the first edit's changing-phase increment is not rolled back,
		// only the second edit committed
		assert.Equal(t, uint64(1), f.globals.Count("key1"))

		// a second changed has no pending edit left to resume
		f.registry.Dispatch(hook.CommentChangedEvent{
			Address: 0x401000, Repeatable: true,
		})
		assert.Equal(t, uint64(1), f.globals.Count("key1"))
	})

	t.Run("changed without changing does not crash", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.registry.Dispatch(hook.CommentChangedEvent{Address: 0x401000})
		assert.Equal(t, uint64(0), f.globals.AddressCount(0x401000))
	})

	t.Run("out of bounds addresses are ignored", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.registry.Dispatch(hook.CommentChangingEvent{
			Address: 0x2000000, Text: "[key1] value1",
		})
		assert.Equal(t, uint64(0), f.globals.Count("key1"))
	})
}

func TestFunctionCommentCorrelation(t *testing.T) {
	f := newFixture(t, hooks.Options{})
	f.ready(t)

	assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
	assert.NoError(t, f.db.SetFunctionComment(0x500, "[fkey] value", true))

	assert.Equal(t, uint64(1), f.globals.Count("fkey"))
	assert.Equal(t, uint64(1), f.globals.AddressCount(0x500))

	assert.NoError(t, f.db.SetFunctionComment(0x500, "", true))
	assert.Equal(t, uint64(0), f.globals.Count("fkey"))
}

func TestTypeInfoCorrelation(t *testing.T) {
	t.Run("set and clear", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.db.SetTypeInfo(0x401000, []byte{0x0c, 0x01}, nil)
		assert.Equal(t, uint64(1), f.globals.Count("__typeinfo__"))

		f.db.SetTypeInfo(0x401000, nil, nil)
		assert.Equal(t, uint64(0), f.globals.Count("__typeinfo__"))
	})

	t.Run("type tags inside a function stay global", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		f.db.SetTypeInfo(0x510, []byte{0x0c, 0x01}, nil)

		assert.Equal(t, uint64(1), f.globals.Count("__typeinfo__"))
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "__typeinfo__"))
	})

	t.Run("pair disagreeing on the type refetches the host", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.db.SetTypeInfo(0x401000, []byte{0x0c, 0x01}, nil)

		f.registry.Dispatch(hook.TypeChangingEvent{Address: 0x401000, Type: []byte{0x0d}})
		f.registry.Dispatch(hook.TypeChangedEvent{Address: 0x401000, Type: []byte{0x0e}})

		// the host still holds the originally applied type
		assert.Equal(t, uint64(1), f.globals.Count("__typeinfo__"))
	})
}

func TestStructuralHandlers(t *testing.T) {
	t.Run("rename", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.db.SetName(0x401000, "entry_point")
		assert.Equal(t, uint64(1), f.globals.Count("__name__"))

		// renaming an already named address does not double count
		f.db.SetName(0x401000, "start")
		assert.Equal(t, uint64(1), f.globals.Count("__name__"))

		f.db.SetName(0x401000, "")
		assert.Equal(t, uint64(0), f.globals.Count("__name__"))
	})

	t.Run("function entry names are global tags", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		f.db.SetName(0x500, "dispatch_table")
		assert.Equal(t, uint64(1), f.globals.Count("__name__"))
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "__name__"))

		// a name inside the body follows the owning function
		f.db.SetName(0x510, "retry_loop")
		assert.Equal(t, uint64(1), f.globals.Count("__name__"))
		assert.Equal(t, uint64(1), f.contents.Count(0x500, "__name__"))
	})

	t.Run("item color", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.db.SetColor(0x401000, 0x00ff00)
		assert.Equal(t, uint64(1), f.globals.Count("__color__"))

		f.db.SetColor(0x401000, host.DefaultColor)
		assert.Equal(t, uint64(0), f.globals.Count("__color__"))
	})

	t.Run("extra comments", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.db.SetExtraComment(0x401000, true, "before")
		f.db.SetExtraComment(0x401000, false, "after")
		assert.Equal(t, uint64(1), f.globals.Count("__extra_prefix__"))
		assert.Equal(t, uint64(1), f.globals.Count("__extra_suffix__"))

		f.db.SetExtraComment(0x401000, true, "")
		assert.Equal(t, uint64(0), f.globals.Count("__extra_prefix__"))
	})
}

func TestFunctionLifecycle(t *testing.T) {
	t.Run("creating a function claims global tags", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x510)

		assert.NoError(t, f.db.SetComment(0x510, "[name1] value", false))
		assert.Equal(t, uint64(1), f.globals.Count("name1"))

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		assert.Equal(t, uint64(0), f.globals.Count("name1"))
		assert.Equal(t, uint64(1), f.contents.Count(0x500, "name1"))
	})

	t.Run("deleting a function releases its tags", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x510)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		assert.NoError(t, f.db.SetComment(0x510, "[name1] value", false))
		assert.NoError(t, f.db.SetFunctionComment(0x500, "[fkey] value", true))

		assert.NoError(t, f.db.DeleteFunction(0x500))
		assert.Equal(t, uint64(1), f.globals.Count("name1"))
		assert.Equal(t, uint64(0), f.globals.Count("fkey"))
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "name1"))
	})

	t.Run("creating a function leaves its entry tags in globals", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x500)

		f.db.SetName(0x500, "handler")
		f.db.SetTypeInfo(0x500, []byte{0x0c}, nil)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		assert.Equal(t, uint64(1), f.globals.Count("__name__"))
		assert.Equal(t, uint64(1), f.globals.Count("__typeinfo__"))
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "__name__"))
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "__typeinfo__"))
	})

	t.Run("deleting a function drops its function-level tags", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		f.db.SetName(0x500, "handler")
		f.db.SetTypeInfo(0x500, []byte{0x0c}, nil)
		assert.Equal(t, uint64(1), f.globals.Count("__name__"))
		assert.Equal(t, uint64(1), f.globals.Count("__typeinfo__"))

		assert.NoError(t, f.db.DeleteFunction(0x500))
		assert.Equal(t, uint64(0), f.globals.Count("__name__"))
		assert.Equal(t, uint64(0), f.globals.Count("__typeinfo__"))
	})
}

func TestCommentMismatchRecovery(t *testing.T) {
	t.Run("mismatched pair inverts the changing delta", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.registry.Dispatch(hook.CommentChangingEvent{
			Address: 0x401000, Repeatable: false, Text: "[key1] value1",
		})
		assert.Equal(t, uint64(1), f.globals.Count("key1"))

		// the changed half arrives for the other comment kind
		f.registry.Dispatch(hook.CommentChangedEvent{
			Address: 0x401000, Repeatable: true,
		})

		assert.Equal(t, uint64(0), f.globals.Count("key1"))
		assert.Equal(t, uint64(0), f.globals.AddressCount(0x401000))
		assert.Equal(t, "", f.db.Comment(0x401000, false))
	})

	t.Run("recovery recounts what the host stores", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})

		// seeded before the database is ready, so the ledger does not
		// account for it yet
		assert.NoError(t, f.db.SetComment(0x401000, "[host1] value", true))
		f.ready(t)

		f.registry.Dispatch(hook.CommentChangingEvent{
			Address: 0x401000, Repeatable: false, Text: "[new1] value",
		})
		f.registry.Dispatch(hook.CommentChangedEvent{
			Address: 0x401000, Repeatable: true,
		})

		assert.Equal(t, uint64(0), f.globals.Count("new1"))
		assert.Equal(t, uint64(1), f.globals.Count("host1"))
	})

	t.Run("mismatched function comment pair is recovered", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		f.registry.Dispatch(hook.RangeCommentChangingEvent{
			Start: 0x500, Repeatable: false, Text: "[fkey] value",
		})
		assert.Equal(t, uint64(1), f.globals.Count("fkey"))

		f.registry.Dispatch(hook.RangeCommentChangedEvent{
			Start: 0x500, Repeatable: true,
		})

		assert.Equal(t, uint64(0), f.globals.Count("fkey"))
		assert.Equal(t, uint64(0), f.globals.AddressCount(0x500))
	})
}

func TestTailAccounting(t *testing.T) {
	t.Run("detaching the last owner demotes to globals", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x608)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		tail := host.Bounds{Start: 0x600, End: 0x610}
		assert.NoError(t, f.db.AppendTail(0x500, tail))
		assert.NoError(t, f.db.SetComment(0x608, "[tag] value", false))
		assert.Equal(t, uint64(1), f.contents.Count(0x500, "tag"))

		assert.NoError(t, f.db.RemoveTail(0x500, tail))
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "tag"))
		assert.Equal(t, uint64(1), f.globals.Count("tag"))
	})

	t.Run("attach and detach restore the original ledger", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x608)

		assert.NoError(t, f.db.SetComment(0x608, "[tag] value", false))
		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		tail := host.Bounds{Start: 0x600, End: 0x610}

		assert.NoError(t, f.db.AppendTail(0x500, tail))
		assert.NoError(t, f.db.RemoveTail(0x500, tail))

		assert.Equal(t, uint64(1), f.globals.Count("tag"))
		assert.Equal(t, uint64(1), f.globals.AddressCount(0x608))
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "tag"))
	})

	t.Run("shared tails tally additively", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x608)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x700, End: 0x720}))
		tail := host.Bounds{Start: 0x600, End: 0x610}
		assert.NoError(t, f.db.AppendTail(0x500, tail))
		assert.NoError(t, f.db.SetComment(0x608, "[tag] value", false))

		assert.NoError(t, f.db.AppendTail(0x700, tail))
		assert.Equal(t, uint64(1), f.contents.Count(0x500, "tag"))
		assert.Equal(t, uint64(1), f.contents.Count(0x700, "tag"))
		assert.Equal(t, uint64(0), f.globals.Count("tag"))
	})

	t.Run("reassigning a tail moves its tags", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x608)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x700, End: 0x720}))
		tail := host.Bounds{Start: 0x600, End: 0x610}
		assert.NoError(t, f.db.AppendTail(0x500, tail))
		assert.NoError(t, f.db.SetComment(0x608, "[tag] value", false))

		assert.NoError(t, f.db.ReassignTail(tail, 0x500, 0x700))
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "tag"))
		assert.Equal(t, uint64(1), f.contents.Count(0x700, "tag"))
	})
}

func TestBoundaryMoves(t *testing.T) {
	t.Run("growing the front claims global tags", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x4f0)
		f.db.DefineItem(0x510)

		assert.NoError(t, f.db.SetComment(0x4f0, "[tag] value", false))
		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		assert.NoError(t, f.db.SetComment(0x510, "[inner] value", false))

		assert.NoError(t, f.db.SetFunctionStart(0x500, 0x4f0))
		assert.Equal(t, uint64(0), f.globals.Count("tag"))
		assert.Equal(t, uint64(1), f.contents.Count(0x4f0, "tag"))
		// the shard moved to the new entry address
		assert.Equal(t, uint64(1), f.contents.Count(0x4f0, "inner"))
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "inner"))
	})

	t.Run("shrinking the back releases tags", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x518)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		assert.NoError(t, f.db.SetComment(0x518, "[tag] value", false))

		assert.NoError(t, f.db.SetFunctionEnd(0x500, 0x510))
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "tag"))
		assert.Equal(t, uint64(1), f.globals.Count("tag"))
	})

	t.Run("growing the back claims global tags", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x528)

		assert.NoError(t, f.db.SetComment(0x528, "[tag] value", false))
		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))

		assert.NoError(t, f.db.SetFunctionEnd(0x500, 0x530))
		assert.Equal(t, uint64(1), f.contents.Count(0x500, "tag"))
		assert.Equal(t, uint64(0), f.globals.Count("tag"))
	})
}

func TestBuild(t *testing.T) {
	t.Run("claims tags for function contents", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})

		// seed the database before it is ready, the notifications fired
		// here are ignored
		f.db.DefineItem(0x510)
		assert.NoError(t, f.db.SetComment(0x510, "[tag] value", false))
		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))

		// a stale ledger still accounts the address as a global
		f.globals.Inc(0x510, "tag")

		var calls int
		f.hooks.SetProgress(func(done, total int) {
			calls++
		})
		f.ready(t)

		assert.Equal(t, uint64(0), f.globals.Count("tag"))
		assert.Equal(t, uint64(1), f.contents.Count(0x500, "tag"))
		assert.True(t, calls > 0)
	})

	t.Run("skips runtime-linked functions", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})

		f.db.DefineItem(0x510)
		assert.NoError(t, f.db.SetComment(0x510, "[tag] value", false))
		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))
		f.db.MarkExternal(host.Bounds{Start: 0x500, End: 0x520})

		f.ready(t)
		assert.Equal(t, uint64(0), f.contents.Count(0x500, "tag"))
	})

	t.Run("does not double count an intact cache", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})

		f.db.DefineItem(0x510)
		assert.NoError(t, f.db.SetComment(0x510, "[tag] value", false))
		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x500, End: 0x520}))

		f.ready(t)
		f.hooks.Build()
		assert.Equal(t, uint64(1), f.contents.Count(0x500, "tag"))
	})
}

func TestRelocation(t *testing.T) {
	t.Run("globals move with the segment", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		assert.True(t, f.globals.SetAddressCount(0x10100, 3))
		assert.Empty(t, f.hooks.Relocate(0x10000, 0x20000, 0x1000))

		assert.Equal(t, uint64(0), f.globals.AddressCount(0x10100))
		assert.Equal(t, uint64(3), f.globals.AddressCount(0x20100))
	})

	t.Run("contents shards are re-keyed", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x10110)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x10100, End: 0x10120}))
		assert.NoError(t, f.db.SetComment(0x10110, "[tag] value", false))

		f.db.MoveSegment(0x10000, 0x20000, 0x1000)

		assert.Equal(t, uint64(0), f.contents.Count(0x10100, "tag"))
		assert.Equal(t, uint64(1), f.contents.Count(0x20100, "tag"))
		assert.Equal(t, []uint64{0x20110}, f.contents.Addresses(0x20100))
	})

	t.Run("relocating back restores the original ledger", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)
		f.db.DefineItem(0x10110)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x10100, End: 0x10120}))
		assert.NoError(t, f.db.SetComment(0x10110, "[tag] value", false))
		assert.True(t, f.globals.SetAddressCount(0x10200, 2))

		f.db.MoveSegment(0x10000, 0x20000, 0x1000)
		f.db.MoveSegment(0x20000, 0x10000, 0x1000)

		assert.Equal(t, uint64(1), f.contents.Count(0x10100, "tag"))
		assert.Equal(t, []uint64{0x10110}, f.contents.Addresses(0x10100))
		assert.Equal(t, uint64(2), f.globals.AddressCount(0x10200))
		assert.Equal(t, uint64(0), f.globals.AddressCount(0x20200))
	})

	t.Run("stray entries without a function are purged", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.contents.IncFor(0x10100, 0x10110, "tag")
		assert.Empty(t, f.hooks.Relocate(0x10000, 0x20000, 0x1000))

		assert.Nil(t, f.contents.ReadState(0x10100))
		assert.Nil(t, f.contents.ReadState(0x20100))
	})

	t.Run("strays inside a live function are preserved", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		// a function exists at the target range, but the shard's new
		// address is not its entry
		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x20100, End: 0x20120}))
		f.contents.IncFor(0x10110, 0x10110, "tag")

		assert.Empty(t, f.hooks.Relocate(0x10000, 0x20000, 0x1000))
		assert.NotNil(t, f.contents.ReadState(0x10110))
	})

	t.Run("strays inside a live function can be merged", func(t *testing.T) {
		f := newFixture(t, hooks.Options{ForceMergeStrays: true})
		f.ready(t)

		assert.NoError(t, f.db.CreateFunction(host.Bounds{Start: 0x20100, End: 0x20120}))
		f.contents.IncFor(0x10110, 0x10110, "tag")

		assert.Empty(t, f.hooks.Relocate(0x10000, 0x20000, 0x1000))

		assert.Nil(t, f.contents.ReadState(0x10110))
		assert.Equal(t, uint64(1), f.contents.Count(0x20100, "tag"))
		assert.Equal(t, []uint64{0x20110}, f.contents.Addresses(0x20100))
	})
}

func TestLifecycleStates(t *testing.T) {
	t.Run("notifications before ready are ignored", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})

		assert.NoError(t, f.db.SetComment(0x401000, "[key1] value1", true))
		assert.Equal(t, uint64(0), f.globals.Count("key1"))
	})

	t.Run("re-initialization discards pending edits", func(t *testing.T) {
		f := newFixture(t, hooks.Options{})
		f.ready(t)

		f.registry.Dispatch(hook.CommentChangingEvent{
			Address: 0x401000, Repeatable: true, Text: "[key1] value1",
		})
		f.db.Init()
		assert.Equal(t, hooks.StateInit, f.hooks.State())

		// the pending edit is gone, a late changed is a protocol
		// violation once the database is ready again
		f.db.Loaded()
		f.registry.Dispatch(hook.CommentChangedEvent{
			Address: 0x401000, Repeatable: true,
		})
		assert.Equal(t, uint64(1), f.globals.Count("key1"))
	})
}
