package symbols

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhramberg/tsnc/internal/types"
)

func TestInsertThenLookup(t *testing.T) {
	ctx := NewGlobal()
	require.NoError(t, ctx.Insert("x", SymbolMetaInsert{DataType: types.Float{}}))

	meta, ok := ctx.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, types.Float{}, meta.DataType)
}

func TestInsertDuplicateFails(t *testing.T) {
	ctx := NewGlobal()
	require.NoError(t, ctx.Insert("x", SymbolMetaInsert{DataType: types.Float{}}))
	err := ctx.Insert("x", SymbolMetaInsert{DataType: types.String{}})
	assert.Error(t, err)
}

func TestChildContextSeesParentScope(t *testing.T) {
	ctx := NewGlobal()
	require.NoError(t, ctx.Insert("x", SymbolMetaInsert{DataType: types.Float{}}))

	child := ctx.CreateChildContext()
	_, ok := child.Lookup("x")
	assert.True(t, ok, "a nested block must see its enclosing block's bindings")
}

func TestChildContextShadowing(t *testing.T) {
	ctx := NewGlobal()
	require.NoError(t, ctx.Insert("x", SymbolMetaInsert{DataType: types.Float{}}))

	child := ctx.CreateChildContext()
	require.NoError(t, child.Insert("x", SymbolMetaInsert{DataType: types.String{}}))

	meta, ok := child.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, types.String{}, meta.DataType, "inner declaration shadows outer")

	meta, ok = ctx.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, types.Float{}, meta.DataType, "Pop/shadowing must not mutate the parent frame")
}

// TestFunctionContextCannotSeeTopLevelScript is the regression test for the
// "no closures over enclosing scope" Non-goal: a function body's
// SymbolContext must never resolve a top-level let/const, only global
// function/import declarations plus its own locals and parameters.
func TestFunctionContextCannotSeeTopLevelScript(t *testing.T) {
	top := NewGlobal()
	require.NoError(t, top.InsertGlobal("|fn:0|greet|_|", SymbolMetaInsert{
		DataType: types.Function{Return: types.Void{}},
	}))
	require.NoError(t, top.Insert("n|1|", SymbolMetaInsert{DataType: types.Float{}}))

	fnCtx := top.CreateFunctionContext(types.Void{})

	_, ok := fnCtx.Lookup("n|1|")
	assert.False(t, ok, "a function body must not resolve a top-level script binding")

	_, ok = fnCtx.Lookup("|fn:0|greet|_|")
	assert.True(t, ok, "a function body must still resolve global function declarations")
}

func TestFunctionContextOwnLocalsDoNotLeakToScript(t *testing.T) {
	top := NewGlobal()
	fnCtx := top.CreateFunctionContext(types.Float{})
	require.NoError(t, fnCtx.Insert("p|1|", SymbolMetaInsert{DataType: types.Float{}}))

	_, ok := top.Lookup("p|1|")
	assert.False(t, ok, "a function parameter must not be visible at top-level script scope")
}

func TestGetReturnType(t *testing.T) {
	ctx := NewGlobal()
	fnCtx := ctx.CreateFunctionContext(types.Boolean{})
	ret, ok := fnCtx.GetReturnType()
	require.True(t, ok)
	assert.Equal(t, types.Boolean{}, ret)

	block := fnCtx.CreateChildContext()
	ret, ok = block.GetReturnType()
	require.True(t, ok)
	assert.Equal(t, types.Boolean{}, ret, "nested blocks inherit the enclosing function's return type")
}

func TestMangleLocalUsesScopeSuffix(t *testing.T) {
	ctx := NewGlobal()
	fnCtx := ctx.CreateFunctionContext(types.Void{})
	block := fnCtx.CreateChildContext()

	got := block.MangleLocal("x")
	assert.Equal(t, "x|"+block.Suffix()+"|", got)
}

func TestMangleExportedFormat(t *testing.T) {
	assert.Equal(t, "|fn:3|foo|_|", MangleExported(3, "foo"))
}

func TestGetTempNameIsUniquePerContext(t *testing.T) {
	ctx := NewGlobal()
	a := ctx.GetTempName()
	b := ctx.GetTempName()
	assert.NotEqual(t, a, b)

	child := ctx.CreateChildContext()
	c := child.GetTempName()
	assert.NotEqual(t, a, c, "tempCounter is shared across contexts derived from the same parse")
}

// buildMangledTable replays a fixed sequence of declarations a parse of one
// small file would produce — a global function, one of its parameters, and a
// name declared in a nested block inside it — and records the mangled name
// each one received.
func buildMangledTable() map[string]string {
	top := NewGlobal()
	table := make(map[string]string, 3)

	table["add"] = MangleExported(0, "add")
	_ = top.InsertGlobal("add", SymbolMetaInsert{
		DataType: types.Function{Params: []types.DataType{types.Float{}}, Return: types.Float{}},
		IsConst:  true, CanExport: true,
	})

	fn := top.CreateFunctionContext(types.Float{})
	table["a"] = fn.MangleLocal("a")
	_ = fn.Insert("a", SymbolMetaInsert{DataType: types.Float{}})

	block := fn.CreateChildContext()
	table["x"] = block.MangleLocal("x")
	_ = block.Insert("x", SymbolMetaInsert{DataType: types.Float{}})

	return table
}

// TestMangledTableIsDeterministic guards against the mangling scheme ever
// depending on anything but declaration order: replaying the exact same
// sequence of Insert/CreateChildContext/CreateFunctionContext calls from two
// independent SymbolContexts must produce byte-identical mangled names, since
// an importing file re-derives an exported symbol's mangled name on its own
// and a second differing run would silently break cross-file linkage.
func TestMangledTableIsDeterministic(t *testing.T) {
	first := buildMangledTable()
	second := buildMangledTable()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("mangled name table differs between two identical replays (-first +second):\n%s", diff)
	}
}

// TestMangledTableMatchesExpectedNames pins the exact mangled spellings of
// spec.md §4.1's two forms (`|fn:i|name|_|` for file-global symbols, `name|S|`
// for locals with scope suffix S) so a future change to the suffix-building
// arithmetic in CreateChildContext/CreateFunctionContext shows up as a
// readable diff instead of a bare assertion failure.
func TestMangledTableMatchesExpectedNames(t *testing.T) {
	want := map[string]string{
		"add": "|fn:0|add|_|",
		"a":   "a|1|",
		"x":   "x|11|",
	}
	got := buildMangledTable()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mangled name table mismatch (-want +got):\n%s", diff)
	}
}

func TestPopRestoresParentUnchanged(t *testing.T) {
	ctx := NewGlobal()
	child := ctx.CreateChildContext()
	require.NoError(t, child.Insert("y", SymbolMetaInsert{DataType: types.Float{}}))

	restored := child.Pop()
	_, ok := restored.Lookup("y")
	assert.False(t, ok, "popping a block scope must discard its bindings")
}
