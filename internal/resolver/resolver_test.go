package resolver

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhramberg/tsnc/internal/ast"
	"github.com/hhramberg/tsnc/internal/types"
)

// fakeParse stubs out the parser package (avoided here to keep this test
// package free of the parser->resolver->parser import cycle the real
// ParseFunc indirection exists to break): every file parses to an empty
// declaration list and an empty export table, regardless of its source
// text, which is all the resolver's own bookkeeping needs to exercise its
// id assignment, caching and cycle detection.
func fakeParse(r *Resolver, absPath string, fileID int, src string) (*ast.File, map[string]types.DataType, error) {
	return &ast.File{Path: absPath, FileID: fileID}, map[string]types.DataType{}, nil
}

func TestResolveAssignsSequentialFileIDs(t *testing.T) {
	entry := "/proj/main.ts"
	r := New(entry, func(absPath string) (string, error) { return "", nil })

	require.NoError(t, r.Resolve("./a.ts", entry, fakeParse))
	require.NoError(t, r.Resolve("./b.ts", entry, fakeParse))

	idA, err := r.GetID("./a.ts", entry)
	require.NoError(t, err)
	idB, err := r.GetID("./b.ts", entry)
	require.NoError(t, err)

	assert.Equal(t, 2, idA)
	assert.Equal(t, 3, idB)
}

func TestResolveRejectsDuplicate(t *testing.T) {
	entry := "/proj/main.ts"
	r := New(entry, func(absPath string) (string, error) { return "", nil })

	require.NoError(t, r.Resolve("./a.ts", entry, fakeParse))
	err := r.Resolve("./a.ts", entry, fakeParse)
	assert.Error(t, err)
}

func TestCompilerInternalPreregistered(t *testing.T) {
	entry := "/proj/main.ts"
	r := New(entry, func(absPath string) (string, error) { return "", nil })

	ok, err := r.Contains(CompilerInternalPath, entry)
	require.NoError(t, err)
	assert.True(t, ok)

	exports, ok, err := r.Get(CompilerInternalPath, entry)
	require.NoError(t, err)
	require.True(t, ok)
	fn, ok := exports["syscallPrint"].(types.Function)
	require.True(t, ok)
	assert.Len(t, fn.Params, 3)
}

func TestEntryFileReservedID(t *testing.T) {
	entry := "/proj/main.ts"
	r := New(entry, func(absPath string) (string, error) { return "", nil })

	id, err := r.GetID(entry, entry)
	require.NoError(t, err)
	assert.Equal(t, EntryFileID, id)
}

func TestLoaderFailurePropagates(t *testing.T) {
	entry := "/proj/main.ts"
	r := New(entry, func(absPath string) (string, error) { return "", errors.New("boom") })
	err := r.Resolve("./missing.ts", entry, fakeParse)
	assert.Error(t, err)
}

func TestFilesIncludesEntryAfterSetEntryFile(t *testing.T) {
	entry := "/proj/main.ts"
	r := New(entry, func(absPath string) (string, error) { return "", nil })

	r.SetEntryFile(entry, &ast.File{}, map[string]types.DataType{})
	files := r.Files()
	require.Len(t, files, 1)
	assert.Equal(t, entry, files[0].Path)
	assert.Equal(t, EntryFileID, files[0].FileID)
}

func TestLenCountsCompilerInternalAndEntry(t *testing.T) {
	entry := "/proj/main.ts"
	r := New(entry, func(absPath string) (string, error) { return "", nil })
	assert.Equal(t, 2, r.Len())
}
