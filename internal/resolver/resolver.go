// Package resolver implements the cross-module import resolver: a
// demand-driven loader that parses imported files on first reference,
// caches their exported symbol tables, and assigns each source file a
// stable numeric id used in mangled names (spec.md §4.3).
//
// This is grounded on original_source/packages/driver/src/
// cmd_import_resolver.rs's CommandLineResolver and file_unique_id.rs: file
// id 0 is reserved for the entry file, 1 for "compilerInternal", and 2+ for
// every other file in first-resolve order.
package resolver

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/hhramberg/tsnc/internal/ast"
	"github.com/hhramberg/tsnc/internal/types"
)

// CompilerInternalPath is the sentinel import path for the built-in
// intrinsics table (spec.md §4.2, §6).
const CompilerInternalPath = "compilerInternal"

const (
	// EntryFileID is the file id always reserved for the compilation's
	// entry file (spec.md §4.3).
	EntryFileID   = 0
	entryFileID   = EntryFileID
	internalFileID = 1
)

// Loader fetches the full text of a source file, given its absolute path.
// It is the resolver's sole I/O collaborator, supplied by the driver
// (spec.md §5: "The loader callback provided to the resolver is called
// synchronously and is expected to return the full file text.").
type Loader func(absPath string) (string, error)

// entry is one cached file's resolved state.
type entry struct {
	fileID   int
	exported map[string]types.DataType
	file     *ast.File
}

// Resolver owns the per-file cache described in spec.md §2/§3. It is not
// safe for concurrent Resolve calls against overlapping paths (spec.md §5:
// single-threaded, one resolve runs to completion before the next begins),
// but Get/Contains/GetID are safe to call from IR-generation goroutines
// once parsing has completed, hence the RWMutex.
type Resolver struct {
	mu      sync.RWMutex
	cache   map[string]*entry // absolute path -> entry
	load    Loader
	nextID  int
	inFlight map[string]bool // paths currently being resolved, to reject cycles
}

// New creates a Resolver with the compilerInternal entry pre-populated and
// seeds its cache with the entry file's absolute path reserved for fileID 0.
func New(entryAbsPath string, load Loader) *Resolver {
	r := &Resolver{
		cache:    make(map[string]*entry),
		load:     load,
		nextID:   2,
		inFlight: make(map[string]bool),
	}
	r.cache[CompilerInternalPath] = &entry{fileID: internalFileID, exported: internalSymbols()}
	r.cache[entryAbsPath] = &entry{fileID: entryFileID}
	return r
}

// internalSymbols is the compile-time constant exported-symbol table for
// the compilerInternal built-in module (spec.md §4.4, §6).
func internalSymbols() map[string]types.DataType {
	return map[string]types.DataType{
		"syscallPrint": types.Function{
			Params: []types.DataType{types.Float{}, types.String{}, types.Float{}},
			Return: types.Void{},
		},
	}
}

// AbsolutePath resolves relPath against the directory of curFile and
// absolutizes the result; an already absolute relPath is used as is. This is
// the cache key (spec.md §4.3).
func AbsolutePath(relPath, curFile string) (string, error) {
	if relPath == CompilerInternalPath {
		return CompilerInternalPath, nil
	}
	joined := relPath
	if !filepath.IsAbs(relPath) {
		joined = filepath.Join(filepath.Dir(curFile), relPath)
	}
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", errors.Wrapf(err, "could not absolutize import path %q from %q", relPath, curFile)
	}
	return abs, nil
}

// Contains reports whether relPath (resolved against curFile) is already in
// the cache.
func (r *Resolver) Contains(relPath, curFile string) (bool, error) {
	abs, err := AbsolutePath(relPath, curFile)
	if err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[abs]
	return ok, nil
}

// Get returns the exported symbol table for relPath, if it has been
// resolved.
func (r *Resolver) Get(relPath, curFile string) (map[string]types.DataType, bool, error) {
	abs, err := AbsolutePath(relPath, curFile)
	if err != nil {
		return nil, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[abs]
	if !ok {
		return nil, false, nil
	}
	return e.exported, true, nil
}

// GetID returns the stable file id for relPath (resolved against curFile).
func (r *Resolver) GetID(relPath, curFile string) (int, error) {
	abs, err := AbsolutePath(relPath, curFile)
	if err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[abs]
	if !ok {
		return 0, errors.Errorf("file %q has not been resolved", abs)
	}
	return e.fileID, nil
}

// ParseFunc parses the text of one file into its declarations plus the
// file-scope exported symbol table. fileID is the id Resolve has already
// reserved for absPath, needed so the parser can mangle this file's own
// exported declarations. The resolver calls back into the parser package
// through this indirection to avoid an import cycle (parser imports
// resolver to drive recursive resolution).
type ParseFunc func(r *Resolver, absPath string, fileID int, src string) (*ast.File, map[string]types.DataType, error)

// Resolve loads, tokenizes and recursively parses the file at relPath
// (resolved against curFile), then caches its (AST, exports, file id).
// It fails if the path is already present (including in-flight, which
// rejects circular imports per spec.md §4.3) or if loading/parsing fails.
func (r *Resolver) Resolve(relPath, curFile string, parse ParseFunc) error {
	abs, err := AbsolutePath(relPath, curFile)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.cache[abs]; ok {
		r.mu.Unlock()
		return errors.Errorf("there is already a file with path %q", abs)
	}
	if r.inFlight[abs] {
		r.mu.Unlock()
		return errors.Errorf("circular import detected resolving %q", abs)
	}
	r.inFlight[abs] = true
	id := r.nextID
	r.nextID++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inFlight, abs)
		r.mu.Unlock()
	}()

	src, err := r.load(abs)
	if err != nil {
		return errors.Wrapf(err, "could not load imported file %q", abs)
	}

	file, exports, err := parse(r, abs, id, src)
	if err != nil {
		return errors.Wrapf(err, "could not parse imported file %q", abs)
	}
	file.FileID = id
	file.Path = abs

	r.mu.Lock()
	r.cache[abs] = &entry{fileID: id, exported: exports, file: file}
	r.mu.Unlock()
	return nil
}

// Files returns every resolved *ast.File in the cache, including the entry
// file once the caller has populated it via SetEntryFile. Used by the
// driver to hand every parsed file to the IR generator (spec.md §2: "the IR
// generator runs once per (parsed-file, AST) pair").
func (r *Resolver) Files() []*ast.File {
	r.mu.RLock()
	defer r.mu.RUnlock()
	files := make([]*ast.File, 0, len(r.cache))
	for _, e := range r.cache {
		if e.file != nil {
			files = append(files, e.file)
		}
	}
	return files
}

// SetEntryFile records the entry file's parsed AST and exported symbols
// under its reserved id 0.
func (r *Resolver) SetEntryFile(absPath string, file *ast.File, exports map[string]types.DataType) {
	file.FileID = entryFileID
	file.Path = absPath
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[absPath] = &entry{fileID: entryFileID, exported: exports, file: file}
}

// Len reports the number of distinct files in the resolver's cache,
// including the entry file and compilerInternal (Testable Property #5).
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
