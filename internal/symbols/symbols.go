// Package symbols implements the lexically nested SymbolContext and the
// compiler's name-mangling scheme (spec.md §4.1). The parent chain is a
// plain slice of frames rather than heap-linked parent pointers, per design
// note §9 ("a simple vector of frames suffices and allows O(1) pop") — this
// mirrors the teacher's util.Stack, which the parser pushes/pops exactly
// the same way the IR generator pushes/pops its own scope stack
// (ir/llvm/transform.go's `st *util.Stack`).
package symbols

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/hhramberg/tsnc/internal/types"
)

// ExternalRef marks a symbol as having been imported from another file.
type ExternalRef struct {
	FileID int
}

// SymbolMetaInsert is the metadata carried by one inserted symbol.
type SymbolMetaInsert struct {
	DataType  types.DataType
	IsConst   bool
	CanExport bool
	External  *ExternalRef // nil unless this symbol was imported
}

// frame is one lexically nested scope level.
type frame struct {
	symbols  map[string]SymbolMetaInsert
	suffix   string // scope suffix appended to mangled local names
	counter  int    // nested-block counter, used to mint child suffixes
	retType  types.DataType
	hasRet   bool
}

// SymbolContext is a lexically nested scope stack. The zero value is not
// usable; create one with NewGlobal.
type SymbolContext struct {
	frames      []*frame // frames[0] is global, frames[len-1] is innermost
	tempCounter *int     // shared by all contexts derived from the same Parse
}

// NewGlobal creates the outermost SymbolContext for one file's parse. It
// starts with two frames: frames[0] holds function and import declarations
// (the only names a function body may see besides its own locals and
// parameters — spec.md's Non-goals exclude closures over enclosing scope);
// frames[1] holds the entry file's top-level let/const bindings, visible
// only to later top-level statements, never to a function body, since
// CreateFunctionContext deliberately starts a function's frame chain at
// frames[0] and skips this one.
func NewGlobal() *SymbolContext {
	tc := 0
	return &SymbolContext{
		frames: []*frame{
			{symbols: make(map[string]SymbolMetaInsert), suffix: ""},
			{symbols: make(map[string]SymbolMetaInsert), suffix: ""},
		},
		tempCounter: &tc,
	}
}

// Lookup walks the frame chain from innermost to outermost and returns the
// first match.
func (c *SymbolContext) Lookup(name string) (SymbolMetaInsert, bool) {
	for i1 := len(c.frames) - 1; i1 >= 0; i1-- {
		if m, ok := c.frames[i1].symbols[name]; ok {
			return m, true
		}
	}
	return SymbolMetaInsert{}, false
}

// Insert adds name to the current (innermost) scope. It fails if name
// already exists at this level (spec.md §3: "insertion fails if the name
// already exists in the current level").
func (c *SymbolContext) Insert(name string, meta SymbolMetaInsert) error {
	top := c.frames[len(c.frames)-1]
	if _, ok := top.symbols[name]; ok {
		return errors.Errorf("already defined: %q is already declared in this scope", name)
	}
	top.symbols[name] = meta
	return nil
}

// InsertGlobal adds name to the outermost (file-global) scope, used for
// function and import declarations per spec.md §4.2.
func (c *SymbolContext) InsertGlobal(name string, meta SymbolMetaInsert) error {
	top := c.frames[0]
	if _, ok := top.symbols[name]; ok {
		return errors.Errorf("already defined: %q is already declared at file scope", name)
	}
	top.symbols[name] = meta
	return nil
}

// CreateChildContext returns a new context handle with one more nested scope
// on top of c's frames. c itself keeps its frames (only its block counter
// advances), so a caller leaves the block by going back to c, or by calling
// Pop on the child.
func (c *SymbolContext) CreateChildContext() *SymbolContext {
	parent := c.frames[len(c.frames)-1]
	parent.counter++
	child := &frame{
		symbols: make(map[string]SymbolMetaInsert),
		suffix:  fmt.Sprintf("%s%d", parent.suffix, parent.counter),
		retType: parent.retType,
		hasRet:  parent.hasRet,
	}
	return &SymbolContext{
		frames:      append(append([]*frame{}, c.frames...), child),
		tempCounter: c.tempCounter,
	}
}

// CreateFunctionContext starts a function body's frame chain at frames[0]
// only (global functions and imports), deliberately dropping every
// intervening frame — including the entry file's top-level script frame —
// so a function body can never resolve a top-level let/const as if it were
// a captured enclosing-scope variable (spec.md Non-goals: no closures over
// enclosing scope). It also fixes the function's return type on the new
// frame so `return` inside nested blocks type-checks (spec.md §3).
func (c *SymbolContext) CreateFunctionContext(ret types.DataType) *SymbolContext {
	global := c.frames[0]
	global.counter++
	child := &frame{
		symbols: make(map[string]SymbolMetaInsert),
		suffix:  fmt.Sprintf("%d", global.counter),
		retType: ret,
		hasRet:  true,
	}
	return &SymbolContext{
		frames:      []*frame{global, child},
		tempCounter: c.tempCounter,
	}
}

// Pop discards the innermost scope, restoring the parent's view exactly as
// it was (Testable Property #3: scoping).
func (c *SymbolContext) Pop() *SymbolContext {
	if len(c.frames) <= 1 {
		return c
	}
	return &SymbolContext{
		frames:      c.frames[:len(c.frames)-1],
		tempCounter: c.tempCounter,
	}
}

// GetReturnType returns the enclosing function's return type, if any.
func (c *SymbolContext) GetReturnType() (types.DataType, bool) {
	f := c.frames[len(c.frames)-1]
	return f.retType, f.hasRet
}

// Suffix returns the current scope's suffix, the string encoding the path of
// nested-block counters from global scope down to here.
func (c *SymbolContext) Suffix() string {
	return c.frames[len(c.frames)-1].suffix
}

// GetTempName mints a synthetic name for a naked expression statement,
// guaranteed never to collide with a user identifier because user
// identifiers cannot contain '|' (spec.md §4.1).
func (c *SymbolContext) GetTempName() string {
	*c.tempCounter++
	return fmt.Sprintf("|temp%d", *c.tempCounter)
}

// MangleLocal produces the mangled IR name for a local binding in the
// current scope: `x|S|` where S is the scope suffix.
func (c *SymbolContext) MangleLocal(name string) string {
	return fmt.Sprintf("%s|%s|", name, c.Suffix())
}

// MangleExported produces the mangled IR name for a top-level binding
// exported from file fileID: `|fn:i|x|_|`.
func MangleExported(fileID int, name string) string {
	return fmt.Sprintf("|fn:%d|%s|_|", fileID, name)
}
