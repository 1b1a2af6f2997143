// Tests the Pratt precedence parser and inline type-checking against small
// source snippets, in the style of the teacher's frontend/tree_test.go
// (parse a snippet, assert on the resulting tree shape and on parse errors
// for ill-typed input) adapted to this package's split-out AST.
package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhramberg/tsnc/internal/ast"
	"github.com/hhramberg/tsnc/internal/types"
)

// parseSrc tokenizes and parses src with no resolver, as appropriate for
// snippets with no import statements.
func parseSrc(t *testing.T, src string) (*ast.File, error) {
	t.Helper()
	toks, err := tokenizeAll(src)
	require.NoError(t, err)
	p := New(toks, nil, "snippet.ts", 0)
	return p.ParseFile()
}

func TestParseConstDecl(t *testing.T) {
	f, err := parseSrc(t, `const x: number = 1 + 2;`)
	require.NoError(t, err)
	require.Len(t, f.Decls, 1)

	decl, ok := f.Decls[0].(ast.VariableDeclaration)
	require.True(t, ok)
	assert.Equal(t, ast.Const, decl.Kind)
	assert.Equal(t, types.Float{}, decl.DType)

	bin, ok := decl.Exprs[0].(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.BinAdd, bin.Op)
}

func TestParseDeclaredTypeMismatchFails(t *testing.T) {
	_, err := parseSrc(t, `const x: string = 1;`)
	assert.Error(t, err)
}

func TestPrecedenceMultiplicationBindsTighterThanAddition(t *testing.T) {
	f, err := parseSrc(t, `const x: number = 1 + 2 * 3;`)
	require.NoError(t, err)

	decl := f.Decls[0].(ast.VariableDeclaration)
	top, ok := decl.Exprs[0].(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.BinAdd, top.Op, "+ must be the outermost (lowest-precedence) node")

	right, ok := top.Right.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.BinMul, right.Op, "* must bind tighter, nesting under the right operand of +")

	_, leftIsLiteral := top.Left.(ast.FloatLiteral)
	assert.True(t, leftIsLiteral)
}

func TestStringConcatenationYieldsStringType(t *testing.T) {
	f, err := parseSrc(t, `const s: string = "a" + "b";`)
	require.NoError(t, err)
	decl := f.Decls[0].(ast.VariableDeclaration)
	assert.Equal(t, types.String{}, decl.DType)
}

func TestBooleanArithmeticOperatorRejected(t *testing.T) {
	_, err := parseSrc(t, `const b: boolean = true;
const x = b + b;`)
	assert.Error(t, err)
}

func TestIfConditionMustBeBoolean(t *testing.T) {
	_, err := parseSrc(t, `if (1) { const x = 1; }`)
	assert.Error(t, err)
}

func TestIfElseIfElseChain(t *testing.T) {
	src := `
let x: number = 1;
if (x === 1) {
  x = 2;
} else if (x === 2) {
  x = 3;
} else {
  x = 4;
}
`
	f, err := parseSrc(t, src)
	require.NoError(t, err)
	require.Len(t, f.Decls, 2)

	ifDecl, ok := f.Decls[1].(ast.NewIfBlockDeclaration)
	require.True(t, ok)
	require.Len(t, ifDecl.ElseIfs, 1)
	assert.Len(t, ifDecl.Else, 1)
}

func TestWhileLoopWithBreakAndContinue(t *testing.T) {
	src := `
let i: number = 0;
while (i < 10) {
  if (i === 5) {
    break;
  }
  continue;
}
`
	f, err := parseSrc(t, src)
	require.NoError(t, err)
	loop, ok := f.Decls[1].(ast.WhileLoopDeclaration)
	require.True(t, ok)
	require.Len(t, loop.Body, 2)
	_, ok = loop.Body[1].(ast.LoopControlFlow)
	assert.True(t, ok)
}

func TestFunctionDeclarationAndCall(t *testing.T) {
	src := `
function add(a: number, b: number): number {
  return a + b;
}
const sum: number = add(1, 2);
`
	f, err := parseSrc(t, src)
	require.NoError(t, err)
	require.Len(t, f.Decls, 2)

	fn, ok := f.Decls[0].(ast.FunctionDeclaration)
	require.True(t, ok)
	assert.Len(t, fn.Params, 2)
	assert.Equal(t, types.Float{}, fn.Return)

	decl, ok := f.Decls[1].(ast.VariableDeclaration)
	require.True(t, ok)
	call, ok := decl.Exprs[0].(ast.FunctionCall)
	require.True(t, ok)
	assert.Len(t, call.Args, 2)
	assert.Equal(t, fn.Name, call.Callee, "a call's Callee must carry the declaration's own mangled name")
}

func TestFunctionCallWrongArgCountFails(t *testing.T) {
	src := `
function add(a: number, b: number): number {
  return a + b;
}
const sum = add(1);
`
	_, err := parseSrc(t, src)
	assert.Error(t, err)
}

func TestFunctionCannotSeeTopLevelScriptBinding(t *testing.T) {
	src := `
let secret: number = 1;
function f(): number {
  return secret;
}
`
	_, err := parseSrc(t, src)
	assert.Error(t, err, "a function body must not resolve a top-level script let/const (no closures Non-goal)")
}

func TestArrayLiteralAndIndexing(t *testing.T) {
	src := `
const xs: number[] = [1, 2, 3];
const first: number = xs[0];
`
	f, err := parseSrc(t, src)
	require.NoError(t, err)
	arrDecl := f.Decls[0].(ast.VariableDeclaration)
	assert.Equal(t, types.Array{Elem: types.Float{}}, arrDecl.DType)

	idxDecl := f.Decls[1].(ast.VariableDeclaration)
	access, ok := idxDecl.Exprs[0].(ast.ArrayMemberAccess)
	require.True(t, ok)
	assert.Equal(t, types.Float{}, access.DType)
}

func TestArrayLiteralMixedElementTypesFails(t *testing.T) {
	_, err := parseSrc(t, `const xs = [1, "two"];`)
	assert.Error(t, err)
}

func TestObjectLiteralAndFieldAccess(t *testing.T) {
	src := `
const p = { x: 1, y: 2 };
const px: number = p.x;
`
	f, err := parseSrc(t, src)
	require.NoError(t, err)
	access := f.Decls[1].(ast.VariableDeclaration).Exprs[0].(ast.DotMemberAccess)
	assert.Equal(t, "x", access.Field)
	assert.Equal(t, types.Float{}, access.DType)
}

func TestIdentDisambiguationAssignmentVsExpression(t *testing.T) {
	src := `
let x: number = 1;
x = 2;
x + 1;
`
	f, err := parseSrc(t, src)
	require.NoError(t, err)
	require.Len(t, f.Decls, 3)

	_, ok := f.Decls[1].(ast.VariableAssignment)
	assert.True(t, ok, "`x = 2;` must parse as an assignment")

	_, ok = f.Decls[2].(ast.VariableDeclaration)
	assert.True(t, ok, "a bare expression statement is wrapped in a synthetic temp const declaration")
}

func TestAssignToConstFails(t *testing.T) {
	_, err := parseSrc(t, `const x: number = 1;
x = 2;`)
	assert.Error(t, err)
}

func TestCompoundAssignmentOnStringFails(t *testing.T) {
	_, err := parseSrc(t, `let s: string = "a";
s += "b";`)
	assert.Error(t, err)
}

func TestCompilerInternalImportExposesSyscallPrint(t *testing.T) {
	src := `import { syscallPrint } from "compilerInternal";`
	f, err := parseSrc(t, src)
	require.NoError(t, err)
	imp, ok := f.Decls[0].(ast.ImportDeclaration)
	require.True(t, ok)
	sym, ok := imp.Symbols["syscallPrint"]
	require.True(t, ok)
	fnType, ok := sym.Type.(types.Function)
	require.True(t, ok)
	assert.Len(t, fnType.Params, 3)
}

func TestArrayOfArrayTypeParsesRightAssociatively(t *testing.T) {
	f, err := parseSrc(t, `const m: number[][] = [[1, 2], [3, 4]];`)
	require.NoError(t, err)
	decl := f.Decls[0].(ast.VariableDeclaration)
	outer, ok := decl.DType.(types.Array)
	require.True(t, ok)
	inner, ok := outer.Elem.(types.Array)
	require.True(t, ok)
	assert.Equal(t, types.Float{}, inner.Elem)
}
