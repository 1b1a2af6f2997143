// Package ast defines the typed syntax tree the parser produces: a closed
// Expression union and a closed Declaration union, each carrying its
// inferred types.DataType and source position, in the spirit of the
// teacher's single generic ir.Node but split into the two closed sum types
// the specification's design notes call for (spec.md §9: "prefer a single
// Expression and Declaration sum type each, with pattern matching, over a
// class hierarchy").
package ast

import (
	"fmt"
	"strings"

	"github.com/hhramberg/tsnc/internal/types"
)

// Expression is the closed sum of expression node variants. Every variant
// exposes its inferred DataType.
type Expression interface {
	isExpression()
	Type() types.DataType
	Pos() (line, pos int)
}

type Base struct {
	Line, Col int
}

func (b Base) Pos() (int, int) { return b.Line, b.Col }

// FloatLiteral is a numeric literal.
type FloatLiteral struct {
	Base
	Value float64
}

// StringLiteral is a string literal.
type StringLiteral struct {
	Base
	Text string
}

// BooleanLiteral is a boolean literal.
type BooleanLiteral struct {
	Base
	Value bool
}

// ArrayLiteral is a non-empty array literal with a uniform element type.
type ArrayLiteral struct {
	Base
	Elements []Expression
	ElemType types.DataType
}

// ObjectField is one field→expression pair of an ObjectLiteral, in source
// order.
type ObjectField struct {
	Name string
	Expr Expression
}

// ObjectLiteral is an object literal; Fields and ObjectType both list the
// fields in declaration order.
type ObjectLiteral struct {
	Base
	Fields     []ObjectField
	ObjectType types.Object
}

// Ident is a reference to a mangled name already resolved by the symbol
// context.
type Ident struct {
	Base
	Mangled string
	DType   types.DataType
}

// UnaryOp enumerates legal prefix operators.
type UnaryOp int

const (
	UnaryPlus UnaryOp = iota
	UnaryMinus
	UnaryNot
)

func (op UnaryOp) String() string {
	return [...]string{"+", "-", "!"}[op]
}

// Unary is a prefix expression.
type Unary struct {
	Base
	Op       UnaryOp
	Operand  Expression
	DType    types.DataType
}

// BinaryOp enumerates legal infix operators (spec.md §4.2).
type BinaryOp int

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinLt
	BinLe
	BinGt
	BinGe
	BinEq
	BinNe
	BinAnd
	BinXor
	BinOr
)

var binOpNames = [...]string{"+", "-", "*", "/", "<", "<=", ">", ">=", "===", "!==", "&", "^", "|"}

func (op BinaryOp) String() string { return binOpNames[op] }

// Binary is an infix expression.
type Binary struct {
	Base
	Op          BinaryOp
	Left, Right Expression
	DType       types.DataType
}

// ArrayMemberAccess indexes an Array<T> expression, yielding T.
type ArrayMemberAccess struct {
	Base
	Array Expression
	Index Expression
	DType types.DataType
}

// DotMemberAccess accesses a field of an Object expression.
type DotMemberAccess struct {
	Base
	Container Expression
	Field     string
	DType     types.DataType
}

// FunctionCall calls the function bound to Callee's mangled name. Per
// spec.md §4.2, the callee must have parsed as an Ident so a mangled name is
// available.
type FunctionCall struct {
	Base
	Callee    string
	Args      []Expression
	ReturnTyp types.DataType
}

func (FloatLiteral) isExpression()      {}
func (StringLiteral) isExpression()     {}
func (BooleanLiteral) isExpression()    {}
func (ArrayLiteral) isExpression()      {}
func (ObjectLiteral) isExpression()     {}
func (Ident) isExpression()             {}
func (Unary) isExpression()             {}
func (Binary) isExpression()            {}
func (ArrayMemberAccess) isExpression() {}
func (DotMemberAccess) isExpression()   {}
func (FunctionCall) isExpression()      {}

func (FloatLiteral) Type() types.DataType   { return types.Float{} }
func (StringLiteral) Type() types.DataType  { return types.String{} }
func (BooleanLiteral) Type() types.DataType { return types.Boolean{} }
func (a ArrayLiteral) Type() types.DataType { return types.Array{Elem: a.ElemType} }
func (o ObjectLiteral) Type() types.DataType { return o.ObjectType }
func (i Ident) Type() types.DataType        { return i.DType }
func (u Unary) Type() types.DataType        { return u.DType }
func (b Binary) Type() types.DataType       { return b.DType }
func (a ArrayMemberAccess) Type() types.DataType { return a.DType }
func (d DotMemberAccess) Type() types.DataType   { return d.DType }
func (f FunctionCall) Type() types.DataType      { return f.ReturnTyp }

// Declaration is the closed sum of statement-level syntax tree nodes.
type Declaration interface {
	isDeclaration()
	Pos() (line, pos int)
}

// VarKind distinguishes const from let.
type VarKind int

const (
	Const VarKind = iota
	Let
)

// VariableDeclaration declares one or more new bindings in the current
// scope.
type VariableDeclaration struct {
	Base
	Kind  VarKind
	Names []string // mangled names, one per declared identifier
	Exprs []Expression
	DType types.DataType
}

// AssignOp enumerates the compound-assignment operators.
type AssignOp int

const (
	Assign AssignOp = iota
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
)

// VariableAssignment assigns (possibly compound) to an existing binding.
type VariableAssignment struct {
	Base
	Name string // mangled name
	Op   AssignOp
	Expr Expression
}

// ArrayMemberAssignment assigns to a[i].
type ArrayMemberAssignment struct {
	Base
	Array Expression
	Index Expression
	Expr  Expression
}

// Param is one function parameter.
type Param struct {
	Name string // mangled name
	Type types.DataType
}

// FunctionDeclaration declares a function. Exported functions are reachable
// from other files via the import resolver.
type FunctionDeclaration struct {
	Base
	Name     string // mangled name
	Params   []Param
	Return   types.DataType
	Body     []Declaration
	Exported bool
}

// ImportedSymbol is one identifier pulled in by an ImportDeclaration.
type ImportedSymbol struct {
	LocalMangled string // mangled name inserted into the importing scope
	Type         types.DataType
}

// ImportDeclaration imports symbols from another file (or the
// "compilerInternal" built-in table).
type ImportDeclaration struct {
	Base
	Path    string
	Symbols map[string]ImportedSymbol
}

// ElseIf is one else-if arm of an if chain.
type ElseIf struct {
	Cond Expression
	Body []Declaration
}

// NewIfBlockDeclaration is an if + else-if* + else? chain.
type NewIfBlockDeclaration struct {
	Base
	Cond    Expression
	Then    []Declaration
	ElseIfs []ElseIf
	Else    []Declaration // nil if absent
}

// WhileLoopDeclaration is a pre-test loop.
type WhileLoopDeclaration struct {
	Base
	Cond Expression
	Body []Declaration
}

// DoWhileLoopDeclaration is a post-test loop.
type DoWhileLoopDeclaration struct {
	Base
	Cond Expression
	Body []Declaration
}

// ReturnStatement optionally carries a value; Expr is nil for `return;`.
type ReturnStatement struct {
	Base
	Expr Expression
}

// LoopControlKind distinguishes break from continue.
type LoopControlKind int

const (
	Break LoopControlKind = iota
	Continue
)

// LoopControlFlow is a break or continue statement.
type LoopControlFlow struct {
	Base
	Kind LoopControlKind
}

func (VariableDeclaration) isDeclaration()    {}
func (VariableAssignment) isDeclaration()     {}
func (ArrayMemberAssignment) isDeclaration()  {}
func (FunctionDeclaration) isDeclaration()    {}
func (ImportDeclaration) isDeclaration()      {}
func (NewIfBlockDeclaration) isDeclaration()  {}
func (WhileLoopDeclaration) isDeclaration()   {}
func (DoWhileLoopDeclaration) isDeclaration() {}
func (ReturnStatement) isDeclaration()        {}
func (LoopControlFlow) isDeclaration()        {}

// File is the root of one parsed source file: its ordered top-level
// declarations plus the exported symbol table the resolver will cache.
type File struct {
	Path     string
	FileID   int
	Decls    []Declaration
	Exported map[string]types.DataType
}

// Print recursively prints decls, indenting by depth, matching the texture
// of the teacher's ir.Node.Print.
func Print(decls []Declaration, depth int) {
	for _, d := range decls {
		printDecl(d, depth)
	}
}

func printDecl(d Declaration, depth int) {
	pad := strings.Repeat("  ", depth)
	switch n := d.(type) {
	case VariableDeclaration:
		fmt.Printf("%sVariableDeclaration %v %v\n", pad, n.Kind, n.Names)
	case FunctionDeclaration:
		fmt.Printf("%sFunctionDeclaration %s -> %s\n", pad, n.Name, n.Return)
		Print(n.Body, depth+1)
	case NewIfBlockDeclaration:
		fmt.Printf("%sIf\n", pad)
		Print(n.Then, depth+1)
		for _, e := range n.ElseIfs {
			fmt.Printf("%sElseIf\n", pad)
			Print(e.Body, depth+1)
		}
		if n.Else != nil {
			fmt.Printf("%sElse\n", pad)
			Print(n.Else, depth+1)
		}
	case WhileLoopDeclaration:
		fmt.Printf("%sWhile\n", pad)
		Print(n.Body, depth+1)
	case DoWhileLoopDeclaration:
		fmt.Printf("%sDoWhile\n", pad)
		Print(n.Body, depth+1)
	default:
		fmt.Printf("%s%T\n", pad, d)
	}
}
