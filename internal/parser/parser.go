// Package parser implements the Pratt-style expression parser and
// recursive-descent statement parser described in spec.md §4.2. It drives
// name resolution, type inference/checking and name mangling inline as it
// parses, exactly as the teacher's frontend/tree.go drives syntax-tree
// construction from the token stream, except here the parser itself (not a
// goyacc grammar) owns the recursive structure — grounded on
// original_source/packages/parser/src/parser.rs and parse_expression.rs,
// which inline symbol-table lookups and mangled-name construction directly
// into the recursive-descent parse functions.
package parser

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/hhramberg/tsnc/internal/ast"
	"github.com/hhramberg/tsnc/internal/lexer"
	"github.com/hhramberg/tsnc/internal/resolver"
	"github.com/hhramberg/tsnc/internal/symbols"
	"github.com/hhramberg/tsnc/internal/token"
	"github.com/hhramberg/tsnc/internal/types"
)

// precedence levels, highest binds tightest (spec.md §4.2).
const (
	precLowest = iota
	precBitOr      // |
	precBitXor     // ^
	precBitAnd     // &
	precEquality   // === !==
	precRelational // < <= > >=
	precAdditive   // + -
	precMultiplicative // * /
	precUnary
	precPostfix // [ . (
)

var infixPrec = map[token.Kind]int{
	token.PIPE: precBitOr, token.CARET: precBitXor, token.AMP: precBitAnd,
	token.EQ: precEquality, token.NE: precEquality,
	token.LT: precRelational, token.LE: precRelational, token.GT: precRelational, token.GE: precRelational,
	token.PLUS: precAdditive, token.MINUS: precAdditive,
	token.STAR: precMultiplicative, token.SLASH: precMultiplicative,
	token.LBRACK: precPostfix, token.DOT: precPostfix, token.LPAREN: precPostfix,
}

var assignOps = map[token.Kind]ast.AssignOp{
	token.ASSIGN: ast.Assign, token.PLUS_EQ: ast.AssignAdd, token.MINUS_EQ: ast.AssignSub,
	token.STAR_EQ: ast.AssignMul, token.SLASH_EQ: ast.AssignDiv,
}

// Parser consumes a finite token.Token stream (ending in token.EOF) and
// produces typed ast.Declaration nodes.
type Parser struct {
	toks []token.Token
	pos  int

	ctx      *symbols.SymbolContext
	res      *resolver.Resolver
	curFile  string
	fileID   int
	exported map[string]types.DataType
}

// New creates a Parser for one file's token stream. res may be nil when
// parsing a file with no possible imports (e.g. in isolated unit tests).
func New(toks []token.Token, res *resolver.Resolver, curFile string, fileID int) *Parser {
	return &Parser{
		toks:     toks,
		ctx:      symbols.NewGlobal(),
		res:      res,
		curFile:  curFile,
		fileID:   fileID,
		exported: make(map[string]types.DataType),
	}
}

func (p *Parser) cur() token.Token  { return p.toks[p.pos] }
func (p *Parser) peekAt(n int) token.Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}
func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}
func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }
func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if !p.at(k) {
		return token.Token{}, errors.Errorf("line %d:%d: expected %s, got %s",
			p.cur().Line, p.cur().Pos, k, p.cur().Kind)
	}
	return p.advance(), nil
}

// ParseFile parses every top-level statement until EOF and returns the
// resulting *ast.File along with the exported symbol table the resolver
// caches for importers.
func (p *Parser) ParseFile() (*ast.File, map[string]types.DataType, error) {
	var decls []ast.Declaration
	for !p.at(token.EOF) {
		d, err := p.parseStatement()
		if err != nil {
			return nil, nil, err
		}
		decls = append(decls, d)
	}
	return &ast.File{Path: p.curFile, FileID: p.fileID, Decls: decls, Exported: p.exported}, p.exported, nil
}

// parseStatement dispatches on the leading token, per spec.md §4.2.
func (p *Parser) parseStatement() (ast.Declaration, error) {
	switch p.cur().Kind {
	case token.CONST, token.LET:
		return p.parseVarDecl(false)
	case token.EXPORT:
		p.advance()
		switch p.cur().Kind {
		case token.CONST, token.LET:
			return p.parseVarDecl(true)
		case token.FUNCTION:
			return p.parseFunctionDecl(true)
		default:
			return nil, errors.Errorf("line %d:%d: expected const, let or function after export, got %s",
				p.cur().Line, p.cur().Pos, p.cur().Kind)
		}
	case token.FUNCTION:
		return p.parseFunctionDecl(false)
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.DO:
		return p.parseDoWhile()
	case token.BREAK:
		p.advance()
		if _, err := p.expect(token.SEMI); err != nil {
			return nil, err
		}
		return ast.LoopControlFlow{Kind: ast.Break}, nil
	case token.CONTINUE:
		p.advance()
		if _, err := p.expect(token.SEMI); err != nil {
			return nil, err
		}
		return ast.LoopControlFlow{Kind: ast.Continue}, nil
	case token.RETURN:
		return p.parseReturn()
	case token.IMPORT:
		return p.parseImport()
	case token.IDENT:
		if _, ok := p.ctx.Lookup(p.cur().Val); ok {
			return p.parseIdentStatement()
		}
		return p.parseNakedExpression()
	default:
		return p.parseNakedExpression()
	}
}

// parseIdentStatement disambiguates a leading known identifier between
// assignment and a bare expression via the bounded lookahead of spec.md
// §4.2 ("Ident disambiguation").
func (p *Parser) parseIdentStatement() (ast.Declaration, error) {
	save := p.pos
	p.advance() // consume identifier
	if p.at(token.LBRACK) {
		depth := 0
		for {
			switch p.cur().Kind {
			case token.LBRACK:
				depth++
			case token.RBRACK:
				depth--
			case token.EOF:
				p.pos = save
				return p.parseNakedExpression()
			}
			p.advance()
			if depth == 0 {
				break
			}
		}
	}
	_, isAssign := assignOps[p.cur().Kind]
	p.pos = save
	if isAssign {
		return p.parseAssignment()
	}
	return p.parseNakedExpression()
}

func (p *Parser) parseNakedExpression() (ast.Declaration, error) {
	e, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	name := p.ctx.GetTempName()
	mangled := p.ctx.MangleLocal(name)
	if err := p.ctx.Insert(name, symbols.SymbolMetaInsert{DataType: e.Type(), IsConst: true}); err != nil {
		return nil, err
	}
	return ast.VariableDeclaration{Kind: ast.Const, Names: []string{mangled}, Exprs: []ast.Expression{e}, DType: e.Type()}, nil
}

// --- variable declarations ---

func (p *Parser) parseVarDecl(exported bool) (ast.Declaration, error) {
	kindTok := p.advance() // const | let
	kind := ast.Const
	if kindTok.Kind == token.LET {
		kind = ast.Let
	}
	nameTok, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	var ascribed types.DataType
	if p.at(token.COLON) {
		p.advance()
		ascribed, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.ASSIGN); err != nil {
		return nil, err
	}
	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if ascribed != nil && !types.Equal(ascribed, expr.Type()) {
		return nil, errors.Errorf("line %d:%d: declared type %s does not match expression type %s",
			nameTok.Line, nameTok.Pos, ascribed, expr.Type())
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}

	meta := symbols.SymbolMetaInsert{DataType: expr.Type(), IsConst: kind == ast.Const, CanExport: exported}
	var mangled string
	if exported {
		mangled = symbols.MangleExported(p.fileID, nameTok.Val)
		if err := p.ctx.InsertGlobal(nameTok.Val, meta); err != nil {
			return nil, err
		}
		p.exported[nameTok.Val] = expr.Type()
	} else {
		mangled = p.ctx.MangleLocal(nameTok.Val)
		if err := p.ctx.Insert(nameTok.Val, meta); err != nil {
			return nil, err
		}
	}
	return ast.VariableDeclaration{Kind: kind, Names: []string{mangled}, Exprs: []ast.Expression{expr}, DType: expr.Type()}, nil
}

func (p *Parser) parseAssignment() (ast.Declaration, error) {
	nameTok, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	meta, ok := p.ctx.Lookup(nameTok.Val)
	if !ok {
		return nil, errors.Errorf("line %d:%d: undefined identifier %q", nameTok.Line, nameTok.Pos, nameTok.Val)
	}

	if p.at(token.LBRACK) {
		p.advance()
		idx, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RBRACK); err != nil {
			return nil, err
		}
		arrType, ok := meta.DataType.(types.Array)
		if !ok {
			return nil, errors.Errorf("line %d:%d: %q is not an array", nameTok.Line, nameTok.Pos, nameTok.Val)
		}
		if !types.IsNumeric(idx.Type()) {
			return nil, errors.Errorf("line %d:%d: array index must be a number", nameTok.Line, nameTok.Pos)
		}
		if _, err := p.expect(token.ASSIGN); err != nil {
			return nil, err
		}
		val, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		if !types.Equal(arrType.Elem, val.Type()) {
			return nil, errors.Errorf("line %d:%d: cannot assign %s to element of %s",
				nameTok.Line, nameTok.Pos, val.Type(), arrType)
		}
		if _, err := p.expect(token.SEMI); err != nil {
			return nil, err
		}
		arrExpr := p.identExpr(nameTok)
		return ast.ArrayMemberAssignment{Array: arrExpr, Index: idx, Expr: val}, nil
	}

	if meta.IsConst {
		return nil, errors.Errorf("line %d:%d: cannot assign to const %q", nameTok.Line, nameTok.Pos, nameTok.Val)
	}

	opTok := p.advance()
	op, ok := assignOps[opTok.Kind]
	if !ok {
		return nil, errors.Errorf("line %d:%d: expected assignment operator, got %s", opTok.Line, opTok.Pos, opTok.Kind)
	}
	val, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if !types.Equal(meta.DataType, val.Type()) {
		return nil, errors.Errorf("line %d:%d: cannot assign %s to %q of type %s",
			nameTok.Line, nameTok.Pos, val.Type(), nameTok.Val, meta.DataType)
	}
	if op != ast.Assign {
		if _, isStr := meta.DataType.(types.String); isStr {
			return nil, errors.Errorf("line %d:%d: compound assignment not supported for string", nameTok.Line, nameTok.Pos)
		}
		if _, isBool := meta.DataType.(types.Boolean); isBool {
			return nil, errors.Errorf("line %d:%d: compound assignment not supported for boolean", nameTok.Line, nameTok.Pos)
		}
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return ast.VariableAssignment{Name: p.mangledNameOf(nameTok.Val, meta), Op: op, Expr: val}, nil
}

// mangledNameOf reconstructs the mangled form of an already-resolved
// identifier: local names are re-mangled with the current suffix (a local
// always resolves within the file it was declared in), imports/exports
// carry their external file id.
func (p *Parser) mangledNameOf(name string, meta symbols.SymbolMetaInsert) string {
	if meta.External != nil {
		return symbols.MangleExported(meta.External.FileID, name)
	}
	if meta.CanExport {
		return symbols.MangleExported(p.fileID, name)
	}
	return p.ctx.MangleLocal(name)
}

func (p *Parser) identExpr(tok token.Token) ast.Expression {
	meta, _ := p.ctx.Lookup(tok.Val)
	return ast.Ident{Mangled: p.mangledNameOf(tok.Val, meta), DType: meta.DataType}
}

// --- return, if, while, do-while, import ---

func (p *Parser) parseReturn() (ast.Declaration, error) {
	tok := p.advance()
	ret, hasFn := p.ctx.GetReturnType()
	if !hasFn {
		return nil, errors.Errorf("line %d:%d: return outside of function", tok.Line, tok.Pos)
	}
	if p.at(token.SEMI) {
		p.advance()
		if !types.Equal(ret, types.Void{}) {
			return nil, errors.Errorf("line %d:%d: function expects return type %s, got void", tok.Line, tok.Pos, ret)
		}
		return ast.ReturnStatement{Expr: nil}, nil
	}
	e, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if !types.Equal(ret, e.Type()) {
		return nil, errors.Errorf("line %d:%d: return type %s does not match function return type %s",
			tok.Line, tok.Pos, e.Type(), ret)
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return ast.ReturnStatement{Expr: e}, nil
}

func (p *Parser) parseBlock() ([]ast.Declaration, error) {
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	child := p.ctx.CreateChildContext()
	parent := p.ctx
	p.ctx = child
	var decls []ast.Declaration
	for !p.at(token.RBRACE) {
		if p.at(token.EOF) {
			p.ctx = parent
			return nil, errors.Errorf("line %d:%d: unterminated block, expected }", p.cur().Line, p.cur().Pos)
		}
		d, err := p.parseStatement()
		if err != nil {
			p.ctx = parent
			return nil, err
		}
		decls = append(decls, d)
	}
	p.advance() // consume }
	p.ctx = parent
	return decls, nil
}

func (p *Parser) parseIf() (ast.Declaration, error) {
	tok := p.advance()
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if !types.Equal(cond.Type(), types.Boolean{}) {
		return nil, errors.Errorf("line %d:%d: if condition must be boolean, got %s", tok.Line, tok.Pos, cond.Type())
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	decl := ast.NewIfBlockDeclaration{Cond: cond, Then: then}
	for p.at(token.ELSE) && p.peekAt(1).Kind == token.IF {
		p.advance()
		p.advance()
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		c, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		if !types.Equal(c.Type(), types.Boolean{}) {
			return nil, errors.Errorf("line %d:%d: else-if condition must be boolean, got %s", tok.Line, tok.Pos, c.Type())
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		decl.ElseIfs = append(decl.ElseIfs, ast.ElseIf{Cond: c, Body: body})
	}
	if p.at(token.ELSE) {
		p.advance()
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		decl.Else = body
	}
	return decl, nil
}

func (p *Parser) parseWhile() (ast.Declaration, error) {
	tok := p.advance()
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if !types.Equal(cond.Type(), types.Boolean{}) {
		return nil, errors.Errorf("line %d:%d: while condition must be boolean, got %s", tok.Line, tok.Pos, cond.Type())
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.WhileLoopDeclaration{Cond: cond, Body: body}, nil
}

func (p *Parser) parseDoWhile() (ast.Declaration, error) {
	p.advance() // do
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	tok, err := p.expect(token.WHILE)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if !types.Equal(cond.Type(), types.Boolean{}) {
		return nil, errors.Errorf("line %d:%d: do-while condition must be boolean, got %s", tok.Line, tok.Pos, cond.Type())
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return ast.DoWhileLoopDeclaration{Cond: cond, Body: body}, nil
}

func (p *Parser) parseImport() (ast.Declaration, error) {
	tok := p.advance()
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	var names []token.Token
	for {
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		names = append(names, nameTok)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.FROM); err != nil {
		return nil, err
	}
	pathTok, err := p.expect(token.STRING_LIT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}

	var exported map[string]types.DataType
	var fileID int
	if pathTok.Val == resolver.CompilerInternalPath {
		fileID = 1
		exported = map[string]types.DataType{
			"syscallPrint": types.Function{
				Params: []types.DataType{types.Float{}, types.String{}, types.Float{}},
				Return: types.Void{},
			},
		}
	} else {
		if p.res == nil {
			return nil, errors.Errorf("line %d:%d: imports require a resolver", tok.Line, tok.Pos)
		}
		ok, err := p.res.Contains(pathTok.Val, p.curFile)
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := p.res.Resolve(pathTok.Val, p.curFile, ParseImported); err != nil {
				return nil, errors.Wrapf(err, "line %d:%d: could not resolve import %q", tok.Line, tok.Pos, pathTok.Val)
			}
		}
		exported, _, err = p.res.Get(pathTok.Val, p.curFile)
		if err != nil {
			return nil, err
		}
		fileID, err = p.res.GetID(pathTok.Val, p.curFile)
		if err != nil {
			return nil, err
		}
	}

	syms := make(map[string]ast.ImportedSymbol, len(names))
	for _, n := range names {
		dt, ok := exported[n.Val]
		if !ok {
			return nil, errors.Errorf("line %d:%d: %q is not exported by %q", n.Line, n.Pos, n.Val, pathTok.Val)
		}
		mangled := symbols.MangleExported(fileID, n.Val)
		syms[n.Val] = ast.ImportedSymbol{LocalMangled: mangled, Type: dt}
		meta := symbols.SymbolMetaInsert{DataType: dt, IsConst: true, External: &symbols.ExternalRef{FileID: fileID}}
		if err := p.ctx.InsertGlobal(n.Val, meta); err != nil {
			return nil, err
		}
	}
	return ast.ImportDeclaration{Path: pathTok.Val, Symbols: syms}, nil
}

// ParseImported is the resolver.ParseFunc used to recursively parse an
// imported file: fresh tokens, fresh global symbol context, same resolver.
func ParseImported(r *resolver.Resolver, absPath string, fileID int, src string) (*ast.File, map[string]types.DataType, error) {
	toks, err := tokenizeAll(src)
	if err != nil {
		return nil, nil, err
	}
	sub := New(toks, r, absPath, fileID)
	return sub.ParseFile()
}

// tokenizeAll runs the lexer to completion and collects every token,
// failing on the first token.ERROR the lexer emits.
func tokenizeAll(src string) ([]token.Token, error) {
	lx := lexer.New(src)
	go lx.Run()
	var toks []token.Token
	for t := range lx.Tokens {
		if t.Kind == token.ERROR {
			return nil, errors.Errorf("line %d:%d: %s", t.Line, t.Pos, t.Val)
		}
		toks = append(toks, t)
		if t.Kind == token.EOF {
			break
		}
	}
	return toks, nil
}

func (p *Parser) parseFunctionDecl(exported bool) (ast.Declaration, error) {
	p.advance() // function
	nameTok, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}

	type rawParam struct {
		name token.Token
		typ  types.DataType
	}
	var raw []rawParam
	seen := map[string]bool{}
	for !p.at(token.RPAREN) {
		pnTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		if seen[pnTok.Val] {
			return nil, errors.Errorf("line %d:%d: duplicate function parameter name %q", pnTok.Line, pnTok.Pos, pnTok.Val)
		}
		seen[pnTok.Val] = true
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		pt, err := p.parseType()
		if err != nil {
			return nil, err
		}
		raw = append(raw, rawParam{name: pnTok, typ: pt})
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}
	retType, err := p.parseType()
	if err != nil {
		return nil, err
	}

	paramTypes := make([]types.DataType, len(raw))
	for i1, r := range raw {
		paramTypes[i1] = r.typ
	}
	fnType := types.Function{Params: paramTypes, Return: retType}
	mangled := symbols.MangleExported(p.fileID, nameTok.Val)
	// Every top-level function lives in frames[0] and is always addressed
	// with the fn:id mangling scheme within this file, whether or not it is
	// also reachable by other files — CanExport here only has to match that
	// mangling form, so it is always true, independent of the `export`
	// keyword (tracked separately below for the resolver's export table).
	if err := p.ctx.InsertGlobal(nameTok.Val, symbols.SymbolMetaInsert{DataType: fnType, IsConst: true, CanExport: true}); err != nil {
		return nil, err
	}
	if exported {
		p.exported[nameTok.Val] = fnType
	}

	fnCtx := p.ctx.CreateFunctionContext(retType)
	parent := p.ctx
	p.ctx = fnCtx

	params := make([]ast.Param, len(raw))
	for i1, r := range raw {
		lm := p.ctx.MangleLocal(r.name.Val)
		if err := p.ctx.Insert(r.name.Val, symbols.SymbolMetaInsert{DataType: r.typ, IsConst: false}); err != nil {
			p.ctx = parent
			return nil, err
		}
		params[i1] = ast.Param{Name: lm, Type: r.typ}
	}

	if _, err := p.expect(token.LBRACE); err != nil {
		p.ctx = parent
		return nil, err
	}
	var body []ast.Declaration
	for !p.at(token.RBRACE) {
		if p.at(token.EOF) {
			p.ctx = parent
			return nil, errors.Errorf("line %d:%d: unterminated function body, expected }", p.cur().Line, p.cur().Pos)
		}
		d, err := p.parseStatement()
		if err != nil {
			p.ctx = parent
			return nil, err
		}
		body = append(body, d)
	}
	p.advance() // }
	p.ctx = parent

	return ast.FunctionDeclaration{Name: mangled, Params: params, Return: retType, Body: body, Exported: exported}, nil
}

// parseType accepts `number | string | boolean`, a grouped `(T)`, and the
// postfix array form `T[]`, right-associative so `T[][]` parses as
// Array<Array<T>> (spec.md §4.2 "Type parser").
func (p *Parser) parseType() (types.DataType, error) {
	var base types.DataType
	switch p.cur().Kind {
	case token.IDENT:
		switch p.cur().Val {
		case "number":
			base = types.Float{}
		case "string":
			base = types.String{}
		case "boolean":
			base = types.Boolean{}
		default:
			return nil, errors.Errorf("line %d:%d: unknown type %q", p.cur().Line, p.cur().Pos, p.cur().Val)
		}
		p.advance()
	case token.LPAREN:
		p.advance()
		inner, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		base = inner
	default:
		return nil, errors.Errorf("line %d:%d: expected type, got %s", p.cur().Line, p.cur().Pos, p.cur().Kind)
	}
	for p.at(token.LBRACK) && p.peekAt(1).Kind == token.RBRACK {
		p.advance()
		p.advance()
		base = types.Array{Elem: base}
	}
	return base, nil
}

// --- expressions: Pratt scheme ---

func (p *Parser) parseExpression(minPrec int) (ast.Expression, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := infixPrec[p.cur().Kind]
		if !ok || prec < minPrec {
			break
		}
		left, err = p.parseInfix(left, prec)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) parsePrefix() (ast.Expression, error) {
	tok := p.cur()
	switch tok.Kind {
	case token.FLOAT_LIT:
		p.advance()
		v, err := strconv.ParseFloat(tok.Val, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d:%d: invalid number literal %q", tok.Line, tok.Pos, tok.Val)
		}
		return ast.FloatLiteral{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Value: v}, nil
	case token.STRING_LIT:
		p.advance()
		return ast.StringLiteral{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Text: tok.Val}, nil
	case token.TRUE:
		p.advance()
		return ast.BooleanLiteral{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Value: true}, nil
	case token.FALSE:
		p.advance()
		return ast.BooleanLiteral{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Value: false}, nil
	case token.LPAREN:
		p.advance()
		e, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	case token.LBRACK:
		return p.parseArrayLiteral()
	case token.LBRACE:
		return p.parseObjectLiteral()
	case token.IDENT:
		p.advance()
		meta, ok := p.ctx.Lookup(tok.Val)
		if !ok {
			return nil, errors.Errorf("line %d:%d: undefined identifier %q", tok.Line, tok.Pos, tok.Val)
		}
		return ast.Ident{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Mangled: p.mangledNameOf(tok.Val, meta), DType: meta.DataType}, nil
	case token.PLUS, token.MINUS, token.BANG:
		p.advance()
		operand, err := p.parseExpressionPrec(precUnary)
		if err != nil {
			return nil, err
		}
		var op ast.UnaryOp
		var dt types.DataType
		switch tok.Kind {
		case token.PLUS:
			op, dt = ast.UnaryPlus, types.Float{}
		case token.MINUS:
			op, dt = ast.UnaryMinus, types.Float{}
		case token.BANG:
			op, dt = ast.UnaryNot, types.Boolean{}
		}
		return ast.Unary{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Op: op, Operand: operand, DType: dt}, nil
	default:
		return nil, errors.Errorf("line %d:%d: unexpected token %s in expression", tok.Line, tok.Pos, tok.Kind)
	}
}

// parseExpressionPrec is parseExpression under a different name to make the
// unary-operand precedence (17 in spec.md's table) explicit at call sites.
func (p *Parser) parseExpressionPrec(prec int) (ast.Expression, error) {
	return p.parseExpression(prec)
}

func (p *Parser) parseArrayLiteral() (ast.Expression, error) {
	tok := p.advance() // [
	var elems []ast.Expression
	for !p.at(token.RBRACK) {
		e, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RBRACK); err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, errors.Errorf("line %d:%d: array literal must have at least one element", tok.Line, tok.Pos)
	}
	elemType := elems[0].Type()
	for _, e := range elems[1:] {
		if !types.Equal(elemType, e.Type()) {
			return nil, errors.Errorf("line %d:%d: array literal elements must share one type, got %s and %s",
				tok.Line, tok.Pos, elemType, e.Type())
		}
	}
	return ast.ArrayLiteral{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Elements: elems, ElemType: elemType}, nil
}

func (p *Parser) parseObjectLiteral() (ast.Expression, error) {
	tok := p.advance() // {
	var fields []ast.ObjectField
	seen := map[string]bool{}
	for !p.at(token.RBRACE) {
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		if seen[nameTok.Val] {
			return nil, errors.Errorf("line %d:%d: duplicate object field %q", nameTok.Line, nameTok.Pos, nameTok.Val)
		}
		seen[nameTok.Val] = true
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		e, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.ObjectField{Name: nameTok.Val, Expr: e})
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	objFields := make([]types.Field, len(fields))
	for i1, f := range fields {
		objFields[i1] = types.Field{Name: f.Name, Type: f.Expr.Type()}
	}
	return ast.ObjectLiteral{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Fields: fields, ObjectType: types.Object{Fields: objFields}}, nil
}

func (p *Parser) parseInfix(left ast.Expression, prec int) (ast.Expression, error) {
	tok := p.cur()
	switch tok.Kind {
	case token.LBRACK:
		p.advance()
		arrType, ok := left.Type().(types.Array)
		if !ok {
			return nil, errors.Errorf("line %d:%d: cannot index non-array type %s", tok.Line, tok.Pos, left.Type())
		}
		idx, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		if !types.IsNumeric(idx.Type()) {
			return nil, errors.Errorf("line %d:%d: array index must be a number", tok.Line, tok.Pos)
		}
		if _, err := p.expect(token.RBRACK); err != nil {
			return nil, err
		}
		return ast.ArrayMemberAccess{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Array: left, Index: idx, DType: arrType.Elem}, nil
	case token.DOT:
		p.advance()
		fieldTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		objType, ok := left.Type().(types.Object)
		if !ok {
			return nil, errors.Errorf("line %d:%d: cannot access field %q of non-object type %s",
				fieldTok.Line, fieldTok.Pos, fieldTok.Val, left.Type())
		}
		ft, ok := objType.LookupField(fieldTok.Val)
		if !ok {
			return nil, errors.Errorf("line %d:%d: object has no field %q", fieldTok.Line, fieldTok.Pos, fieldTok.Val)
		}
		return ast.DotMemberAccess{Base: ast.Base{Line: fieldTok.Line, Col: fieldTok.Pos}, Container: left, Field: fieldTok.Val, DType: ft}, nil
	case token.LPAREN:
		ident, ok := left.(ast.Ident)
		if !ok {
			return nil, errors.Errorf("line %d:%d: callee must be an identifier", tok.Line, tok.Pos)
		}
		fnType, ok := ident.DType.(types.Function)
		if !ok {
			return nil, errors.Errorf("line %d:%d: %s is not callable", tok.Line, tok.Pos, ident.DType)
		}
		p.advance()
		var args []ast.Expression
		for !p.at(token.RPAREN) {
			a, err := p.parseExpression(precLowest)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.at(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		if len(args) != len(fnType.Params) {
			return nil, errors.Errorf("line %d:%d: function expects %d arguments, got %d",
				tok.Line, tok.Pos, len(fnType.Params), len(args))
		}
		for i1, a := range args {
			if !types.Equal(a.Type(), fnType.Params[i1]) {
				return nil, errors.Errorf("line %d:%d: argument %d: expected %s, got %s",
					tok.Line, tok.Pos, i1+1, fnType.Params[i1], a.Type())
			}
		}
		return ast.FunctionCall{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Callee: ident.Mangled, Args: args, ReturnTyp: fnType.Return}, nil
	default:
		return p.parseBinary(left, prec)
	}
}

var binOpKinds = map[token.Kind]ast.BinaryOp{
	token.PLUS: ast.BinAdd, token.MINUS: ast.BinSub, token.STAR: ast.BinMul, token.SLASH: ast.BinDiv,
	token.LT: ast.BinLt, token.LE: ast.BinLe, token.GT: ast.BinGt, token.GE: ast.BinGe,
	token.EQ: ast.BinEq, token.NE: ast.BinNe, token.AMP: ast.BinAnd, token.CARET: ast.BinXor, token.PIPE: ast.BinOr,
}

func (p *Parser) parseBinary(left ast.Expression, prec int) (ast.Expression, error) {
	tok := p.advance()
	right, err := p.parseExpression(prec + 1)
	if err != nil {
		return nil, err
	}
	op := binOpKinds[tok.Kind]
	dt, err := binaryResultType(tok, op, left.Type(), right.Type())
	if err != nil {
		return nil, err
	}
	return ast.Binary{Base: ast.Base{Line: tok.Line, Col: tok.Pos}, Op: op, Left: left, Right: right, DType: dt}, nil
}

// binaryResultType implements the operator type rules of spec.md §4.2.
func binaryResultType(tok token.Token, op ast.BinaryOp, l, r types.DataType) (types.DataType, error) {
	switch op {
	case ast.BinAdd:
		_, lStr := l.(types.String)
		_, rStr := r.(types.String)
		if lStr || rStr {
			return types.String{}, nil
		}
		if types.IsNumeric(l) && types.IsNumeric(r) {
			return types.Float{}, nil
		}
		return nil, errors.Errorf("line %d:%d: operator + not defined for %s and %s", tok.Line, tok.Pos, l, r)
	case ast.BinSub, ast.BinMul, ast.BinDiv, ast.BinAnd, ast.BinXor, ast.BinOr:
		if types.IsNumeric(l) && types.IsNumeric(r) {
			return types.Float{}, nil
		}
		return nil, errors.Errorf("line %d:%d: operator %s not defined for %s and %s", tok.Line, tok.Pos, op, l, r)
	case ast.BinLt, ast.BinLe, ast.BinGt, ast.BinGe:
		if types.IsNumeric(l) && types.IsNumeric(r) {
			return types.Boolean{}, nil
		}
		return nil, errors.Errorf("line %d:%d: operator %s not defined for %s and %s", tok.Line, tok.Pos, op, l, r)
	case ast.BinEq, ast.BinNe:
		if types.IsNumeric(l) && types.IsNumeric(r) {
			return types.Boolean{}, nil
		}
		_, lBool := l.(types.Boolean)
		_, rBool := r.(types.Boolean)
		if lBool && rBool {
			return types.Boolean{}, nil
		}
		return nil, errors.Errorf("line %d:%d: operator %s not defined for %s and %s", tok.Line, tok.Pos, op, l, r)
	default:
		return nil, errors.Errorf("line %d:%d: unsupported operator", tok.Line, tok.Pos)
	}
}
