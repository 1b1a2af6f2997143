// Package irgen lowers typed ast.Declaration/ast.Expression trees into LLVM
// IR using tinygo.org/x/go-llvm, the teacher's own LLVM binding.
//
// The overall shape — a global symbol table guarded by a mutex, a
// `*util.Stack` of per-scope symbol tables threaded through every gen*
// function, basic-block lowering for if/while with an explicit converge
// block, and a label stack for continue/break — is grounded almost
// line-for-line on the teacher's ir/llvm/transform.go (GenLLVM, gen,
// genFuncHeader, genFuncBody, genExpression, genIf, genWhile, genStore,
// genLoad). It is generalized here to the richer type lattice of
// internal/types (Float/String/Boolean/Void/Array/Object/Function), the
// parser's mangled-name scheme instead of raw identifiers, and the
// multi-file program the resolver assembles instead of the teacher's single
// translation unit.
package irgen

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/go-llvm"

	"github.com/hhramberg/tsnc/internal/ast"
	"github.com/hhramberg/tsnc/internal/types"
	"github.com/hhramberg/tsnc/internal/util"
)

// scope is one lexically nested block's variable table: mangled name ->
// stack-allocated storage. Pushed/popped on a *util.Stack exactly as the
// teacher's *symTab is pushed/popped on `st`.
type scope struct {
	mu sync.RWMutex
	m  map[string]llvm.Value
}

func newScope() *scope { return &scope{m: make(map[string]llvm.Value)} }

// loopLabels is one loop nesting level's continue/break targets.
type loopLabels struct {
	head, conv llvm.BasicBlock
}

// Generator owns one LLVM context and the single output module every
// compiled file is generated into and linked against. Functions across
// files share one flat mangled-name namespace (internal/symbols guarantees
// no collisions), so unlike the teacher — who builds one module for one
// file — we generate straight into a single llvm.Module per program.
type Generator struct {
	ctx     llvm.Context
	module  llvm.Module
	globals struct {
		mu sync.RWMutex
		m  map[string]llvm.Value
	}
	log *logrus.Logger

	floatT llvm.Type
	i1T    llvm.Type
	i8T    llvm.Type
	i8ptrT llvm.Type
	i32T   llvm.Type
	i64T   llvm.Type
}

// New creates a Generator with one module named moduleName.
func New(moduleName string, log *logrus.Logger) *Generator {
	ctx := llvm.NewContext()
	g := &Generator{
		ctx:    ctx,
		module: ctx.NewModule(moduleName),
		log:    log,
	}
	g.globals.m = make(map[string]llvm.Value, 64)
	g.floatT = ctx.DoubleType()
	g.i1T = ctx.Int1Type()
	g.i8T = ctx.Int8Type()
	g.i8ptrT = llvm.PointerType(g.i8T, 0)
	g.i32T = ctx.Int32Type()
	g.i64T = ctx.Int64Type()
	return g
}

// Dispose releases the underlying LLVM context.
func (g *Generator) Dispose() {
	g.ctx.Dispose()
}

// Module returns the generator's output module, valid after Generate
// returns successfully.
func (g *Generator) Module() llvm.Module { return g.module }

// funcWork pairs a declared function's LLVM header with its still-unlowered
// body, queued between Generate's header and body phases.
type funcWork struct {
	fn   llvm.Value
	decl ast.FunctionDeclaration
}

// Generate lowers every file's declarations into g.module, in two phases
// mirroring the teacher's GenLLVM: first every function header, every
// non-entry file's top-level variable declaration and the compilerInternal
// intrinsics (syscallPrint), so forward and cross-file references resolve
// regardless of definition order; then every function body. Finally, it
// synthesizes the implicit `main` that runs the entry file's top-level
// statements in order. Function bodies are lowered across threads
// worker goroutines when threads > 1, each with its own llvm.Builder, mirroring
// the teacher's GenLLVM parallel body-generation phase exactly (one builder
// per thread "else there will be multiple threads writing different
// functions, interchanging basic blocks concurrently").
func (g *Generator) Generate(files []*ast.File, entryFileID int, threads int) error {
	var entry *ast.File
	var funcs []funcWork

	for _, f := range files {
		if f.FileID == entryFileID {
			entry = f
		}
		for _, d := range f.Decls {
			switch decl := d.(type) {
			case ast.FunctionDeclaration:
				fn, err := g.genFuncHeader(decl)
				if err != nil {
					return errors.Wrapf(err, "file %d", f.FileID)
				}
				funcs = append(funcs, funcWork{fn: fn, decl: decl})
			case ast.VariableDeclaration:
				if f.FileID != entryFileID {
					// Only the entry file carries a top-level script; every
					// other file's top-level let/const bindings (exported or
					// not) become module globals.
					if err := g.genGlobalDecl(decl); err != nil {
						return errors.Wrapf(err, "file %d", f.FileID)
					}
				}
			case ast.ImportDeclaration:
				// Imports contribute no IR of their own; the symbols they
				// bring in are realized when the exporting file's own
				// declarations are generated.
			default:
				if f.FileID != entryFileID {
					return errors.Errorf("file %d: top-level statement %T only legal in the entry file", f.FileID, d)
				}
			}
		}
	}

	if entry == nil {
		return errors.Errorf("entry file %d not found among resolved files", entryFileID)
	}

	g.genSyscallPrint()

	if err := g.genFuncBodies(funcs, threads); err != nil {
		return err
	}

	if err := g.genMain(entry); err != nil {
		return err
	}

	if g.log != nil {
		g.log.Debug("LLVM IR:\n" + g.module.String())
	}
	return nil
}

// genFuncBodies lowers every queued function body, sequentially if threads <
// 2 or there are fewer than two functions, otherwise by chunking funcs
// across min(threads, len(funcs)) worker goroutines, each with its own
// builder, collecting
// failures through a util.Perror exactly as the teacher's GenLLVM/Optimise
// parallel phases do.
func (g *Generator) genFuncBodies(funcs []funcWork, threads int) error {
	l := len(funcs)
	if l == 0 {
		return nil
	}
	if threads < 2 || l < 2 {
		for _, fw := range funcs {
			b := g.ctx.NewBuilder()
			err := g.genFuncBody(b, fw.fn, fw.decl)
			b.Dispose()
			if err != nil {
				return errors.Wrapf(err, "function %s", fw.decl.Name)
			}
		}
		return nil
	}

	t := threads
	if t > l {
		t = l
	}
	n := l / t
	res := l % t
	start := 0
	end := n

	wg := sync.WaitGroup{}
	wg.Add(t)
	errs := util.NewPerror(t)

	for i1 := 0; i1 < t; i1++ {
		if i1 < res {
			// This thread should do one extra residual job.
			end++
		}
		go func(start, end int) {
			defer wg.Done()
			// Give each thread its own builder, else there will be multiple
			// threads writing different functions, interchanging basic
			// blocks concurrently.
			b := g.ctx.NewBuilder()
			defer b.Dispose()
			for _, fw := range funcs[start:end] {
				if err := g.genFuncBody(b, fw.fn, fw.decl); err != nil {
					errs.Append(errors.Wrapf(err, "function %s", fw.decl.Name))
				}
			}
		}(start, end)
		start = end
		end += n
	}

	wg.Wait()
	errs.Stop()

	if errs.Len() > 0 {
		for e1 := range errs.Errors() {
			g.logError(e1)
		}
		return errors.New("errors during parallel function body generation")
	}
	return nil
}

// logError reports a worker error through the generator's logger if one was
// configured, falling back to silently dropping it (errs.Len() > 0 already
// guarantees the caller returns a non-nil error either way).
func (g *Generator) logError(err error) {
	if g.log != nil {
		g.log.Error(err)
	}
}

// genType maps a types.DataType onto its LLVM representation. Array and
// String both lower to a plain pointer to their element storage; no length
// is carried with the value.
func (g *Generator) genType(t types.DataType) (llvm.Type, error) {
	switch v := t.(type) {
	case types.Float:
		return g.floatT, nil
	case types.Boolean:
		return g.i1T, nil
	case types.String:
		return g.i8ptrT, nil
	case types.Void:
		return g.ctx.VoidType(), nil
	case types.Array:
		elem, err := g.genType(v.Elem)
		if err != nil {
			return llvm.Type{}, err
		}
		return llvm.PointerType(elem, 0), nil
	case types.Object:
		fields := make([]llvm.Type, len(v.Fields))
		for i1, f := range v.Fields {
			ft, err := g.genType(f.Type)
			if err != nil {
				return llvm.Type{}, err
			}
			fields[i1] = ft
		}
		return g.ctx.StructType(fields, false), nil
	case types.Function:
		params := make([]llvm.Type, len(v.Params))
		for i1, p := range v.Params {
			pt, err := g.genType(p)
			if err != nil {
				return llvm.Type{}, err
			}
			params[i1] = pt
		}
		ret, err := g.genType(v.Return)
		if err != nil {
			return llvm.Type{}, err
		}
		return llvm.PointerType(llvm.FunctionType(ret, params, false), 0), nil
	default:
		return llvm.Type{}, errors.Errorf("genType: unhandled data type %T", t)
	}
}

// genFuncHeader declares fn's LLVM signature and registers it in the flat
// global namespace, mirroring the teacher's genFuncHeader.
func (g *Generator) genFuncHeader(decl ast.FunctionDeclaration) (llvm.Value, error) {
	paramTypes := make([]llvm.Type, len(decl.Params))
	for i1, p := range decl.Params {
		pt, err := g.genType(p.Type)
		if err != nil {
			return llvm.Value{}, err
		}
		paramTypes[i1] = pt
	}
	retType, err := g.genType(decl.Return)
	if err != nil {
		return llvm.Value{}, err
	}
	ftyp := llvm.FunctionType(retType, paramTypes, false)

	g.globals.mu.Lock()
	defer g.globals.mu.Unlock()
	if _, ok := g.globals.m[decl.Name]; ok {
		return llvm.Value{}, errors.Errorf("duplicate declaration of function %q", decl.Name)
	}
	fn := llvm.AddFunction(g.module, decl.Name, ftyp)
	for i1, p := range fn.Params() {
		p.SetName(decl.Params[i1].Name)
	}
	g.globals.m[decl.Name] = fn
	return fn, nil
}

// genGlobalDecl realizes an exported top-level variable declaration as a
// real LLVM global, addressable by mangled name from any file.
func (g *Generator) genGlobalDecl(decl ast.VariableDeclaration) error {
	typ, err := g.genType(decl.DType)
	if err != nil {
		return err
	}
	g.globals.mu.Lock()
	defer g.globals.mu.Unlock()
	for _, name := range decl.Names {
		if _, ok := g.globals.m[name]; ok {
			return errors.Errorf("duplicate declaration of global %q", name)
		}
		gv := llvm.AddGlobal(g.module, typ, name)
		gv.SetInitializer(llvm.ConstNull(typ))
		g.globals.m[name] = gv
	}
	return nil
}

// genFuncBody generates fn's entry block, allocates its parameters, and
// lowers its statements, mirroring the teacher's genFuncBody.
func (g *Generator) genFuncBody(b llvm.Builder, fn llvm.Value, decl ast.FunctionDeclaration) error {
	bb := llvm.AddBasicBlock(fn, "entry")
	b.SetInsertPointAtEnd(bb)

	paramScope := newScope()
	for i1, p := range fn.Params() {
		alloc := b.CreateAlloca(p.Type(), decl.Params[i1].Name)
		b.CreateStore(p, alloc)
		paramScope.m[decl.Params[i1].Name] = alloc
	}

	st := &util.Stack{}
	st.Push(paramScope)
	ls := &util.Stack{}

	ret, err := g.genBlock(b, fn, decl.Body, st, ls)
	if err != nil {
		return err
	}
	if !ret {
		if _, isVoid := decl.Return.(types.Void); isVoid {
			b.CreateRetVoid()
		} else {
			return errors.Errorf("function %q does not return on every path", decl.Name)
		}
	}
	return nil
}

// genBlock lowers a sequence of declarations, returning true if the block
// is guaranteed to have terminated its basic block (via return, break or
// continue on every path).
func (g *Generator) genBlock(b llvm.Builder, fn llvm.Value, decls []ast.Declaration, st, ls *util.Stack) (bool, error) {
	st.Push(newScope())
	defer st.Pop()
	for _, d := range decls {
		terminated, err := g.genStatement(b, fn, d, st, ls)
		if err != nil {
			return false, err
		}
		if terminated {
			return true, nil
		}
	}
	return false, nil
}

func (g *Generator) genStatement(b llvm.Builder, fn llvm.Value, d ast.Declaration, st, ls *util.Stack) (bool, error) {
	switch n := d.(type) {
	case ast.VariableDeclaration:
		return false, g.genLocalDecl(b, n, st)
	case ast.VariableAssignment:
		return false, g.genAssign(b, fn, n, st)
	case ast.ArrayMemberAssignment:
		return false, g.genArrayAssign(b, fn, n, st)
	case ast.ReturnStatement:
		return true, g.genReturn(b, fn, n, st)
	case ast.NewIfBlockDeclaration:
		return g.genIf(b, fn, n, st, ls)
	case ast.WhileLoopDeclaration:
		return false, g.genWhile(b, fn, n, st, ls)
	case ast.DoWhileLoopDeclaration:
		return false, g.genDoWhile(b, fn, n, st, ls)
	case ast.LoopControlFlow:
		return true, g.genLoopControl(b, n, ls)
	case ast.ImportDeclaration, ast.FunctionDeclaration:
		return false, errors.Errorf("%T not legal inside a function body", d)
	default:
		return false, errors.Errorf("genStatement: unhandled declaration %T", d)
	}
}

func (g *Generator) genLocalDecl(b llvm.Builder, decl ast.VariableDeclaration, st *util.Stack) error {
	top := st.Peek().(*scope)
	for i1, name := range decl.Names {
		val, err := g.genExpression(b, decl.Exprs[i1], st)
		if err != nil {
			return err
		}
		top.mu.Lock()
		if _, ok := top.m[name]; ok {
			top.mu.Unlock()
			return errors.Errorf("duplicate local declaration %q", name)
		}
		alloc := b.CreateAlloca(val.Type(), "")
		b.CreateStore(val, alloc)
		top.m[name] = alloc
		top.mu.Unlock()
	}
	return nil
}

// lookupStorage walks the scope stack from innermost to outermost, falling
// back to the global table, mirroring the teacher's genStore/genLoad.
func (g *Generator) lookupStorage(name string, st *util.Stack) (llvm.Value, bool) {
	for i1 := 1; i1 <= st.Size(); i1++ {
		s := st.Get(i1).(*scope)
		s.mu.RLock()
		v, ok := s.m[name]
		s.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	g.globals.mu.RLock()
	defer g.globals.mu.RUnlock()
	v, ok := g.globals.m[name]
	return v, ok
}

func (g *Generator) genAssign(b llvm.Builder, fn llvm.Value, n ast.VariableAssignment, st *util.Stack) error {
	dst, ok := g.lookupStorage(n.Name, st)
	if !ok {
		return errors.Errorf("undeclared variable %q", n.Name)
	}
	val, err := g.genExpression(b, n.Expr, st)
	if err != nil {
		return err
	}
	switch n.Op {
	case ast.Assign:
		// val as-is.
	case ast.AssignAdd, ast.AssignSub, ast.AssignMul, ast.AssignDiv:
		cur := b.CreateLoad(dst, "")
		switch n.Op {
		case ast.AssignAdd:
			val = b.CreateFAdd(cur, val, "")
		case ast.AssignSub:
			val = b.CreateFSub(cur, val, "")
		case ast.AssignMul:
			val = b.CreateFMul(cur, val, "")
		case ast.AssignDiv:
			val = b.CreateFDiv(cur, val, "")
		}
	default:
		return errors.Errorf("genAssign: unhandled assignment operator %v", n.Op)
	}
	b.CreateStore(val, dst)
	return nil
}

func (g *Generator) genArrayAssign(b llvm.Builder, fn llvm.Value, n ast.ArrayMemberAssignment, st *util.Stack) error {
	arr, err := g.genExpression(b, n.Array, st)
	if err != nil {
		return err
	}
	idx, err := g.genExpression(b, n.Index, st)
	if err != nil {
		return err
	}
	val, err := g.genExpression(b, n.Expr, st)
	if err != nil {
		return err
	}
	iidx := b.CreateFPToSI(idx, g.i64T, "")
	elemPtr := b.CreateGEP(arr, []llvm.Value{iidx}, "")
	b.CreateStore(val, elemPtr)
	return nil
}

func (g *Generator) genReturn(b llvm.Builder, fn llvm.Value, n ast.ReturnStatement, st *util.Stack) error {
	if n.Expr == nil {
		b.CreateRetVoid()
		return nil
	}
	val, err := g.genExpression(b, n.Expr, st)
	if err != nil {
		return err
	}
	b.CreateRet(val)
	return nil
}

// genIf lowers an if/else-if*/else chain into the then/elseIf.../else/
// converge basic-block shape the teacher's genIf uses for the simpler
// if-then / if-then-else case; each else-if arm here just nests another
// level of the same shape.
func (g *Generator) genIf(b llvm.Builder, fn llvm.Value, n ast.NewIfBlockDeclaration, st, ls *util.Stack) (bool, error) {
	conv := llvm.AddBasicBlock(fn, "if.end")

	type arm struct {
		cond ast.Expression
		body []ast.Declaration
	}
	arms := []arm{{cond: n.Cond, body: n.Then}}
	for _, ei := range n.ElseIfs {
		arms = append(arms, arm{cond: ei.Cond, body: ei.Body})
	}

	allTerminated := n.Else != nil
	for _, a := range arms {
		cond, err := g.genExpression(b, a.cond, st)
		if err != nil {
			return false, err
		}
		thenBB := llvm.AddBasicBlock(fn, "if.then")
		nextBB := llvm.AddBasicBlock(fn, "if.next")
		b.CreateCondBr(cond, thenBB, nextBB)

		b.SetInsertPointAtEnd(thenBB)
		terminated, err := g.genBlock(b, fn, a.body, st, ls)
		if err != nil {
			return false, err
		}
		if !terminated {
			b.CreateBr(conv)
			allTerminated = false
		}
		b.SetInsertPointAtEnd(nextBB)
	}

	if n.Else != nil {
		terminated, err := g.genBlock(b, fn, n.Else, st, ls)
		if err != nil {
			return false, err
		}
		if !terminated {
			b.CreateBr(conv)
			allTerminated = false
		}
	} else {
		b.CreateBr(conv)
	}

	b.SetInsertPointAtEnd(conv)
	return allTerminated, nil
}

func (g *Generator) genWhile(b llvm.Builder, fn llvm.Value, n ast.WhileLoopDeclaration, st, ls *util.Stack) error {
	head := llvm.AddBasicBlock(fn, "while.head")
	body := llvm.AddBasicBlock(fn, "while.body")
	conv := llvm.AddBasicBlock(fn, "while.end")

	ls.Push(&loopLabels{head: head, conv: conv})
	defer ls.Pop()

	b.CreateBr(head)
	b.SetInsertPointAtEnd(head)
	cond, err := g.genExpression(b, n.Cond, st)
	if err != nil {
		return err
	}
	b.CreateCondBr(cond, body, conv)

	b.SetInsertPointAtEnd(body)
	terminated, err := g.genBlock(b, fn, n.Body, st, ls)
	if err != nil {
		return err
	}
	if !terminated {
		b.CreateBr(head)
	}

	b.SetInsertPointAtEnd(conv)
	return nil
}

func (g *Generator) genDoWhile(b llvm.Builder, fn llvm.Value, n ast.DoWhileLoopDeclaration, st, ls *util.Stack) error {
	body := llvm.AddBasicBlock(fn, "dowhile.body")
	tail := llvm.AddBasicBlock(fn, "dowhile.cond")
	conv := llvm.AddBasicBlock(fn, "dowhile.end")

	ls.Push(&loopLabels{head: tail, conv: conv})
	defer ls.Pop()

	b.CreateBr(body)
	b.SetInsertPointAtEnd(body)
	terminated, err := g.genBlock(b, fn, n.Body, st, ls)
	if err != nil {
		return err
	}
	if !terminated {
		b.CreateBr(tail)
	}

	b.SetInsertPointAtEnd(tail)
	cond, err := g.genExpression(b, n.Cond, st)
	if err != nil {
		return err
	}
	b.CreateCondBr(cond, body, conv)

	b.SetInsertPointAtEnd(conv)
	return nil
}

func (g *Generator) genLoopControl(b llvm.Builder, n ast.LoopControlFlow, ls *util.Stack) error {
	top := ls.Peek()
	if top == nil {
		return errors.New("break/continue outside of a loop")
	}
	l := top.(*loopLabels)
	switch n.Kind {
	case ast.Continue:
		b.CreateBr(l.head)
	case ast.Break:
		b.CreateBr(l.conv)
	default:
		return errors.Errorf("genLoopControl: unhandled kind %v", n.Kind)
	}
	return nil
}

// genExpression lowers an expression to a value, mirroring the shape of the
// teacher's genExpression/genRelation but dispatching on the closed
// ast.Expression sum instead of a generic ast.Node.
func (g *Generator) genExpression(b llvm.Builder, e ast.Expression, st *util.Stack) (llvm.Value, error) {
	switch n := e.(type) {
	case ast.FloatLiteral:
		return llvm.ConstFloat(g.floatT, n.Value), nil
	case ast.BooleanLiteral:
		v := uint64(0)
		if n.Value {
			v = 1
		}
		return llvm.ConstInt(g.i1T, v, false), nil
	case ast.StringLiteral:
		g.globals.mu.Lock()
		defer g.globals.mu.Unlock()
		return b.CreateGlobalStringPtr(n.Text, "str"), nil
	case ast.Ident:
		storage, ok := g.lookupStorage(n.Mangled, st)
		if !ok {
			return llvm.Value{}, errors.Errorf("undeclared identifier %q", n.Mangled)
		}
		if !storage.IsAFunction().IsNil() {
			return storage, nil
		}
		return b.CreateLoad(storage, ""), nil
	case ast.Unary:
		return g.genUnary(b, n, st)
	case ast.Binary:
		return g.genBinary(b, n, st)
	case ast.ArrayLiteral:
		return g.genArrayLiteral(b, n, st)
	case ast.ObjectLiteral:
		return g.genObjectLiteral(b, n, st)
	case ast.ArrayMemberAccess:
		return g.genArrayAccess(b, n, st)
	case ast.DotMemberAccess:
		return g.genDotAccess(b, n, st)
	case ast.FunctionCall:
		return g.genCall(b, n, st)
	default:
		return llvm.Value{}, errors.Errorf("genExpression: unhandled expression %T", e)
	}
}

func (g *Generator) genUnary(b llvm.Builder, n ast.Unary, st *util.Stack) (llvm.Value, error) {
	val, err := g.genExpression(b, n.Operand, st)
	if err != nil {
		return llvm.Value{}, err
	}
	switch n.Op {
	case ast.UnaryPlus:
		return val, nil
	case ast.UnaryMinus:
		return b.CreateFNeg(val, ""), nil
	case ast.UnaryNot:
		return b.CreateNot(val, ""), nil
	default:
		return llvm.Value{}, errors.Errorf("genUnary: unhandled operator %v", n.Op)
	}
}

func (g *Generator) genBinary(b llvm.Builder, n ast.Binary, st *util.Stack) (llvm.Value, error) {
	left, err := g.genExpression(b, n.Left, st)
	if err != nil {
		return llvm.Value{}, err
	}
	right, err := g.genExpression(b, n.Right, st)
	if err != nil {
		return llvm.Value{}, err
	}

	if _, isStr := n.DType.(types.String); isStr && n.Op == ast.BinAdd {
		return g.genStringConcat(b, left, right)
	}

	switch n.Op {
	case ast.BinAdd:
		return b.CreateFAdd(left, right, ""), nil
	case ast.BinSub:
		return b.CreateFSub(left, right, ""), nil
	case ast.BinMul:
		return b.CreateFMul(left, right, ""), nil
	case ast.BinDiv:
		return b.CreateFDiv(left, right, ""), nil
	case ast.BinLt:
		return b.CreateFCmp(llvm.FloatOLT, left, right, ""), nil
	case ast.BinLe:
		return b.CreateFCmp(llvm.FloatOLE, left, right, ""), nil
	case ast.BinGt:
		return b.CreateFCmp(llvm.FloatOGT, left, right, ""), nil
	case ast.BinGe:
		return b.CreateFCmp(llvm.FloatOGE, left, right, ""), nil
	case ast.BinEq:
		return b.CreateFCmp(llvm.FloatOEQ, left, right, ""), nil
	case ast.BinNe:
		return b.CreateFCmp(llvm.FloatONE, left, right, ""), nil
	case ast.BinAnd:
		li := b.CreateFPToSI(left, g.i64T, "")
		ri := b.CreateFPToSI(right, g.i64T, "")
		return b.CreateSIToFP(b.CreateAnd(li, ri, ""), g.floatT, ""), nil
	case ast.BinXor:
		li := b.CreateFPToSI(left, g.i64T, "")
		ri := b.CreateFPToSI(right, g.i64T, "")
		return b.CreateSIToFP(b.CreateXor(li, ri, ""), g.floatT, ""), nil
	case ast.BinOr:
		li := b.CreateFPToSI(left, g.i64T, "")
		ri := b.CreateFPToSI(right, g.i64T, "")
		return b.CreateSIToFP(b.CreateOr(li, ri, ""), g.floatT, ""), nil
	default:
		return llvm.Value{}, errors.Errorf("genBinary: unhandled operator %v", n.Op)
	}
}

// genStringConcat emits a call to the runtime's strcat-style helper. The
// compiler links against libc (it shells out to gcc in internal/backend),
// so string concatenation is implemented in terms of malloc/strcpy/strcat
// declared as external functions, not hand-rolled IR.
func (g *Generator) genStringConcat(b llvm.Builder, left, right llvm.Value) (llvm.Value, error) {
	strlen := g.externFunc("strlen", g.i64T, []llvm.Type{g.i8ptrT})
	malloc := g.externFunc("malloc", g.i8ptrT, []llvm.Type{g.i64T})
	strcpy := g.externFunc("strcpy", g.i8ptrT, []llvm.Type{g.i8ptrT, g.i8ptrT})
	strcat := g.externFunc("strcat", g.i8ptrT, []llvm.Type{g.i8ptrT, g.i8ptrT})

	lLen := b.CreateCall(strlen, []llvm.Value{left}, "")
	rLen := b.CreateCall(strlen, []llvm.Value{right}, "")
	total := b.CreateAdd(b.CreateAdd(lLen, rLen, ""), llvm.ConstInt(g.i64T, 1, false), "")
	buf := b.CreateCall(malloc, []llvm.Value{total}, "")
	b.CreateCall(strcpy, []llvm.Value{buf, left}, "")
	b.CreateCall(strcat, []llvm.Value{buf, right}, "")
	return buf, nil
}

func (g *Generator) genArrayLiteral(b llvm.Builder, n ast.ArrayLiteral, st *util.Stack) (llvm.Value, error) {
	elemT, err := g.genType(n.ElemType)
	if err != nil {
		return llvm.Value{}, err
	}
	storage := b.CreateAlloca(llvm.ArrayType(elemT, len(n.Elements)), "")
	zero := llvm.ConstInt(g.i32T, 0, false)
	for i1, el := range n.Elements {
		val, err := g.genExpression(b, el, st)
		if err != nil {
			return llvm.Value{}, err
		}
		idx := llvm.ConstInt(g.i32T, uint64(i1), false)
		ptr := b.CreateGEP(storage, []llvm.Value{zero, idx}, "")
		b.CreateStore(val, ptr)
	}
	decayed := b.CreateGEP(storage, []llvm.Value{zero, zero}, "")
	return decayed, nil
}

func (g *Generator) genObjectLiteral(b llvm.Builder, n ast.ObjectLiteral, st *util.Stack) (llvm.Value, error) {
	objT, err := g.genType(n.ObjectType)
	if err != nil {
		return llvm.Value{}, err
	}
	storage := b.CreateAlloca(objT, "")
	for i1, f := range n.Fields {
		val, err := g.genExpression(b, f.Expr, st)
		if err != nil {
			return llvm.Value{}, err
		}
		ptr := b.CreateStructGEP(storage, i1, "")
		b.CreateStore(val, ptr)
	}
	return b.CreateLoad(storage, ""), nil
}

func (g *Generator) genArrayAccess(b llvm.Builder, n ast.ArrayMemberAccess, st *util.Stack) (llvm.Value, error) {
	arr, err := g.genExpression(b, n.Array, st)
	if err != nil {
		return llvm.Value{}, err
	}
	idx, err := g.genExpression(b, n.Index, st)
	if err != nil {
		return llvm.Value{}, err
	}
	iidx := b.CreateFPToSI(idx, g.i64T, "")
	ptr := b.CreateGEP(arr, []llvm.Value{iidx}, "")
	return b.CreateLoad(ptr, ""), nil
}

func (g *Generator) genDotAccess(b llvm.Builder, n ast.DotMemberAccess, st *util.Stack) (llvm.Value, error) {
	objType, ok := n.Container.Type().(types.Object)
	if !ok {
		return llvm.Value{}, errors.Errorf("dot access on non-object type %s", n.Container.Type())
	}
	idx := -1
	for i1, f := range objType.Fields {
		if f.Name == n.Field {
			idx = i1
			break
		}
	}
	if idx < 0 {
		return llvm.Value{}, errors.Errorf("object has no field %q", n.Field)
	}
	obj, err := g.genExpression(b, n.Container, st)
	if err != nil {
		return llvm.Value{}, err
	}
	return b.CreateExtractValue(obj, idx, ""), nil
}

func (g *Generator) genCall(b llvm.Builder, n ast.FunctionCall, st *util.Stack) (llvm.Value, error) {
	var fn llvm.Value
	if storage, ok := g.lookupStorage(n.Callee, st); ok {
		fn = storage
	} else {
		g.globals.mu.RLock()
		v, ok := g.globals.m[n.Callee]
		g.globals.mu.RUnlock()
		if !ok {
			return llvm.Value{}, errors.Errorf("undeclared function %q", n.Callee)
		}
		fn = v
	}
	args := make([]llvm.Value, len(n.Args))
	for i1, a := range n.Args {
		v, err := g.genExpression(b, a, st)
		if err != nil {
			return llvm.Value{}, err
		}
		args[i1] = v
	}
	return b.CreateCall(fn, args, ""), nil
}

// externFunc declares (or finds) a libc function by signature, used by
// genStringConcat. Declared lazily since not every program needs it.
func (g *Generator) externFunc(name string, ret llvm.Type, params []llvm.Type) llvm.Value {
	g.globals.mu.Lock()
	defer g.globals.mu.Unlock()
	if fn, ok := g.globals.m[name]; ok {
		return fn
	}
	fn := llvm.AddFunction(g.module, name, llvm.FunctionType(ret, params, false))
	g.globals.m[name] = fn
	return fn
}

// genMain synthesizes the process entry point: a C `main` that runs the
// entry file's top-level statements in program order, then returns 0,
// mirroring the teacher's genMain but executing a statement list instead of
// calling out to the language's own "first declared function."
func (g *Generator) genMain(entry *ast.File) error {
	ftyp := llvm.FunctionType(g.i32T, []llvm.Type{g.i32T, llvm.PointerType(g.i8ptrT, 0)}, false)
	main := llvm.AddFunction(g.module, "main", ftyp)
	main.Param(0).SetName("argc")
	main.Param(1).SetName("argv")

	bb := llvm.AddBasicBlock(main, "entry")
	b := g.ctx.NewBuilder()
	defer b.Dispose()
	b.SetInsertPointAtEnd(bb)

	st := &util.Stack{}
	st.Push(newScope())
	ls := &util.Stack{}

	var scriptDecls []ast.Declaration
	for _, d := range entry.Decls {
		switch d.(type) {
		case ast.FunctionDeclaration, ast.ImportDeclaration:
			continue
		default:
			scriptDecls = append(scriptDecls, d)
		}
	}

	terminated, err := g.genBlock(b, main, scriptDecls, st, ls)
	if err != nil {
		return errors.Wrap(err, "generating entry file's top-level script")
	}
	if !terminated {
		b.CreateRet(llvm.ConstInt(g.i32T, 0, false))
	}
	return nil
}

// genSyscallPrint defines the compilerInternal syscallPrint intrinsic as an
// inline-asm wrapper around the x86-64 write(2) syscall, per spec.md §6. It
// takes (fd: number, buf: string, len: number) and returns void; fd and len
// arrive as doubles (the language's sole numeric type) and are converted to
// integers before the syscall fires.
func (g *Generator) genSyscallPrint() {
	paramTypes := []llvm.Type{g.floatT, g.i8ptrT, g.floatT}
	ftyp := llvm.FunctionType(g.ctx.VoidType(), paramTypes, false)
	name := "|fn:1|syscallPrint|_|"

	g.globals.mu.Lock()
	if _, ok := g.globals.m[name]; ok {
		g.globals.mu.Unlock()
		return
	}
	fn := llvm.AddFunction(g.module, name, ftyp)
	g.globals.m[name] = fn
	g.globals.mu.Unlock()

	bb := llvm.AddBasicBlock(fn, "entry")
	b := g.ctx.NewBuilder()
	defer b.Dispose()
	b.SetInsertPointAtEnd(bb)

	fd := b.CreateFPToSI(fn.Param(0), g.i64T, "")
	buf := fn.Param(1)
	n := b.CreateFPToSI(fn.Param(2), g.i64T, "")

	// x86-64 write(2): rax=1 (syscall number), rdi=fd, rsi=buf, rdx=len.
	asmTyp := llvm.FunctionType(g.ctx.VoidType(), []llvm.Type{g.i64T, g.i64T, g.i8ptrT, g.i64T}, false)
	asm := llvm.InlineAsm(asmTyp,
		"syscall",
		"{rax},{rdi},{rsi},{rdx}",
		true, false, llvm.InlineAsmDialectATT, false)
	sysno := llvm.ConstInt(g.i64T, 1, false)
	b.CreateCall(asm, []llvm.Value{sysno, fd, buf, n}, "")
	b.CreateRetVoid()
}

// String renders g's module as textual LLVM IR.
func (g *Generator) String() string {
	return g.module.String()
}
