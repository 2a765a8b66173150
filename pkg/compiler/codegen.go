package compiler

import (
	"fmt"

	"github.com/si0005hp/jcc-i/pkg/code"
)

// CodeGen walks the AST and appends stack machine instructions to a single stream.
type CodeGen struct {
	out   *code.Stream
	funcs *FuncTable

	// Per-function state, replaced by genFunction.
	scope *FunctionScope
	fn    *FuncDef

	types   map[Expr]*CType  // filled by check, read by emitExpr
	data    []int64          // data segment image; cell 0 is the null address
	strPool map[string]int64 // string literal -> data address
}

func newCodeGen() *CodeGen {
	return &CodeGen{
		out:     code.NewStream(),
		funcs:   NewFuncTable(),
		types:   make(map[Expr]*CType),
		data:    []int64{0},
		strPool: make(map[string]int64),
	}
}

// Generate compiles a translation unit into a program whose entry is main.
func Generate(funcs []*FunctionDecl) (*code.Program, error) {
	g := newCodeGen()

	// 1. PRE-PASS: register every signature so calls may precede definitions.
	for _, f := range funcs {
		if err := checkSignature(f); err != nil {
			return nil, err
		}
		if _, err := g.funcs.Register(f); err != nil {
			return nil, err
		}
	}

	mainDef, err := g.funcs.Lookup("main", 0)
	if err != nil {
		return nil, fmt.Errorf("entry point main: %w", err)
	}

	// 2. Function bodies, in source order.
	for _, f := range funcs {
		if err := g.genFunction(f); err != nil {
			return nil, fmt.Errorf("function %q: %w", f.Name, err)
		}
	}

	if names := g.funcs.Unresolved(); len(names) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvedFunction, names)
	}
	instrs, err := g.out.Finish()
	if err != nil {
		return nil, err
	}

	return &code.Program{
		Code:  instrs,
		Data:  g.data,
		Entry: mainDef.Entry,
		Funcs: g.funcs.Entries(),
	}, nil
}

func (g *CodeGen) genFunction(f *FunctionDecl) error {
	g.scope = NewFunctionScope()
	g.fn, _ = g.funcs.Lookup(f.Name, len(f.Params))

	for _, p := range f.Params {
		if _, err := g.scope.AddArgument(p.Type, p.Name); err != nil {
			return err
		}
	}

	// ENTRY's operand is the local frame size, known once the body is done.
	entry := g.out.EmitPlaceholder(code.OpENTRY)
	if err := g.funcs.Define(g.out, f.Name, entry); err != nil {
		return err
	}

	terminated, err := g.genStmt(f.Body)
	if err != nil {
		return err
	}
	if !terminated {
		// Falling off the end returns 0, for void functions too, so that
		// every CALL leaves exactly one value.
		g.out.EmitArg(code.OpPUSH, 0)
		g.out.Emit(code.OpRET)
	}
	return g.out.Patch(entry, int64(g.scope.LocalCells()))
}

// genScoped generates s inside its own scope. Used for if branches and loop bodies.
func (g *CodeGen) genScoped(s Stmt) (bool, error) {
	g.scope.PushScope()
	defer g.scope.PopScope()
	return g.genStmt(s)
}

// genStmt generates s and reports whether control never falls through it.
func (g *CodeGen) genStmt(s Stmt) (bool, error) {
	switch n := s.(type) {

	case *BlockStmt:
		g.scope.PushScope()
		defer g.scope.PopScope()
		// Only the last statement counts: unreachable code after a return
		// may still bind labels that need an instruction after them.
		terminated := false
		for _, stmt := range n.Stmts {
			t, err := g.genStmt(stmt)
			if err != nil {
				return false, err
			}
			terminated = t
		}
		return terminated, nil

	case *VarDecl:
		_, err := g.declare(n)
		return false, err

	case *VarInit:
		v, err := g.declare(n.Decl)
		if err != nil {
			return false, err
		}
		if v.Type.IsArray() {
			return false, typeErrorf("array %q cannot have an initializer", v.Name)
		}
		it, err := g.check(n.Init)
		if err != nil {
			return false, err
		}
		if err := CheckAssign(v.Type, it, isNullConst(n.Init)); err != nil {
			return false, fmt.Errorf("initializer of %q: %w", v.Name, err)
		}
		if err := g.emitExpr(n.Init); err != nil {
			return false, err
		}
		g.emitConvert(v.Type, it)
		g.out.EmitArg(code.OpSTOREL, v.Operand())
		return false, nil

	case *Assignment:
		return false, g.genAssignment(n)

	case *ReturnStmt:
		return true, g.genReturn(n)

	case *ExprStmt:
		if _, err := g.genExpr(n.Expr); err != nil {
			return false, err
		}
		g.out.Emit(code.OpPOPR)
		return false, nil

	case *IfStmt:
		return g.genIf(n)

	case *WhileStmt:
		return false, g.genWhile(n)

	case *BreakStmt:
		target, err := g.scope.BreakTarget()
		if err != nil {
			return false, err
		}
		g.out.Jump(code.OpJMP, target)
		return true, nil

	case *ContinueStmt:
		target, err := g.scope.ContinueTarget()
		if err != nil {
			return false, err
		}
		g.out.Jump(code.OpJMP, target)
		return true, nil

	case *PrintfStmt:
		return false, g.genPrintf(n)

	case *FunctionDecl:
		return false, fmt.Errorf("nested function definition %q", n.Name)

	default:
		return false, fmt.Errorf("unknown statement node %T", s)
	}
}

func (g *CodeGen) declare(d *VarDecl) (*LocalVar, error) {
	if err := checkVarType(d.Type, d.Name); err != nil {
		return nil, err
	}
	return g.scope.AddLocal(d.Type, d.Name)
}

func (g *CodeGen) genAssignment(n *Assignment) error {
	var dst *CType
	switch left := n.Left.(type) {
	case *VarRef, *DerefExpr:
		t, err := g.check(left)
		if err != nil {
			return err
		}
		dst = t
	default:
		return typeErrorf("%s is not assignable", n.Left)
	}

	vt, err := g.check(n.Value)
	if err != nil {
		return err
	}
	if err := CheckAssign(dst, vt, isNullConst(n.Value)); err != nil {
		return err
	}

	switch left := n.Left.(type) {
	case *VarRef:
		v, err := g.scope.Resolve(left.Name)
		if err != nil {
			return err
		}
		if err := g.emitExpr(n.Value); err != nil {
			return err
		}
		g.emitConvert(dst, vt)
		g.out.EmitArg(code.OpSTOREL, v.Operand())

	case *DerefExpr:
		// STORE pops the value, then the address.
		if err := g.emitExpr(left.Operand); err != nil {
			return err
		}
		if err := g.emitExpr(n.Value); err != nil {
			return err
		}
		g.emitConvert(dst, vt)
		g.out.Emit(code.OpSTORE)
	}
	return nil
}

func (g *CodeGen) genReturn(n *ReturnStmt) error {
	rt := g.fn.ReturnType
	if n.Expr == nil {
		if !rt.IsVoid() {
			return typeErrorf("%s must return a value of type %s", g.fn.Name, rt)
		}
		g.out.EmitArg(code.OpPUSH, 0)
		g.out.Emit(code.OpRET)
		return nil
	}
	if rt.IsVoid() {
		return typeErrorf("void function %s cannot return a value", g.fn.Name)
	}

	t, err := g.check(n.Expr)
	if err != nil {
		return err
	}
	if err := CheckAssign(rt, t, isNullConst(n.Expr)); err != nil {
		return fmt.Errorf("return value: %w", err)
	}
	if err := g.emitExpr(n.Expr); err != nil {
		return err
	}
	g.emitConvert(rt, t)
	g.out.Emit(code.OpRET)
	return nil
}

// genIf emits
//
//	cond; JZ else; then; [JMP end; else: elseBody;] end:
//
// The JMP is left out when the then branch cannot fall through.
func (g *CodeGen) genIf(n *IfStmt) (bool, error) {
	if _, err := g.checkScalar(n.Condition, "if condition"); err != nil {
		return false, err
	}
	if err := g.emitExpr(n.Condition); err != nil {
		return false, err
	}

	elseLabel := code.NewLabel()
	g.out.Jump(code.OpJZ, elseLabel)
	thenDone, err := g.genScoped(n.Body)
	if err != nil {
		return false, err
	}

	if n.ElseBody == nil {
		return false, g.out.Bind(elseLabel)
	}

	endLabel := code.NewLabel()
	if !thenDone {
		g.out.Jump(code.OpJMP, endLabel)
	}
	if err := g.out.Bind(elseLabel); err != nil {
		return false, err
	}
	elseDone, err := g.genScoped(n.ElseBody)
	if err != nil {
		return false, err
	}
	if err := g.out.Bind(endLabel); err != nil {
		return false, err
	}
	return thenDone && elseDone, nil
}

// genWhile emits
//
//	entry: cond; JZ exit; body; JMP entry; exit:
func (g *CodeGen) genWhile(n *WhileStmt) error {
	entry := g.out.Here()
	if _, err := g.checkScalar(n.Condition, "while condition"); err != nil {
		return err
	}
	if err := g.emitExpr(n.Condition); err != nil {
		return err
	}

	exit := code.NewLabel()
	g.out.Jump(code.OpJZ, exit)

	g.scope.EnterLoop(exit, entry)
	_, err := g.genScoped(n.Body)
	g.scope.ExitLoop()
	if err != nil {
		return err
	}

	g.out.Jump(code.OpJMP, entry)
	return g.out.Bind(exit)
}

func (g *CodeGen) genPrintf(n *PrintfStmt) error {
	ft, err := g.check(n.Format)
	if err != nil {
		return err
	}
	if ft = ft.Decay(); !ft.IsPointer() || ft.Elem.Kind != KindChar {
		return typeErrorf("printf format has type %s, want char*", ft)
	}
	if lit, ok := n.Format.(*StringLiteral); ok {
		verbs, err := countVerbs(lit.Value)
		if err != nil {
			return err
		}
		if verbs != len(n.Args) {
			return fmt.Errorf("%w: printf format %q has %d verbs, got %d arguments", ErrArity, lit.Value, verbs, len(n.Args))
		}
	}
	for i, arg := range n.Args {
		if _, err := g.checkScalar(arg, fmt.Sprintf("printf argument %d", i+1)); err != nil {
			return err
		}
	}

	if err := g.emitExpr(n.Format); err != nil {
		return err
	}
	for _, arg := range n.Args {
		if err := g.emitExpr(arg); err != nil {
			return err
		}
	}
	g.out.EmitArg(code.OpPRINTF, int64(len(n.Args)+1))
	return nil
}

// genExpr type-checks e, then emits code leaving its value on the stack.
func (g *CodeGen) genExpr(e Expr) (*CType, error) {
	t, err := g.check(e)
	if err != nil {
		return nil, err
	}
	return t, g.emitExpr(e)
}

var binaryOpcodes = map[BinaryOp]code.Opcode{
	OpAdd: code.OpADD,
	OpSub: code.OpSUB,
	OpMul: code.OpMUL,
	OpDiv: code.OpDIV,
	OpMod: code.OpMOD,
	OpEq:  code.OpEQ,
	OpNe:  code.OpNE,
	OpLt:  code.OpLT,
	OpLe:  code.OpLE,
	OpGt:  code.OpGT,
	OpGe:  code.OpGE,
}

// unsignedOpcodes replaces binaryOpcodes when the operands convert to an unsigned type.
var unsignedOpcodes = map[BinaryOp]code.Opcode{
	OpDiv: code.OpDIVU,
	OpMod: code.OpMODU,
	OpLt:  code.OpLTU,
	OpLe:  code.OpLEU,
	OpGt:  code.OpGTU,
	OpGe:  code.OpGEU,
}

// emitExpr emits an expression that check has already typed.
// Operands are always evaluated left, then right.
func (g *CodeGen) emitExpr(e Expr) error {
	switch n := e.(type) {
	case *IntLiteral:
		g.out.EmitArg(code.OpPUSH, n.Value)

	case *StringLiteral:
		g.out.EmitArg(code.OpPUSH, g.intern(n.Value))

	case *VarRef:
		v, err := g.scope.Resolve(n.Name)
		if err != nil {
			return err
		}
		if v.Type.IsArray() {
			// Arrays decay to the address of their first element.
			g.out.EmitArg(code.OpADDRL, v.Operand())
		} else {
			g.out.EmitArg(code.OpLOADL, v.Operand())
		}

	case *BinaryExpr:
		lt, rt := g.types[n.Left].Decay(), g.types[n.Right].Decay()
		if lt.IsInteger() && rt.IsInteger() {
			return g.emitIntegerOp(n, lt, rt)
		}
		arith := n.Op == OpAdd || n.Op == OpSub

		if err := g.emitExpr(n.Left); err != nil {
			return err
		}
		if arith && lt.IsInteger() && rt.IsPointer() {
			g.emitScale(rt.Elem.Cells())
		}
		if err := g.emitExpr(n.Right); err != nil {
			return err
		}
		if arith && lt.IsPointer() && rt.IsInteger() {
			g.emitScale(lt.Elem.Cells())
		}
		g.out.Emit(binaryOpcodes[n.Op])
		if n.Op == OpSub && lt.IsPointer() && rt.IsPointer() {
			if cells := lt.Elem.Cells(); cells > 1 {
				g.out.EmitArg(code.OpPUSH, int64(cells))
				g.out.Emit(code.OpDIV)
			}
		}

	case *FunctionCall:
		def, err := g.funcs.Lookup(n.Name, len(n.Args))
		if err != nil {
			return err
		}
		for i, arg := range n.Args {
			if err := g.emitExpr(arg); err != nil {
				return err
			}
			g.emitConvert(def.Params[i].Type, g.types[arg])
		}
		g.out.EmitArg(code.OpFRAME, int64(len(def.Params)))
		g.funcs.EmitCall(g.out, def)

	case *AddrExpr:
		switch op := n.Operand.(type) {
		case *VarRef:
			v, err := g.scope.Resolve(op.Name)
			if err != nil {
				return err
			}
			g.out.EmitArg(code.OpADDRL, v.Operand())
		case *DerefExpr:
			// &*p is p.
			return g.emitExpr(op.Operand)
		default:
			return typeErrorf("cannot take the address of %s", n.Operand)
		}

	case *DerefExpr:
		if err := g.emitExpr(n.Operand); err != nil {
			return err
		}
		// Dereferencing a pointer to an array yields the array, which decays
		// back to the same address.
		if !g.types[e].IsArray() {
			g.out.Emit(code.OpLOAD)
		}

	default:
		return fmt.Errorf("unknown expression node %T", e)
	}
	return nil
}

// emitIntegerOp converts both operands to their common type, then applies
// the signed or unsigned form of the operator. Unsigned results narrower
// than a cell wrap around.
func (g *CodeGen) emitIntegerOp(n *BinaryExpr, lt, rt *CType) error {
	common := commonInteger(lt, rt)
	if err := g.emitExpr(n.Left); err != nil {
		return err
	}
	g.emitConvert(common, lt)
	if err := g.emitExpr(n.Right); err != nil {
		return err
	}
	g.emitConvert(common, rt)

	op := binaryOpcodes[n.Op]
	if uop, ok := unsignedOpcodes[n.Op]; ok && common.Unsigned {
		op = uop
	}
	g.out.Emit(op)

	switch n.Op {
	case OpAdd, OpSub, OpMul:
		if common.Unsigned && common.Size() < 8 {
			g.out.EmitArg(code.OpZEXT, int64(common.Size()))
		}
	}
	return nil
}

// emitConvert converts the value on top of the stack from src to dst.
// Values are kept in range of their static type, so only a store into a
// narrower or differently signed integer type emits anything.
func (g *CodeGen) emitConvert(dst, src *CType) {
	if !dst.IsInteger() || dst.Size() >= 8 || dst.Holds(src.Decay()) {
		return
	}
	op := code.OpSEXT
	if dst.Unsigned {
		op = code.OpZEXT
	}
	g.out.EmitArg(op, int64(dst.Size()))
}

// emitScale multiplies the value on top of the stack by a pointee's cell count.
func (g *CodeGen) emitScale(cells int) {
	if cells == 1 {
		return
	}
	g.out.EmitArg(code.OpPUSH, int64(cells))
	g.out.Emit(code.OpMUL)
}

// intern places s in the data segment once and returns its address.
func (g *CodeGen) intern(s string) int64 {
	if addr, ok := g.strPool[s]; ok {
		return addr
	}
	addr := int64(len(g.data))
	for i := 0; i < len(s); i++ {
		g.data = append(g.data, int64(s[i]))
	}
	g.data = append(g.data, 0)
	g.strPool[s] = addr
	return addr
}
