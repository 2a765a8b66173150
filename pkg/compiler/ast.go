package compiler

import (
	"fmt"
	"strings"
)

// The node set is closed: exprNode and stmtNode are unexported, and both
// passes over the tree (check.go and codegen.go) switch over every variant.

//  Expression nodes

// Expr is implemented by every node that produces a value.
type Expr interface {
	exprNode()
	String() string
}

// IntLiteral is a compile-time integer constant. Character literals are
// IntLiterals of type char.
//
//	int x = 10;
//	        ^^  IntLiteral{Value: 10, Type: TyInt}
type IntLiteral struct {
	Value int64
	Type  *CType
}

func (*IntLiteral) exprNode()        {}
func (l *IntLiteral) String() string { return fmt.Sprintf("%d", l.Value) }

// StringLiteral is a string constant "...". It evaluates to a char* into the data segment.
type StringLiteral struct {
	Value string
}

func (*StringLiteral) exprNode()        {}
func (s *StringLiteral) String() string { return fmt.Sprintf("%q", s.Value) }

// BinaryOp is an arithmetic or comparison operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var binaryOpNames = [...]string{
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpMod: "%",
	OpEq:  "==",
	OpNe:  "!=",
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
}

func (op BinaryOp) String() string {
	if int(op) >= 0 && int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

func (op BinaryOp) IsComparison() bool { return op >= OpEq }

// BinaryExpr represents a binary operation: Left Op Right.
//
//	x + 1
//	^ ^ ^
//	| | |
//	| | Right
//	| Op
//	Left
type BinaryExpr struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// VarRef is a read of a named variable.
//
//	return x;
//	       ^  VarRef{Name: "x"}
type VarRef struct {
	Name string
}

func (*VarRef) exprNode()        {}
func (v *VarRef) String() string { return v.Name }

// FunctionCall represents name(args)
type FunctionCall struct {
	Name string
	Args []Expr
}

func (*FunctionCall) exprNode() {}
func (c *FunctionCall) String() string {
	return fmt.Sprintf("FunctionCall(%s, args=%v)", c.Name, c.Args)
}

// AddrExpr represents &Operand.
type AddrExpr struct {
	Operand Expr
}

func (*AddrExpr) exprNode()        {}
func (a *AddrExpr) String() string { return fmt.Sprintf("(&%s)", a.Operand) }

// DerefExpr represents *Operand.
type DerefExpr struct {
	Operand Expr
}

func (*DerefExpr) exprNode()        {}
func (d *DerefExpr) String() string { return fmt.Sprintf("(*%s)", d.Operand) }

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	String() string
}

// BlockStmt represents { statement; ... }
type BlockStmt struct {
	Stmts []Stmt
}

func (*BlockStmt) stmtNode() {}
func (b *BlockStmt) String() string {
	return fmt.Sprintf("BlockStmt(len=%d)", len(b.Stmts))
}

// Param is one declared function parameter.
type Param struct {
	Type *CType
	Name string
}

// FunctionDecl represents int name(params) { body }
type FunctionDecl struct {
	ReturnType *CType
	Name       string
	Params     []Param
	Body       *BlockStmt
}

func (*FunctionDecl) stmtNode() {}
func (f *FunctionDecl) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type.String() + " " + p.Name
	}
	return fmt.Sprintf("FunctionDecl(%s %s(%s), body=%s)", f.ReturnType, f.Name, strings.Join(params, ", "), f.Body)
}

// VarDecl represents  int name;
type VarDecl struct {
	Type *CType
	Name string
}

func (*VarDecl) stmtNode() {}
func (d *VarDecl) String() string {
	return fmt.Sprintf("VarDecl(%s %s)", d.Type, d.Name)
}

// VarInit represents  int name = expr;
type VarInit struct {
	Decl *VarDecl
	Init Expr
}

func (*VarInit) stmtNode() {}
func (v *VarInit) String() string {
	return fmt.Sprintf("VarInit(%s %s = %s)", v.Decl.Type, v.Decl.Name, v.Init)
}

// Assignment represents  Left = Value;  where Left is a VarRef or DerefExpr.
type Assignment struct {
	Left  Expr
	Value Expr
}

func (*Assignment) stmtNode() {}
func (a *Assignment) String() string {
	return fmt.Sprintf("Assignment(%s = %s)", a.Left, a.Value)
}

// ReturnStmt represents  return expr;  Expr is nil for a bare return.
type ReturnStmt struct {
	Expr Expr
}

func (*ReturnStmt) stmtNode() {}
func (r *ReturnStmt) String() string {
	if r.Expr == nil {
		return "ReturnStmt(void)"
	}
	return fmt.Sprintf("ReturnStmt(%s)", r.Expr)
}

// ExprStmt represents an expression evaluated for its side effects (e.g. a function call).
type ExprStmt struct {
	Expr Expr
}

func (*ExprStmt) stmtNode() {}
func (e *ExprStmt) String() string {
	return fmt.Sprintf("ExprStmt(%s)", e.Expr)
}

// IfStmt represents if (cond) body [else elseBody]
type IfStmt struct {
	Condition Expr
	Body      Stmt
	ElseBody  Stmt // may be nil
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	if i.ElseBody != nil {
		return fmt.Sprintf("IfStmt(if %s then %s else %s)", i.Condition, i.Body, i.ElseBody)
	}
	return fmt.Sprintf("IfStmt(if %s then %s)", i.Condition, i.Body)
}

// WhileStmt represents while (cond) body
type WhileStmt struct {
	Condition Expr
	Body      Stmt
}

func (*WhileStmt) stmtNode() {}
func (w *WhileStmt) String() string {
	return fmt.Sprintf("WhileStmt(while %s do %s)", w.Condition, w.Body)
}

// BreakStmt represents break;
type BreakStmt struct{}

func (*BreakStmt) stmtNode()        {}
func (s *BreakStmt) String() string { return "BreakStmt" }

// ContinueStmt represents continue;
type ContinueStmt struct{}

func (*ContinueStmt) stmtNode()        {}
func (s *ContinueStmt) String() string { return "ContinueStmt" }

// PrintfStmt represents printf(format, args...);
type PrintfStmt struct {
	Format Expr
	Args   []Expr
}

func (*PrintfStmt) stmtNode() {}
func (p *PrintfStmt) String() string {
	return fmt.Sprintf("PrintfStmt(%s, args=%v)", p.Format, p.Args)
}
