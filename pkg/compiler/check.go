package compiler

import "fmt"

// check computes the static type of e and of every subexpression, and
// records them in g.types for emitExpr. It emits nothing, so a type or
// name error is reported before any instruction of the tree is appended.
func (g *CodeGen) check(e Expr) (*CType, error) {
	var t *CType
	switch n := e.(type) {
	case *IntLiteral:
		t = n.Type
		if t == nil {
			t = TyInt
		}

	case *StringLiteral:
		t = PointerTo(TyChar)

	case *VarRef:
		v, err := g.scope.Resolve(n.Name)
		if err != nil {
			return nil, err
		}
		t = v.Type

	case *BinaryExpr:
		lt, err := g.check(n.Left)
		if err != nil {
			return nil, err
		}
		rt, err := g.check(n.Right)
		if err != nil {
			return nil, err
		}
		lt, rt = lt.Decay(), rt.Decay()
		if n.Op.IsComparison() {
			// A literal 0 compares against any pointer.
			if lt.IsPointer() && isNullConst(n.Right) {
				rt = lt
			} else if rt.IsPointer() && isNullConst(n.Left) {
				lt = rt
			}
		}
		if t, err = BinaryResult(n.Op, lt, rt); err != nil {
			return nil, err
		}

	case *FunctionCall:
		def, err := g.funcs.Lookup(n.Name, len(n.Args))
		if err != nil {
			return nil, err
		}
		for i, arg := range n.Args {
			at, err := g.check(arg)
			if err != nil {
				return nil, err
			}
			if err := CheckAssign(def.Params[i].Type, at, isNullConst(arg)); err != nil {
				return nil, fmt.Errorf("argument %d of %s: %w", i+1, n.Name, err)
			}
		}
		t = def.ReturnType

	case *AddrExpr:
		switch n.Operand.(type) {
		case *VarRef, *DerefExpr:
		default:
			return nil, typeErrorf("cannot take the address of %s", n.Operand)
		}
		ot, err := g.check(n.Operand)
		if err != nil {
			return nil, err
		}
		t = AddressOf(ot)

	case *DerefExpr:
		ot, err := g.check(n.Operand)
		if err != nil {
			return nil, err
		}
		if t, err = Deref(ot); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown expression node %T", e)
	}

	g.types[e] = t
	return t, nil
}

// checkScalar checks e and requires a value usable as a condition or printf argument.
func (g *CodeGen) checkScalar(e Expr, what string) (*CType, error) {
	t, err := g.check(e)
	if err != nil {
		return nil, err
	}
	if !t.Decay().IsScalar() {
		return nil, typeErrorf("%s has non-scalar type %s", what, t)
	}
	return t, nil
}

func isNullConst(e Expr) bool {
	lit, ok := e.(*IntLiteral)
	return ok && lit.Value == 0
}

// checkVarType rejects types that cannot be given storage.
func checkVarType(t *CType, name string) error {
	switch {
	case t.IsVoid():
		return typeErrorf("variable %q declared void", name)
	case t.IsArray() && t.Len <= 0:
		return typeErrorf("array %q has non-positive length %d", name, t.Len)
	case t.IsArray():
		return checkVarType(t.Elem, name)
	}
	return nil
}

// checkSignature validates parameter and return types of a function.
func checkSignature(f *FunctionDecl) error {
	if rt := f.ReturnType; !rt.IsVoid() && !rt.IsScalar() {
		return typeErrorf("function %s cannot return %s", f.Name, rt)
	}
	for _, p := range f.Params {
		if !p.Type.IsScalar() {
			return typeErrorf("parameter %q of %s has non-scalar type %s", p.Name, f.Name, p.Type)
		}
	}
	return nil
}

// countVerbs counts the conversions in a printf format string.
func countVerbs(format string) (int, error) {
	n := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if i >= len(format) {
			return 0, typeErrorf("printf format ends with %%")
		}
		switch format[i] {
		case '%':
		case 'd', 'u', 'x', 'c', 's':
			n++
		default:
			return 0, typeErrorf("unknown printf verb %%%c", format[i])
		}
	}
	return n, nil
}
