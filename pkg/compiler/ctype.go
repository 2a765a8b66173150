package compiler

import (
	"fmt"
	"strings"
)

// Kind is the tag of a type descriptor.
type Kind uint8

const (
	KindVoid Kind = iota
	KindChar
	KindShort
	KindInt
	KindLong
	KindPointer
	KindArray
)

const pointerSize = 8

// CType describes a value's static type.
// Pointer and array types carry their element type in Elem.
type CType struct {
	Kind     Kind
	Unsigned bool
	Elem     *CType
	Len      int // array length
}

var (
	TyVoid   = &CType{Kind: KindVoid}
	TyChar   = &CType{Kind: KindChar}
	TyShort  = &CType{Kind: KindShort}
	TyInt    = &CType{Kind: KindInt}
	TyLong   = &CType{Kind: KindLong}
	TyUChar  = &CType{Kind: KindChar, Unsigned: true}
	TyUShort = &CType{Kind: KindShort, Unsigned: true}
	TyUInt   = &CType{Kind: KindInt, Unsigned: true}
	TyULong  = &CType{Kind: KindLong, Unsigned: true}
)

func PointerTo(elem *CType) *CType {
	return &CType{Kind: KindPointer, Elem: elem}
}

func ArrayOf(elem *CType, n int) *CType {
	return &CType{Kind: KindArray, Elem: elem, Len: n}
}

// Size is the storage size in bytes.
func (t *CType) Size() int {
	switch t.Kind {
	case KindChar:
		return 1
	case KindShort:
		return 2
	case KindInt:
		return 4
	case KindLong, KindPointer:
		return pointerSize
	case KindArray:
		return t.Elem.Size() * t.Len
	}
	return 0
}

// Cells is the number of VM memory cells a value of t occupies.
// Every scalar takes one cell.
func (t *CType) Cells() int {
	switch t.Kind {
	case KindVoid:
		return 0
	case KindArray:
		return t.Elem.Cells() * t.Len
	}
	return 1
}

func (t *CType) IsInteger() bool {
	switch t.Kind {
	case KindChar, KindShort, KindInt, KindLong:
		return true
	}
	return false
}

func (t *CType) IsPointer() bool { return t.Kind == KindPointer }
func (t *CType) IsArray() bool   { return t.Kind == KindArray }
func (t *CType) IsVoid() bool    { return t.Kind == KindVoid }

// IsScalar reports whether t fits in one cell and can be tested for truth.
func (t *CType) IsScalar() bool { return t.IsInteger() || t.IsPointer() }

// Decay converts an array type to a pointer to its first element.
func (t *CType) Decay() *CType {
	if t.Kind == KindArray {
		return PointerTo(t.Elem)
	}
	return t
}

// Equal reports structural identity.
func (t *CType) Equal(o *CType) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind || t.Unsigned != o.Unsigned {
		return false
	}
	switch t.Kind {
	case KindPointer:
		return t.Elem.Equal(o.Elem)
	case KindArray:
		return t.Len == o.Len && t.Elem.Equal(o.Elem)
	}
	return true
}

func (t *CType) String() string {
	switch t.Kind {
	case KindPointer:
		return t.Elem.String() + "*"
	case KindArray:
		return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
	}
	var sb strings.Builder
	if t.Unsigned {
		sb.WriteString("unsigned ")
	}
	switch t.Kind {
	case KindVoid:
		sb.WriteString("void")
	case KindChar:
		sb.WriteString("char")
	case KindShort:
		sb.WriteString("short")
	case KindInt:
		sb.WriteString("int")
	case KindLong:
		sb.WriteString("long")
	}
	return sb.String()
}

// promote applies integer promotion: anything narrower than int becomes int.
func promote(t *CType) *CType {
	if t.Kind < KindInt {
		return TyInt
	}
	return t
}

// commonInteger is the usual arithmetic conversion for two integer types:
// the higher rank wins, and unsigned wins on equal rank.
func commonInteger(l, r *CType) *CType {
	l, r = promote(l), promote(r)
	switch {
	case l.Kind > r.Kind:
		return l
	case r.Kind > l.Kind:
		return r
	case r.Unsigned:
		return r
	}
	return l
}

// Holds reports whether every value of integer type src is also a value
// of integer type t, so storing one into the other needs no conversion.
func (t *CType) Holds(src *CType) bool {
	if !t.IsInteger() || !src.IsInteger() {
		return false
	}
	switch {
	case src.Size() > t.Size():
		return false
	case src.Size() == t.Size():
		return src.Unsigned == t.Unsigned
	}
	return !t.Unsigned || src.Unsigned
}

// sameTarget reports whether two pointers may be mixed: identical pointees, or either is void*.
func sameTarget(l, r *CType) bool {
	return l.Elem.Equal(r.Elem) || l.Elem.IsVoid() || r.Elem.IsVoid()
}

// BinaryResult gives the result type of l op r, or an ErrType error.
// Array operands must already be decayed.
func BinaryResult(op BinaryOp, l, r *CType) (*CType, error) {
	if l.IsVoid() || r.IsVoid() {
		return nil, typeErrorf("operand of %s has type void", op)
	}
	if op.IsComparison() {
		switch {
		case l.IsInteger() && r.IsInteger():
			return TyInt, nil
		case l.IsPointer() && r.IsPointer() && sameTarget(l, r):
			return TyInt, nil
		}
		return nil, typeErrorf("cannot compare %s and %s", l, r)
	}

	switch {
	case l.IsInteger() && r.IsInteger():
		return commonInteger(l, r), nil
	case op == OpAdd && l.IsPointer() && r.IsInteger():
		return l, nil
	case op == OpAdd && l.IsInteger() && r.IsPointer():
		return r, nil
	case op == OpSub && l.IsPointer() && r.IsInteger():
		return l, nil
	case op == OpSub && l.IsPointer() && r.IsPointer() && l.Elem.Equal(r.Elem):
		return TyLong, nil
	}
	return nil, typeErrorf("invalid operands to %s: %s and %s", op, l, r)
}

// CheckAssign reports whether a value of type src may be stored into dst.
// nullConst is true when the source expression is the integer literal 0.
func CheckAssign(dst, src *CType, nullConst bool) error {
	src = src.Decay()
	switch {
	case dst.IsArray():
		return typeErrorf("cannot assign to array of type %s", dst)
	case dst.IsVoid() || src.IsVoid():
		return typeErrorf("cannot assign %s to %s", src, dst)
	case dst.IsInteger() && src.IsInteger():
		return nil
	case dst.IsPointer() && src.IsPointer() && sameTarget(dst, src):
		return nil
	case dst.IsPointer() && src.IsInteger() && nullConst:
		return nil
	}
	return typeErrorf("cannot assign %s to %s", src, dst)
}

// Deref gives the type of *t.
func Deref(t *CType) (*CType, error) {
	t = t.Decay()
	if !t.IsPointer() {
		return nil, typeErrorf("cannot dereference non-pointer type %s", t)
	}
	if t.Elem.IsVoid() {
		return nil, typeErrorf("cannot dereference void*")
	}
	return t.Elem, nil
}

// AddressOf gives the type of &x for an lvalue x of type t.
func AddressOf(t *CType) *CType {
	return PointerTo(t)
}
