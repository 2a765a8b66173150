package compiler

import (
	"errors"
	"fmt"
)

// Compile-time error kinds. Every error returned by Generate wraps exactly
// one of these, so callers can test with errors.Is.
var (
	ErrDuplicateDeclaration = errors.New("duplicate declaration")
	ErrDuplicateFunction    = fmt.Errorf("%w of function", ErrDuplicateDeclaration)
	ErrUnresolvedName       = errors.New("unresolved name")
	ErrUnresolvedFunction   = errors.New("unresolved function")
	ErrType                 = errors.New("type error")
	ErrArity                = errors.New("arity mismatch")
	ErrIllegalControlFlow   = errors.New("illegal control flow")
)

func typeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrType, fmt.Sprintf(format, args...))
}
