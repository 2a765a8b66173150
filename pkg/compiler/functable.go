package compiler

import (
	"fmt"
	"sort"

	"github.com/si0005hp/jcc-i/pkg/code"
)

// FuncDef is a registered function signature. Entry is -1 until the
// function's ENTRY instruction has been emitted.
type FuncDef struct {
	ReturnType *CType
	Name       string
	Params     []Param
	Entry      int
}

// FuncTable maps function names to signatures and entry addresses.
// Calls to functions whose entry is not known yet are emitted as
// placeholders and patched by Define.
type FuncTable struct {
	funcs  map[string]*FuncDef
	fixups map[string][]int
}

func NewFuncTable() *FuncTable {
	return &FuncTable{
		funcs:  make(map[string]*FuncDef),
		fixups: make(map[string][]int),
	}
}

// Register adds a signature for decl.
func (t *FuncTable) Register(decl *FunctionDecl) (*FuncDef, error) {
	if _, ok := t.funcs[decl.Name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateFunction, decl.Name)
	}
	def := &FuncDef{ReturnType: decl.ReturnType, Name: decl.Name, Params: decl.Params, Entry: -1}
	t.funcs[decl.Name] = def
	return def, nil
}

// Lookup resolves a call of name with argc arguments.
func (t *FuncTable) Lookup(name string, argc int) (*FuncDef, error) {
	def, ok := t.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedFunction, name)
	}
	if len(def.Params) != argc {
		return nil, fmt.Errorf("%w: %s expects %d arguments, got %d", ErrArity, name, len(def.Params), argc)
	}
	return def, nil
}

// EmitCall appends a CALL to def, deferring the target if def has no entry yet.
func (t *FuncTable) EmitCall(s *code.Stream, def *FuncDef) int {
	if def.Entry >= 0 {
		return s.EmitArg(code.OpCALL, int64(def.Entry))
	}
	addr := s.EmitPlaceholder(code.OpCALL)
	t.fixups[def.Name] = append(t.fixups[def.Name], addr)
	return addr
}

// Define records name's entry address and patches the calls emitted before it.
func (t *FuncTable) Define(s *code.Stream, name string, entry int) error {
	def, ok := t.funcs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnresolvedFunction, name)
	}
	if def.Entry >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateFunction, name)
	}
	def.Entry = entry
	for _, addr := range t.fixups[name] {
		if err := s.Patch(addr, int64(entry)); err != nil {
			return err
		}
	}
	delete(t.fixups, name)
	return nil
}

// Unresolved lists functions that are still referenced by unpatched calls.
func (t *FuncTable) Unresolved() []string {
	names := make([]string, 0, len(t.fixups))
	for name := range t.fixups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries maps every defined function to its entry address.
func (t *FuncTable) Entries() map[string]int {
	out := make(map[string]int, len(t.funcs))
	for name, def := range t.funcs {
		if def.Entry >= 0 {
			out[name] = def.Entry
		}
	}
	return out
}
