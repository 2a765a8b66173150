package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/si0005hp/jcc-i/pkg/code"
)

// LocalVar describes one argument or local variable of a function.
type LocalVar struct {
	Type  *CType
	Name  string
	IsArg bool
	Slot  int // 1-based, counted separately for arguments and locals
}

// Operand is the frame-relative slot operand for LOADL/STOREL/ADDRL.
// Arguments are addressed with negative slots, locals with positive ones.
func (v *LocalVar) Operand() int64 {
	if v.IsArg {
		return -int64(v.Slot)
	}
	return int64(v.Slot)
}

// FunctionScope tracks the nested variable scopes of one function body
// and the break/continue targets of the loops being generated.
// A fresh FunctionScope is created for every function definition.
type FunctionScope struct {
	// Stack of scopes. frames[0] holds the arguments and is never popped.
	frames []map[string]*LocalVar

	argCount   int
	localCells int // next free local cell is localCells+1

	breaks    []*code.Label
	continues []*code.Label
}

func NewFunctionScope() *FunctionScope {
	return &FunctionScope{frames: []map[string]*LocalVar{make(map[string]*LocalVar)}}
}

// PushScope enters a lexical block.
func (s *FunctionScope) PushScope() {
	s.frames = append(s.frames, make(map[string]*LocalVar))
}

// PopScope leaves the innermost lexical block.
func (s *FunctionScope) PopScope() {
	if len(s.frames) <= 1 {
		panic("PopScope called on the argument scope")
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Depth is the number of active scopes, including the argument scope.
func (s *FunctionScope) Depth() int { return len(s.frames) }

// AddArgument registers a parameter in the argument scope.
func (s *FunctionScope) AddArgument(t *CType, name string) (*LocalVar, error) {
	if _, ok := s.frames[0][name]; ok {
		return nil, fmt.Errorf("%w: parameter %q", ErrDuplicateDeclaration, name)
	}
	s.argCount++
	v := &LocalVar{Type: t, Name: name, IsArg: true, Slot: s.argCount}
	s.frames[0][name] = v
	return v, nil
}

// AddLocal registers a local in the innermost scope. Shadowing a name
// from an outer scope is allowed; redeclaring it in the same scope is not.
func (s *FunctionScope) AddLocal(t *CType, name string) (*LocalVar, error) {
	current := s.frames[len(s.frames)-1]
	if _, ok := current[name]; ok {
		return nil, fmt.Errorf("%w: variable %q", ErrDuplicateDeclaration, name)
	}
	v := &LocalVar{Type: t, Name: name, Slot: s.localCells + 1}
	s.localCells += t.Cells()
	current[name] = v
	return v, nil
}

// Resolve looks name up from the innermost scope outwards.
func (s *FunctionScope) Resolve(name string) (*LocalVar, error) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i][name]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnresolvedName, name)
}

// ArgCount is the number of registered parameters.
func (s *FunctionScope) ArgCount() int { return s.argCount }

// LocalCells is the number of local cells the frame needs.
// Slots are never reused after a scope is popped.
func (s *FunctionScope) LocalCells() int { return s.localCells }

// EnterLoop pushes the targets for break and continue. Calls must be
// paired with ExitLoop.
func (s *FunctionScope) EnterLoop(breakTarget, continueTarget *code.Label) {
	s.breaks = append(s.breaks, breakTarget)
	s.continues = append(s.continues, continueTarget)
}

func (s *FunctionScope) ExitLoop() {
	if len(s.breaks) == 0 {
		panic("ExitLoop called outside a loop")
	}
	s.breaks = s.breaks[:len(s.breaks)-1]
	s.continues = s.continues[:len(s.continues)-1]
}

// BreakTarget returns the exit label of the innermost loop.
func (s *FunctionScope) BreakTarget() (*code.Label, error) {
	if len(s.breaks) == 0 {
		return nil, fmt.Errorf("%w: break outside of a loop", ErrIllegalControlFlow)
	}
	return s.breaks[len(s.breaks)-1], nil
}

// ContinueTarget returns the entry label of the innermost loop.
func (s *FunctionScope) ContinueTarget() (*code.Label, error) {
	if len(s.continues) == 0 {
		return nil, fmt.Errorf("%w: continue outside of a loop", ErrIllegalControlFlow)
	}
	return s.continues[len(s.continues)-1], nil
}

// String returns a deterministically ordered dump of the active scopes.
func (s *FunctionScope) String() string {
	var sb strings.Builder
	for i, scope := range s.frames {
		if i == 0 {
			sb.WriteString("Arguments:\n")
		} else {
			fmt.Fprintf(&sb, "Scope %d:\n", i)
		}
		names := make([]string, 0, len(scope))
		for name := range scope {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := scope[name]
			fmt.Fprintf(&sb, "  %-20s  Slot: %d (Type: %s)\n", name, v.Operand(), v.Type)
		}
	}
	return sb.String()
}
