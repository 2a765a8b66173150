package code

import (
	"errors"
	"fmt"
	"sort"
)

// Placeholder is the operand carried by an instruction whose target is not known yet.
const Placeholder int64 = -1

var (
	ErrBadPatch   = errors.New("bad patch")
	ErrUnpatched  = errors.New("unpatched placeholder")
	ErrLabelBound = errors.New("label already bound")
	ErrJumpRange  = errors.New("jump target outside the stream")
)

// Instr is one opcode plus its optional operand.
type Instr struct {
	Op      Opcode
	Operand int64
}

func (in Instr) String() string {
	if in.Op.HasOperand() {
		return fmt.Sprintf("%-6s %d", in.Op, in.Operand)
	}
	return in.Op.String()
}

// Stream is an append-only, address-indexed instruction sequence.
// The only mutation allowed after emission is Patch, and only on
// instructions that were emitted as placeholders.
type Stream struct {
	instrs  []Instr
	pending map[int]bool
}

func NewStream() *Stream {
	return &Stream{pending: make(map[int]bool)}
}

// Len returns the address the next instruction will get.
func (s *Stream) Len() int { return len(s.instrs) }

// Emit appends an instruction without an operand and returns its address.
func (s *Stream) Emit(op Opcode) int {
	return s.EmitArg(op, 0)
}

// EmitArg appends op with the given operand and returns its address.
func (s *Stream) EmitArg(op Opcode, operand int64) int {
	s.instrs = append(s.instrs, Instr{Op: op, Operand: operand})
	return len(s.instrs) - 1
}

// EmitPlaceholder appends op with a Placeholder operand. The returned
// address must be patched exactly once before the stream is finished.
func (s *Stream) EmitPlaceholder(op Opcode) int {
	addr := s.EmitArg(op, Placeholder)
	s.pending[addr] = true
	return addr
}

// Patch overwrites the operand of a placeholder instruction. A jump may
// target Len(), the next instruction to be emitted; Finish rejects it if
// nothing was emitted there.
func (s *Stream) Patch(addr int, operand int64) error {
	if !s.pending[addr] {
		return fmt.Errorf("%w: address %d is not an open placeholder", ErrBadPatch, addr)
	}
	if s.instrs[addr].Op.IsJump() && (operand < 0 || operand > int64(len(s.instrs))) {
		return fmt.Errorf("%w: target %d out of range for %s at %d", ErrBadPatch, operand, s.instrs[addr].Op, addr)
	}
	s.instrs[addr].Operand = operand
	delete(s.pending, addr)
	return nil
}

// Pending returns the addresses of placeholders that have not been patched, in order.
func (s *Stream) Pending() []int {
	addrs := make([]int, 0, len(s.pending))
	for a := range s.pending {
		addrs = append(addrs, a)
	}
	sort.Ints(addrs)
	return addrs
}

// Finish checks that every placeholder was patched and that every jump
// lands on an instruction, then returns a copy of the instructions.
func (s *Stream) Finish() ([]Instr, error) {
	if open := s.Pending(); len(open) > 0 {
		return nil, fmt.Errorf("%w at %v", ErrUnpatched, open)
	}
	for addr, in := range s.instrs {
		if in.Op.IsJump() && (in.Operand < 0 || in.Operand >= int64(len(s.instrs))) {
			return nil, fmt.Errorf("%w: %s at %d targets %d", ErrJumpRange, in.Op, addr, in.Operand)
		}
	}
	return s.Instrs(), nil
}

// At returns the instruction at addr.
func (s *Stream) At(addr int) Instr { return s.instrs[addr] }

// Instrs returns a copy of the emitted instructions.
func (s *Stream) Instrs() []Instr {
	out := make([]Instr, len(s.instrs))
	copy(out, s.instrs)
	return out
}

// Label is a jump target that may be referenced before its address is known.
type Label struct {
	addr  int
	bound bool
	refs  []int
}

// NewLabel returns an unbound label.
func NewLabel() *Label { return &Label{} }

// Bound reports whether the label has an address yet.
func (l *Label) Bound() bool { return l.bound }

// Addr returns the bound address, or -1.
func (l *Label) Addr() int {
	if !l.bound {
		return -1
	}
	return l.addr
}

// Here returns a label bound to the next instruction address.
func (s *Stream) Here() *Label {
	return &Label{addr: s.Len(), bound: true}
}

// Jump emits op targeting l. Unbound labels get a placeholder that Bind patches.
func (s *Stream) Jump(op Opcode, l *Label) int {
	if l.bound {
		return s.EmitArg(op, int64(l.addr))
	}
	addr := s.EmitPlaceholder(op)
	l.refs = append(l.refs, addr)
	return addr
}

// Bind binds l to the next instruction address and patches every pending reference.
func (s *Stream) Bind(l *Label) error {
	if l.bound {
		return fmt.Errorf("%w at %d", ErrLabelBound, l.addr)
	}
	l.addr, l.bound = s.Len(), true
	for _, ref := range l.refs {
		if err := s.Patch(ref, int64(l.addr)); err != nil {
			return err
		}
	}
	l.refs = nil
	return nil
}
