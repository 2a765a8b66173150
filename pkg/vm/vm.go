// Package vm is a reference execution engine for jcc instruction streams.
//
// Memory is a flat slice of 64-bit cells. The program's data image sits at
// the bottom (cell 0 is the null address) and activation frames are
// appended above it: a frame holds its arguments followed by the locals
// reserved by ENTRY. The operand stack is separate from memory.
package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/si0005hp/jcc-i/pkg/code"
)

var ErrRuntime = errors.New("runtime error")

const (
	DefaultMaxSteps     = 10_000_000
	DefaultMaxCallDepth = 10_000
)

// Options configures a VM. Zero values select the defaults.
type Options struct {
	// Output is where PRINTF writes. If nil, os.Stdout is used.
	Output       io.Writer
	MaxSteps     int
	MaxCallDepth int
}

type frame struct {
	base  int // memory index of argument 1
	nargs int
	retPC int
}

type VM struct {
	prog *code.Program
	opts Options

	PC     int
	Stack  []int64
	Memory []int64
	Steps  int

	frames  []frame
	pending []int64 // arguments staged by FRAME for the next CALL

	Halted bool
	Result int64
}

// New prepares prog for execution starting at its entry function.
func New(prog *code.Program, opts Options) *VM {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = DefaultMaxCallDepth
	}
	mem := make([]int64, len(prog.Data))
	copy(mem, prog.Data)
	if len(mem) == 0 {
		mem = append(mem, 0)
	}
	m := &VM{prog: prog, opts: opts, Memory: mem, PC: prog.Entry}
	// The entry function runs as if called with no arguments.
	m.frames = append(m.frames, frame{base: len(m.Memory), retPC: -1})
	return m
}

// Run executes prog to completion and returns the entry function's result.
func Run(prog *code.Program, opts Options) (int64, error) {
	return New(prog, opts).Run()
}

func (m *VM) Run() (int64, error) {
	for !m.Halted {
		if err := m.Step(); err != nil {
			return 0, err
		}
	}
	return m.Result, nil
}

func (m *VM) outputSink() io.Writer {
	if m.opts.Output != nil {
		return m.opts.Output
	}
	return os.Stdout
}

func (m *VM) fault(format string, args ...any) error {
	m.Halted = true
	return fmt.Errorf("%w at %04d: %s", ErrRuntime, m.PC, fmt.Sprintf(format, args...))
}

func (m *VM) push(v int64) { m.Stack = append(m.Stack, v) }

func (m *VM) pop() (int64, error) {
	if len(m.Stack) == 0 {
		return 0, m.fault("operand stack underflow")
	}
	v := m.Stack[len(m.Stack)-1]
	m.Stack = m.Stack[:len(m.Stack)-1]
	return v, nil
}

func (m *VM) pop2() (a, b int64, err error) {
	if b, err = m.pop(); err != nil {
		return
	}
	a, err = m.pop()
	return
}

// slotAddr maps a frame-relative slot to a memory index.
// Negative slots are arguments, positive slots are locals.
func (m *VM) slotAddr(slot int64) (int, error) {
	f := m.frames[len(m.frames)-1]
	switch {
	case slot < 0 && -slot <= int64(f.nargs):
		return f.base + int(-slot) - 1, nil
	case slot > 0:
		addr := f.base + f.nargs + int(slot) - 1
		if addr < len(m.Memory) {
			return addr, nil
		}
	}
	return 0, m.fault("bad slot %d", slot)
}

func (m *VM) checkAddr(addr int64) error {
	if addr == 0 {
		return m.fault("null pointer dereference")
	}
	if addr < 0 || addr >= int64(len(m.Memory)) {
		return m.fault("address %d out of bounds", addr)
	}
	return nil
}

// ReadString reads a NUL-terminated string starting at addr.
func (m *VM) ReadString(addr int64) (string, error) {
	var sb strings.Builder
	for {
		if err := m.checkAddr(addr); err != nil {
			return "", err
		}
		c := m.Memory[addr]
		if c == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(byte(c))
		addr++
	}
}

// Step executes one instruction.
func (m *VM) Step() error {
	if m.Halted {
		return nil
	}
	if m.PC < 0 || m.PC >= len(m.prog.Code) {
		return m.fault("pc out of range")
	}
	m.Steps++
	if m.Steps > m.opts.MaxSteps {
		return m.fault("step limit %d exceeded", m.opts.MaxSteps)
	}

	in := m.prog.Code[m.PC]
	m.PC++

	switch in.Op {
	case code.OpPUSH:
		m.push(in.Operand)

	case code.OpPOPR:
		if _, err := m.pop(); err != nil {
			return err
		}

	case code.OpADD, code.OpSUB, code.OpMUL, code.OpDIV, code.OpMOD,
		code.OpEQ, code.OpNE, code.OpLT, code.OpLE, code.OpGT, code.OpGE,
		code.OpDIVU, code.OpMODU, code.OpLTU, code.OpLEU, code.OpGTU, code.OpGEU:
		a, b, err := m.pop2()
		if err != nil {
			return err
		}
		r, err := m.alu(in.Op, a, b)
		if err != nil {
			return err
		}
		m.push(r)

	case code.OpSEXT, code.OpZEXT:
		if in.Operand < 1 || in.Operand > 8 {
			return m.fault("%s with width %d", in.Op, in.Operand)
		}
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.push(extend(v, int(in.Operand), in.Op == code.OpSEXT))

	case code.OpLOADL:
		addr, err := m.slotAddr(in.Operand)
		if err != nil {
			return err
		}
		m.push(m.Memory[addr])

	case code.OpSTOREL:
		addr, err := m.slotAddr(in.Operand)
		if err != nil {
			return err
		}
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.Memory[addr] = v

	case code.OpADDRL:
		addr, err := m.slotAddr(in.Operand)
		if err != nil {
			return err
		}
		m.push(int64(addr))

	case code.OpLOAD:
		addr, err := m.pop()
		if err != nil {
			return err
		}
		if err := m.checkAddr(addr); err != nil {
			return err
		}
		m.push(m.Memory[addr])

	case code.OpSTORE:
		addr, v, err := m.pop2()
		if err != nil {
			return err
		}
		if err := m.checkAddr(addr); err != nil {
			return err
		}
		m.Memory[addr] = v

	case code.OpJMP:
		m.PC = int(in.Operand)

	case code.OpJZ:
		v, err := m.pop()
		if err != nil {
			return err
		}
		if v == 0 {
			m.PC = int(in.Operand)
		}

	case code.OpFRAME:
		n := int(in.Operand)
		if n < 0 || n > len(m.Stack) {
			return m.fault("FRAME %d with %d values on the stack", n, len(m.Stack))
		}
		m.pending = append([]int64(nil), m.Stack[len(m.Stack)-n:]...)
		m.Stack = m.Stack[:len(m.Stack)-n]

	case code.OpCALL:
		if len(m.frames) >= m.opts.MaxCallDepth {
			return m.fault("call depth %d exceeded", m.opts.MaxCallDepth)
		}
		m.frames = append(m.frames, frame{base: len(m.Memory), nargs: len(m.pending), retPC: m.PC})
		m.Memory = append(m.Memory, m.pending...)
		m.pending = nil
		m.PC = int(in.Operand)

	case code.OpENTRY:
		if in.Operand < 0 {
			return m.fault("ENTRY with negative frame size %d", in.Operand)
		}
		m.Memory = append(m.Memory, make([]int64, in.Operand)...)

	case code.OpRET:
		v, err := m.pop()
		if err != nil {
			return err
		}
		f := m.frames[len(m.frames)-1]
		m.frames = m.frames[:len(m.frames)-1]
		m.Memory = m.Memory[:f.base]
		if len(m.frames) == 0 {
			m.Halted = true
			m.Result = v
			return nil
		}
		m.PC = f.retPC
		m.push(v)

	case code.OpPRINTF:
		n := int(in.Operand)
		if n < 1 || n > len(m.Stack) {
			return m.fault("PRINTF %d with %d values on the stack", n, len(m.Stack))
		}
		args := append([]int64(nil), m.Stack[len(m.Stack)-n:]...)
		m.Stack = m.Stack[:len(m.Stack)-n]
		out, err := m.format(args[0], args[1:])
		if err != nil {
			return err
		}
		if _, err := io.WriteString(m.outputSink(), out); err != nil {
			return m.fault("write: %v", err)
		}

	default:
		return m.fault("illegal opcode %s", in.Op)
	}
	return nil
}

func (m *VM) alu(op code.Opcode, a, b int64) (int64, error) {
	switch op {
	case code.OpADD:
		return a + b, nil
	case code.OpSUB:
		return a - b, nil
	case code.OpMUL:
		return a * b, nil
	case code.OpDIV:
		if b == 0 {
			return 0, m.fault("division by zero")
		}
		return a / b, nil
	case code.OpMOD:
		if b == 0 {
			return 0, m.fault("division by zero")
		}
		return a % b, nil
	case code.OpDIVU:
		if b == 0 {
			return 0, m.fault("division by zero")
		}
		return int64(uint64(a) / uint64(b)), nil
	case code.OpMODU:
		if b == 0 {
			return 0, m.fault("division by zero")
		}
		return int64(uint64(a) % uint64(b)), nil
	case code.OpLTU:
		return b2i(uint64(a) < uint64(b)), nil
	case code.OpLEU:
		return b2i(uint64(a) <= uint64(b)), nil
	case code.OpGTU:
		return b2i(uint64(a) > uint64(b)), nil
	case code.OpGEU:
		return b2i(uint64(a) >= uint64(b)), nil
	case code.OpEQ:
		return b2i(a == b), nil
	case code.OpNE:
		return b2i(a != b), nil
	case code.OpLT:
		return b2i(a < b), nil
	case code.OpLE:
		return b2i(a <= b), nil
	case code.OpGT:
		return b2i(a > b), nil
	case code.OpGE:
		return b2i(a >= b), nil
	}
	return 0, m.fault("not an ALU opcode: %s", op)
}

// extend keeps the low width bytes of v and refills the upper bits with
// copies of the top kept bit (signed) or zeros.
func extend(v int64, width int, signed bool) int64 {
	shift := uint(64 - 8*width)
	if signed {
		return v << shift >> shift
	}
	return int64(uint64(v) << shift >> shift)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// format expands printf-style verbs: %d %u %x %c %s %%.
func (m *VM) format(fmtAddr int64, args []int64) (string, error) {
	f, err := m.ReadString(fmtAddr)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	next := 0
	arg := func() (int64, error) {
		if next >= len(args) {
			return 0, m.fault("printf: missing argument for verb %d", next+1)
		}
		v := args[next]
		next++
		return v, nil
	}
	for i := 0; i < len(f); i++ {
		if f[i] != '%' || i+1 >= len(f) {
			sb.WriteByte(f[i])
			continue
		}
		i++
		if f[i] == '%' {
			sb.WriteByte('%')
			continue
		}
		v, err := arg()
		if err != nil {
			return "", err
		}
		switch f[i] {
		case 'd':
			sb.WriteString(strconv.FormatInt(v, 10))
		case 'u':
			sb.WriteString(strconv.FormatUint(uint64(v), 10))
		case 'x':
			sb.WriteString(strconv.FormatUint(uint64(v), 16))
		case 'c':
			sb.WriteByte(byte(v))
		case 's':
			s, err := m.ReadString(v)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
		default:
			return "", m.fault("printf: unknown verb %%%c", f[i])
		}
	}
	return sb.String(), nil
}
