package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/si0005hp/jcc-i/pkg/code"
)

// asm builds a program whose entry is address 0.
func asm(instrs ...code.Instr) *code.Program {
	return &code.Program{Code: instrs, Data: []int64{0}, Funcs: map[string]int{"main": 0}}
}

func op(o code.Opcode) code.Instr { return code.Instr{Op: o} }
func arg(o code.Opcode, v int64) code.Instr { return code.Instr{Op: o, Operand: v} }
func runProg(p *code.Program) (int64, error) { return Run(p, Options{Output: &bytes.Buffer{}}) }

// withStrings appends NUL-terminated strings to the data image and returns their addresses.
func withStrings(p *code.Program, strs ...string) []int64 {
	var addrs []int64
	for _, s := range strs {
		addrs = append(addrs, int64(len(p.Data)))
		for i := 0; i < len(s); i++ {
			p.Data = append(p.Data, int64(s[i]))
		}
		p.Data = append(p.Data, 0)
	}
	return addrs
}

func TestVM_ALU(t *testing.T) {
	tests := []struct {
		op   code.Opcode
		a, b int64
		want int64
	}{
		{code.OpADD, 2, 3, 5},
		{code.OpSUB, 2, 3, -1},
		{code.OpMUL, -4, 3, -12},
		{code.OpDIV, 7, 2, 3},
		{code.OpDIV, -7, 2, -3},
		{code.OpMOD, 7, 3, 1},
		{code.OpMOD, -7, 3, -1},
		{code.OpEQ, 4, 4, 1},
		{code.OpNE, 4, 4, 0},
		{code.OpLT, 1, 2, 1},
		{code.OpLE, 2, 2, 1},
		{code.OpGT, 1, 2, 0},
		{code.OpGE, 3, 2, 1},
		{code.OpDIVU, -2, 2, 1<<63 - 1},
		{code.OpMODU, -1, 10, 5},
		{code.OpLTU, 1, -1, 1},
		{code.OpLEU, -1, -1, 1},
		{code.OpGTU, -1, 5, 1},
		{code.OpGEU, 5, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			p := asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, tt.a), arg(code.OpPUSH, tt.b), op(tt.op), op(code.OpRET))
			got, err := runProg(p)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("%d %s %d = %d, want %d", tt.a, tt.op, tt.b, got, tt.want)
			}
		})
	}
}

func TestVM_Extend(t *testing.T) {
	tests := []struct {
		op    code.Opcode
		width int64
		in    int64
		want  int64
	}{
		{code.OpZEXT, 1, 256, 0},
		{code.OpZEXT, 1, -1, 255},
		{code.OpSEXT, 1, 255, -1},
		{code.OpSEXT, 1, 127, 127},
		{code.OpZEXT, 2, 70000, 4464},
		{code.OpSEXT, 2, 40000, -25536},
		{code.OpZEXT, 4, -1, 4294967295},
		{code.OpSEXT, 4, 2147483648, -2147483648},
		{code.OpZEXT, 8, -1, -1},
	}
	for _, tt := range tests {
		p := asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, tt.in), arg(tt.op, tt.width), op(code.OpRET))
		got, err := runProg(p)
		if err != nil {
			t.Fatalf("%s %d of %d: %v", tt.op, tt.width, tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%s %d of %d = %d, want %d", tt.op, tt.width, tt.in, got, tt.want)
		}
	}

	bad := asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, 1), arg(code.OpZEXT, 0), op(code.OpRET))
	if _, err := runProg(bad); !errors.Is(err, ErrRuntime) {
		t.Errorf("zero width: expected ErrRuntime, got %v", err)
	}
}

func TestVM_LocalsAndHalt(t *testing.T) {
	p := asm(
		arg(code.OpENTRY, 1),
		arg(code.OpPUSH, 6),
		arg(code.OpPUSH, 7),
		op(code.OpMUL),
		arg(code.OpSTOREL, 1),
		arg(code.OpLOADL, 1),
		op(code.OpRET),
	)
	m := New(p, Options{})
	got, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
	if !m.Halted {
		t.Error("RET from the entry frame should halt")
	}
	if len(m.Memory) != len(p.Data) {
		t.Errorf("frame memory not released: %d cells, want %d", len(m.Memory), len(p.Data))
	}
	if m.Steps != len(p.Code) {
		t.Errorf("Steps = %d, want %d", m.Steps, len(p.Code))
	}
	if err := m.Step(); err != nil || m.Steps != len(p.Code) {
		t.Errorf("Step after halt should be a no-op, got %v", err)
	}
}

func TestVM_CallingConvention(t *testing.T) {
	// main: return sub(10, 3)
	// sub:  return a - b
	p := asm(
		arg(code.OpENTRY, 0),
		arg(code.OpPUSH, 10),
		arg(code.OpPUSH, 3),
		arg(code.OpFRAME, 2),
		arg(code.OpCALL, 6),
		op(code.OpRET),
		arg(code.OpENTRY, 1),
		arg(code.OpLOADL, -1),
		arg(code.OpLOADL, -2),
		op(code.OpSUB),
		arg(code.OpSTOREL, 1),
		arg(code.OpLOADL, 1),
		op(code.OpRET),
	)
	got, err := runProg(p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != 7 {
		t.Errorf("result = %d, want 7", got)
	}
}

func TestVM_Memory(t *testing.T) {
	// int x; int *p = &x; *p = 9; return x;
	p := asm(
		arg(code.OpENTRY, 2),
		arg(code.OpADDRL, 1),
		arg(code.OpSTOREL, 2),
		arg(code.OpLOADL, 2),
		arg(code.OpPUSH, 9),
		op(code.OpSTORE),
		arg(code.OpLOADL, 1),
		op(code.OpRET),
	)
	got, err := runProg(p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != 9 {
		t.Errorf("result = %d, want 9", got)
	}
}

func TestVM_Jumps(t *testing.T) {
	// i = 0; while (i < 5) i = i + 1; return i;
	p := asm(
		arg(code.OpENTRY, 1),
		arg(code.OpPUSH, 0),
		arg(code.OpSTOREL, 1),
		arg(code.OpLOADL, 1), // 3
		arg(code.OpPUSH, 5),
		op(code.OpLT),
		arg(code.OpJZ, 12),
		arg(code.OpLOADL, 1),
		arg(code.OpPUSH, 1),
		op(code.OpADD),
		arg(code.OpSTOREL, 1),
		arg(code.OpJMP, 3),
		arg(code.OpLOADL, 1), // 12
		op(code.OpRET),
	)
	got, err := runProg(p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != 5 {
		t.Errorf("result = %d, want 5", got)
	}
}

func TestVM_Printf(t *testing.T) {
	p := asm()
	addrs := withStrings(p, "a=%d u=%u x=%x c=%c s=%s 100%%\n", "hi")
	p.Code = []code.Instr{
		arg(code.OpENTRY, 0),
		arg(code.OpPUSH, addrs[0]),
		arg(code.OpPUSH, -5),
		arg(code.OpPUSH, -1),
		arg(code.OpPUSH, 255),
		arg(code.OpPUSH, 'A'),
		arg(code.OpPUSH, addrs[1]),
		arg(code.OpPRINTF, 6),
		arg(code.OpPUSH, 0),
		op(code.OpRET),
	}
	var out bytes.Buffer
	if _, err := Run(p, Options{Output: &out}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := "a=-5 u=18446744073709551615 x=ff c=A s=hi 100%\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestVM_ReadString(t *testing.T) {
	p := asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, 0), op(code.OpRET))
	addrs := withStrings(p, "jcc", "")
	m := New(p, Options{})
	for i, want := range []string{"jcc", ""} {
		got, err := m.ReadString(addrs[i])
		if err != nil || got != want {
			t.Errorf("ReadString(%d) = %q, %v; want %q", addrs[i], got, err, want)
		}
	}
}

func TestVM_Faults(t *testing.T) {
	fmtProg := asm()
	fmtAddrs := withStrings(fmtProg, "%d %d", "%q")

	tests := []struct {
		name    string
		prog    *code.Program
		opts    Options
		wantMsg string
	}{
		{
			"Division By Zero",
			asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, 1), arg(code.OpPUSH, 0), op(code.OpDIV), op(code.OpRET)),
			Options{}, "division by zero",
		},
		{
			"Modulo By Zero",
			asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, 1), arg(code.OpPUSH, 0), op(code.OpMOD), op(code.OpRET)),
			Options{}, "division by zero",
		},
		{
			"Unsigned Division By Zero",
			asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, 1), arg(code.OpPUSH, 0), op(code.OpDIVU), op(code.OpRET)),
			Options{}, "division by zero",
		},
		{
			"Null Dereference",
			asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, 0), op(code.OpLOAD), op(code.OpRET)),
			Options{}, "null pointer",
		},
		{
			"Null Store",
			asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, 0), arg(code.OpPUSH, 1), op(code.OpSTORE), arg(code.OpPUSH, 0), op(code.OpRET)),
			Options{}, "null pointer",
		},
		{
			"Out Of Bounds",
			asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, 1000), op(code.OpLOAD), op(code.OpRET)),
			Options{}, "out of bounds",
		},
		{
			"Stack Underflow",
			asm(arg(code.OpENTRY, 0), op(code.OpADD), op(code.OpRET)),
			Options{}, "underflow",
		},
		{
			"Bad Slot",
			asm(arg(code.OpENTRY, 0), arg(code.OpLOADL, -1), op(code.OpRET)),
			Options{}, "bad slot",
		},
		{
			"Step Limit",
			asm(arg(code.OpENTRY, 0), arg(code.OpJMP, 1)),
			Options{MaxSteps: 100}, "step limit",
		},
		{
			"Call Depth",
			asm(arg(code.OpENTRY, 0), arg(code.OpFRAME, 0), arg(code.OpCALL, 0), op(code.OpRET)),
			Options{MaxCallDepth: 50}, "call depth",
		},
		{
			"Falls Off The End",
			asm(arg(code.OpENTRY, 0), arg(code.OpPUSH, 1)),
			Options{}, "pc out of range",
		},
		{
			"Printf Missing Argument",
			withCode(fmtProg, arg(code.OpENTRY, 0), arg(code.OpPUSH, fmtAddrs[0]), arg(code.OpPUSH, 1), arg(code.OpPRINTF, 2), arg(code.OpPUSH, 0), op(code.OpRET)),
			Options{}, "missing argument",
		},
		{
			"Printf Unknown Verb",
			withCode(fmtProg, arg(code.OpENTRY, 0), arg(code.OpPUSH, fmtAddrs[1]), arg(code.OpPUSH, 1), arg(code.OpPRINTF, 2), arg(code.OpPUSH, 0), op(code.OpRET)),
			Options{}, "unknown verb",
		},
		{
			"Illegal Opcode",
			asm(arg(code.OpENTRY, 0), op(code.Opcode(200))),
			Options{}, "illegal opcode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Output = &bytes.Buffer{}
			_, err := Run(tt.prog, tt.opts)
			if !errors.Is(err, ErrRuntime) {
				t.Fatalf("expected ErrRuntime, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

// withCode returns a copy of p that shares its data image but runs instrs.
func withCode(p *code.Program, instrs ...code.Instr) *code.Program {
	return &code.Program{Code: instrs, Data: p.Data, Funcs: p.Funcs}
}
