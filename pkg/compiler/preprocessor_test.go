package compiler

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

func TestPreprocessDefines(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{
			name: "Simple Define",
			src: `
#define A 10
int x = A;
`,
			expected: `

int x = 10;
`,
		},
		{
			name: "Nested Define",
			src: `
#define OFFSET 10
#define BASE (0x100 + OFFSET)
int y = BASE;
`,
			expected: `


int y = (0x100 + 10);
`,
		},
		{
			name: "String Literal Ignored",
			src: `
#define A 10
char *s = "A";
`,
			expected: `

char *s = "A";
`,
		},
		{
			name: "Word Boundary",
			src: `
#define A 10
int AA = A;
`,
			expected: `

int AA = 10;
`,
		},
		{
			name: "Char Literal Ignored",
			src: `
#define C 65
char c = 'C';
`,
			expected: `

char c = 'C';
`,
		},
		{
			name: "Hex Digits Are Not Names",
			src: `
#define x 1
#define F 2
int v = 0x1F + x;
`,
			expected: `


int v = 0x1F + 1;
`,
		},
		{
			name: "Function-like Macro",
			src: `
#define MAX(a, b) ((a) > (b))
int m = MAX(x + 1, f(y, z));
`,
			expected: `

int m = ((x + 1) > (f(y, z)));
`,
		},
		{
			name: "Arguments Are Substituted Once",
			src: `
#define SWAP(a, b) b - a
int d = SWAP(b, a);
`,
			expected: `

int d = a - b;
`,
		},
		{
			name: "Function-like Name Without Call",
			src: `
#define SQ(x) ((x) * (x))
int SQ = 3;
`,
			expected: `

int SQ = 3;
`,
		},
		{
			name: "Self Reference Terminates",
			src: `
#define loop loop + 1
int v = loop;
`,
			expected: `

int v = loop + 1;
`,
		},
		{
			name: "Undef",
			src: `
#define N 1
int a = N;
#undef N
int b = N;
`,
			expected: `

int a = 1;

int b = N;
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Preprocess(tt.src, nil, ".")
			if err != nil {
				t.Fatalf("Preprocess failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Preprocess() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPreprocessInclude(t *testing.T) {
	fsys := fstest.MapFS{
		"main.c":        {Data: []byte("#include \"lib/math.h\"\nint main() { return square(N); }\n")},
		"lib/math.h":    {Data: []byte("#include \"consts.h\"\nint square(int x) { return x * x; }")},
		"lib/consts.h":  {Data: []byte("#define N 7")},
		"twice.c":       {Data: []byte("#include \"lib/consts.h\"\n#include \"lib/consts.h\"\nint v = N;")},
		"loop_a.h":      {Data: []byte("#include \"loop_b.h\"")},
		"loop_b.h":      {Data: []byte("#include \"loop_a.h\"")},
		"bad_include.c": {Data: []byte("#include <stdio.h>")},
		"app/main.c":    {Data: []byte("#include \"../lib/consts.h\"\nint v = N;")},
	}

	t.Run("Nested Relative Includes", func(t *testing.T) {
		src, _ := fs.ReadFile(fsys, "main.c")
		got, err := Preprocess(string(src), fsys, ".")
		if err != nil {
			t.Fatalf("Preprocess failed: %v", err)
		}
		if !strings.Contains(got, "int square(int x)") {
			t.Errorf("included function missing:\n%s", got)
		}
		if !strings.Contains(got, "return square(7);") {
			t.Errorf("define from nested include not applied:\n%s", got)
		}
	})

	t.Run("Included Once", func(t *testing.T) {
		got, err := Preprocess(string(fsys["twice.c"].Data), fsys, ".")
		if err != nil {
			t.Fatalf("Preprocess failed: %v", err)
		}
		if !strings.Contains(got, "int v = 7;") {
			t.Errorf("unexpected output %q", got)
		}
	})

	t.Run("Circular", func(t *testing.T) {
		_, err := Preprocess(`#include "loop_a.h"`, fsys, ".")
		if err == nil || !strings.Contains(err.Error(), "circular include") {
			t.Errorf("expected a circular include error, got %v", err)
		}
	})

	t.Run("Parent Directory", func(t *testing.T) {
		got, err := Preprocess(string(fsys["app/main.c"].Data), fsys, "app")
		if err != nil {
			t.Fatalf("Preprocess failed: %v", err)
		}
		if !strings.Contains(got, "int v = 7;") {
			t.Errorf("unexpected output %q", got)
		}
		if _, err := Preprocess(`#include "../lib/consts.h"`, fsys, "."); err == nil {
			t.Error("expected an error climbing above the file system root")
		}
	})

	t.Run("Angle Brackets Rejected", func(t *testing.T) {
		if _, err := Preprocess(string(fsys["bad_include.c"].Data), fsys, "."); err == nil {
			t.Error("expected an error for #include <...>")
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := Preprocess(`#include "nope.h"`, fsys, ".")
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("expected fs.ErrNotExist, got %v", err)
		}
	})

	t.Run("No File System", func(t *testing.T) {
		if _, err := Preprocess(`#include "lib/consts.h"`, nil, "."); err == nil {
			t.Error("expected an error without a file system")
		}
	})

	t.Run("Unknown Directive", func(t *testing.T) {
		_, err := Preprocess("int x;\n#pragma once", nil, ".")
		if err == nil || !strings.Contains(err.Error(), "line 2") {
			t.Errorf("expected a line 2 error, got %v", err)
		}
	})
}

func TestCompileFile(t *testing.T) {
	fsys := fstest.MapFS{
		"src/prog.c": {Data: []byte("#include \"util.h\"\nint main() { return twice(LIMIT); }\n")},
		"src/util.h": {Data: []byte("int twice(int x) { return x + x; }")},
	}
	prog, err := CompileFile(fsys, "src/prog.c", map[string]string{"LIMIT": "21"})
	if err != nil {
		t.Fatalf("CompileFile failed: %v", err)
	}
	if _, ok := prog.Funcs["twice"]; !ok {
		t.Errorf("expected the included function in the program, got %v", prog.Funcs)
	}

	_, err = CompileFile(fsys, "src/prog.c", nil)
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageCodegen || !errors.Is(err, ErrUnresolvedName) {
		t.Errorf("undefined LIMIT should fail in codegen, got %v", err)
	}
}
