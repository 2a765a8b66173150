package compiler

import (
	"fmt"
	"io/fs"
	"path"

	"github.com/si0005hp/jcc-i/pkg/code"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageLex        Stage = "lex"
	StageParse      Stage = "parse"
	StageCodegen    Stage = "codegen"
)

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s error: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Compile runs Preprocess -> Lex -> Parse -> Generate on a single source text.
// #include directives are rejected; use CompileFile for sources with includes.
func Compile(src string) (*code.Program, error) {
	return compile(NewPreprocessor(nil), src, ".")
}

// CompileFile compiles the file name read from fsys. Includes resolve
// relative to the including file inside fsys.
func CompileFile(fsys fs.FS, name string, defines map[string]string) (*code.Program, error) {
	src, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	pp := NewPreprocessor(fsys)
	for k, v := range defines {
		pp.Define(k, v)
	}
	return compile(pp, string(src), path.Dir(name))
}

func compile(pp *Preprocessor, src, dir string) (*code.Program, error) {
	src, err := pp.Run(src, dir)
	if err != nil {
		return nil, &StageError{StagePreprocess, err}
	}

	tokens, err := Lex(src)
	if err != nil {
		return nil, &StageError{StageLex, err}
	}

	funcs, err := Parse(tokens, src)
	if err != nil {
		return nil, &StageError{StageParse, err}
	}

	prog, err := Generate(funcs)
	if err != nil {
		return nil, &StageError{StageCodegen, err}
	}
	return prog, nil
}
