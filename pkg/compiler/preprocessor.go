package compiler

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Macro is a #define'd name. Params is nil for object-like macros.
type Macro struct {
	Params []string
	Body   string
}

// Preprocessor expands #define, #undef and #include "file" directives.
// Included files are read from fsys, relative to the including file. A
// name may use ".." but cannot climb above the root of fsys.
// #define and #undef lines become empty lines so that line numbers of a
// file without includes are preserved for later error messages.
type Preprocessor struct {
	fsys    fs.FS
	defines map[string]Macro
	stack   map[string]bool // files on the current include chain
	done    map[string]bool // files already included once
}

func NewPreprocessor(fsys fs.FS) *Preprocessor {
	return &Preprocessor{
		fsys:    fsys,
		defines: make(map[string]Macro),
		stack:   make(map[string]bool),
		done:    make(map[string]bool),
	}
}

// Preprocess runs a fresh Preprocessor over src. dir is the directory of
// src inside fsys; fsys may be nil when src has no includes.
func Preprocess(src string, fsys fs.FS, dir string) (string, error) {
	return NewPreprocessor(fsys).Run(src, dir)
}

// Define adds an object-like macro, like -D on a C compiler command line.
func (pp *Preprocessor) Define(name, body string) {
	pp.defines[name] = Macro{Body: body}
}

// Run preprocesses src, whose includes resolve against dir.
func (pp *Preprocessor) Run(src, dir string) (string, error) {
	var out strings.Builder
	for i, line := range strings.Split(src, "\n") {
		if i > 0 {
			out.WriteByte('\n')
		}
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			out.WriteString(pp.expand(line, nil))
			continue
		}

		directive, rest, _ := strings.Cut(strings.TrimSpace(trimmed[1:]), " ")
		rest = strings.TrimSpace(rest)
		var err error
		switch directive {
		case "define":
			err = pp.define(rest)
		case "undef":
			delete(pp.defines, rest)
		case "include":
			var text string
			text, err = pp.include(rest, dir)
			out.WriteString(text)
		default:
			err = fmt.Errorf("unknown directive #%s", directive)
		}
		if err != nil {
			return "", fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return out.String(), nil
}

// define parses "NAME body" or "NAME(a, b) body".
func (pp *Preprocessor) define(rest string) error {
	end := 0
	for end < len(rest) && isIdentPart(rune(rest[end])) {
		end++
	}
	if end == 0 || !isIdentStart(rune(rest[0])) {
		return fmt.Errorf("#define needs a macro name, got %q", rest)
	}
	name, rest := rest[:end], rest[end:]

	var m Macro
	// A '(' directly after the name makes a function-like macro.
	if strings.HasPrefix(rest, "(") {
		closing := strings.IndexByte(rest, ')')
		if closing < 0 {
			return fmt.Errorf("unterminated parameter list for macro %s", name)
		}
		m.Params = []string{}
		if params := strings.TrimSpace(rest[1:closing]); params != "" {
			for _, p := range strings.Split(params, ",") {
				m.Params = append(m.Params, strings.TrimSpace(p))
			}
		}
		rest = rest[closing+1:]
	}
	m.Body = strings.TrimSpace(rest)
	pp.defines[name] = m
	return nil
}

func (pp *Preprocessor) include(rest, dir string) (string, error) {
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return "", fmt.Errorf("#include expects a quoted file name, got %s", rest)
	}
	if pp.fsys == nil {
		return "", fmt.Errorf("#include %s: no include file system", rest)
	}
	name := path.Join(dir, rest[1:len(rest)-1])
	if pp.stack[name] {
		return "", fmt.Errorf("circular include of %s", name)
	}
	if pp.done[name] {
		return "", nil
	}

	data, err := fs.ReadFile(pp.fsys, name)
	if err != nil {
		return "", fmt.Errorf("#include: %w", err)
	}
	pp.done[name] = true
	pp.stack[name] = true
	defer delete(pp.stack, name)

	text, err := pp.Run(string(data), path.Dir(name))
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	// Lines after the directive shift by the included line count.
	return text, nil
}

// expand substitutes macros in input outside of string and char literals.
// Names in active are being expanded already and are left alone, so a
// macro that mentions itself terminates.
func (pp *Preprocessor) expand(input string, active map[string]bool) string {
	if len(pp.defines) == 0 {
		return input
	}
	var sb strings.Builder
	n := len(input)
	for i := 0; i < n; {
		c := input[i]
		switch {
		case c == '"' || c == '\'':
			j := skipQuoted(input, i)
			sb.WriteString(input[i:j])
			i = j

		case isIdentStart(rune(c)):
			start := i
			for i < n && isIdentPart(rune(input[i])) {
				i++
			}
			word := input[start:i]
			m, ok := pp.defines[word]
			if !ok || active[word] {
				sb.WriteString(word)
				continue
			}
			body := m.Body
			if m.Params != nil {
				args, next, ok := splitMacroArgs(input, i)
				if !ok || len(args) != len(m.Params) {
					sb.WriteString(word)
					continue
				}
				i = next
				body = substituteParams(body, m.Params, args)
			}
			sb.WriteString(pp.expand(body, withName(active, word)))

		case c >= '0' && c <= '9':
			// Number suffixes such as the x in 0x1F are not identifiers.
			start := i
			for i < n && isIdentPart(rune(input[i])) {
				i++
			}
			sb.WriteString(input[start:i])

		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

func withName(active map[string]bool, name string) map[string]bool {
	next := make(map[string]bool, len(active)+1)
	for k := range active {
		next[k] = true
	}
	next[name] = true
	return next
}

// skipQuoted returns the index just past the literal opened at input[i].
func skipQuoted(input string, i int) int {
	quote := input[i]
	for i++; i < len(input); i++ {
		switch input[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		}
	}
	return len(input)
}

// splitMacroArgs reads "(a, f(b, c))" starting at or after i.
func splitMacroArgs(input string, i int) (args []string, next int, ok bool) {
	for i < len(input) && (input[i] == ' ' || input[i] == '\t') {
		i++
	}
	if i >= len(input) || input[i] != '(' {
		return nil, 0, false
	}
	depth, start := 0, i+1
	for ; i < len(input); i++ {
		switch input[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				arg := strings.TrimSpace(input[start:i])
				if arg != "" || len(args) > 0 {
					args = append(args, arg)
				}
				return args, i + 1, true
			}
		case ',':
			if depth == 1 {
				args = append(args, strings.TrimSpace(input[start:i]))
				start = i + 1
			}
		}
	}
	return nil, 0, false
}

// substituteParams replaces parameter names in body in a single pass, so an
// argument's text is never re-substituted by a later parameter.
func substituteParams(body string, params, args []string) string {
	byName := make(map[string]string, len(params))
	for k, p := range params {
		byName[p] = args[k]
	}
	var sb strings.Builder
	for i := 0; i < len(body); {
		c := body[i]
		switch {
		case c == '"' || c == '\'':
			j := skipQuoted(body, i)
			sb.WriteString(body[i:j])
			i = j
		case isIdentStart(rune(c)):
			start := i
			for i < len(body) && isIdentPart(rune(body[i])) {
				i++
			}
			word := body[start:i]
			if arg, ok := byName[word]; ok {
				sb.WriteString(arg)
			} else {
				sb.WriteString(word)
			}
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

func isIdentStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
