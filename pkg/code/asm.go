package code

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Assembler reads a listing produced by Program.String back into a Program.
// Jump and call operands may be written as numbers or as function labels.
type Assembler struct {
	labels map[string]int
}

type parsedLine struct {
	lineNo    int
	labels    []string
	address   int // -1 when the line has no address column
	directive string
	mnemonic  string
	operands  []string
}

func NewAssembler() *Assembler {
	return &Assembler{labels: make(map[string]int)}
}

func Assemble(listing string) (*Program, error) {
	return NewAssembler().Assemble(listing)
}

func (a *Assembler) Assemble(listing string) (*Program, error) {
	lines := strings.Split(listing, "\n")
	parsed := make([]parsedLine, 0, len(lines))
	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, p)
	}

	if err := a.pass1(parsed); err != nil {
		return nil, err
	}
	return a.pass2(parsed)
}

// pass1 assigns an address to every label.
func (a *Assembler) pass1(lines []parsedLine) error {
	address := 0
	for _, p := range lines {
		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, p.lineNo)
			}
			a.labels[lbl] = address
		}
		if p.mnemonic != "" {
			address++
		}
	}
	return nil
}

func (a *Assembler) pass2(lines []parsedLine) (*Program, error) {
	prog := &Program{Funcs: make(map[string]int)}
	for name, addr := range a.labels {
		prog.Funcs[name] = addr
	}

	for _, p := range lines {
		switch p.directive {
		case ".ENTRY":
			if len(p.operands) != 1 {
				return nil, fmt.Errorf(".entry expects exactly one operand on line %d", p.lineNo)
			}
			v, err := a.parseOperand(p.operands[0], p.lineNo)
			if err != nil {
				return nil, err
			}
			prog.Entry = int(v)
			continue
		case ".DATA":
			for _, op := range p.operands {
				v, err := strconv.ParseInt(op, 0, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid .data value on line %d: %s", p.lineNo, op)
				}
				prog.Data = append(prog.Data, v)
			}
			continue
		case "":
		default:
			return nil, fmt.Errorf("unknown directive on line %d: %s", p.lineNo, p.directive)
		}

		if p.mnemonic == "" {
			continue
		}
		if p.address >= 0 && p.address != len(prog.Code) {
			return nil, fmt.Errorf("address %04d on line %d does not match position %04d", p.address, p.lineNo, len(prog.Code))
		}

		op, ok := ParseOpcode(p.mnemonic)
		if !ok {
			return nil, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
		}

		in := Instr{Op: op}
		if op.HasOperand() {
			if len(p.operands) != 1 {
				return nil, fmt.Errorf("%s expects 1 operand on line %d", op, p.lineNo)
			}
			v, err := a.parseOperand(p.operands[0], p.lineNo)
			if err != nil {
				return nil, err
			}
			in.Operand = v
		} else if len(p.operands) != 0 {
			return nil, fmt.Errorf("%s expects 0 operands on line %d", op, p.lineNo)
		}
		prog.Code = append(prog.Code, in)
	}

	for addr, in := range prog.Code {
		if in.Op.IsJump() && (in.Operand < 0 || in.Operand >= int64(len(prog.Code))) {
			return nil, fmt.Errorf("%s at %04d targets %d outside the program", in.Op, addr, in.Operand)
		}
	}
	if len(prog.Code) > 0 && (prog.Entry < 0 || prog.Entry >= len(prog.Code)) {
		return nil, fmt.Errorf("entry %d outside the program", prog.Entry)
	}
	return prog, nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo, address: -1}
	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	if strings.HasSuffix(line, ":") {
		lbl := strings.TrimSpace(strings.TrimSuffix(line, ":"))
		if !isIdentifier(lbl) {
			return p, fmt.Errorf("invalid label '%s' on line %d", lbl, lineNo)
		}
		p.labels = append(p.labels, lbl)
		return p, nil
	}

	fields := strings.Fields(line)
	if strings.HasPrefix(fields[0], ".") {
		p.directive = strings.ToUpper(fields[0])
		p.operands = fields[1:]
		return p, nil
	}

	if isNumber(fields[0]) {
		addr, err := strconv.Atoi(fields[0])
		if err != nil {
			return p, fmt.Errorf("invalid address on line %d: %s", lineNo, fields[0])
		}
		p.address = addr
		fields = fields[1:]
		if len(fields) == 0 {
			return p, fmt.Errorf("missing instruction after address on line %d", lineNo)
		}
	}

	p.mnemonic = strings.ToUpper(fields[0])
	p.operands = fields[1:]
	return p, nil
}

func (a *Assembler) parseOperand(token string, lineNo int) (int64, error) {
	if v, err := strconv.ParseInt(token, 0, 64); err == nil {
		return v, nil
	}
	if addr, ok := a.labels[token]; ok {
		return int64(addr), nil
	}
	if isIdentifier(token) {
		return 0, fmt.Errorf("undefined label '%s' on line %d", token, lineNo)
	}
	return 0, fmt.Errorf("invalid operand '%s' on line %d", token, lineNo)
}

func stripComments(line string) string {
	if i := strings.Index(line, ";"); i >= 0 {
		return line[:i]
	}
	return line
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
