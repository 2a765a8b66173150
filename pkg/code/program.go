package code

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Program is the complete artifact handed to the execution engine.
type Program struct {
	Code  []Instr
	Data  []int64        // initial memory image; cell 0 is the null address
	Entry int            // address of main's ENTRY
	Funcs map[string]int // function name -> entry address
}

const objectMagic = "JCCOBJ"
const objectVersion = 1

var ErrBadObject = errors.New("bad object file")

type objectFile struct {
	Magic   string
	Version int
	Program Program
}

// Encode writes p as a gob object file.
func (p *Program) Encode(w io.Writer) error {
	return gob.NewEncoder(w).Encode(objectFile{Magic: objectMagic, Version: objectVersion, Program: *p})
}

// Decode reads an object file written by Encode.
func Decode(r io.Reader) (*Program, error) {
	var obj objectFile
	if err := gob.NewDecoder(r).Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadObject, err)
	}
	if obj.Magic != objectMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadObject, obj.Magic)
	}
	if obj.Version != objectVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadObject, obj.Version)
	}
	p := obj.Program
	if p.Funcs == nil {
		p.Funcs = make(map[string]int)
	}
	return &p, nil
}

// String renders the program as a listing that Assemble reads back.
func (p *Program) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, ".entry %d\n", p.Entry)
	if len(p.Data) > 0 {
		sb.WriteString(".data")
		for _, v := range p.Data {
			fmt.Fprintf(&sb, " %d", v)
		}
		sb.WriteByte('\n')
	}

	labels := make(map[int][]string)
	for name, addr := range p.Funcs {
		labels[addr] = append(labels[addr], name)
	}
	for _, names := range labels {
		sort.Strings(names)
	}

	for addr, in := range p.Code {
		for _, name := range labels[addr] {
			fmt.Fprintf(&sb, "%s:\n", name)
		}
		fmt.Fprintf(&sb, "%04d  %s\n", addr, in)
	}
	return sb.String()
}
