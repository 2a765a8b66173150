package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/si0005hp/jcc-i/pkg/code"
	"github.com/si0005hp/jcc-i/pkg/compiler"
	"github.com/si0005hp/jcc-i/pkg/utils"
	"github.com/si0005hp/jcc-i/pkg/vm"
)

// defineFlags collects repeated -D NAME[=VALUE] options.
type defineFlags map[string]string

func (d defineFlags) String() string { return fmt.Sprint(map[string]string(d)) }

func (d defineFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		value = "1"
	}
	if name == "" {
		return fmt.Errorf("empty macro name in %q", s)
	}
	d[name] = value
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: jcc [-S] [-o out%s] [-run] [-D NAME=VALUE] file.c\n", utils.ObjectExt)
	fmt.Fprintf(os.Stderr, "       jcc [-S] -run prog%s\n", utils.ObjectExt)
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("jcc: ")

	showAsm := flag.Bool("S", false, "print the instruction listing")
	outPath := flag.String("o", "", "write the encoded program to `file`")
	run := flag.Bool("run", false, "execute the program on the reference VM")
	maxSteps := flag.Int("max-steps", vm.DefaultMaxSteps, "abort execution after `n` instructions")
	defines := defineFlags{}
	flag.Var(defines, "D", "predefine a macro (repeatable)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	var prog *code.Program
	if utils.IsObjectFile(input) {
		f, err := os.Open(input)
		if err != nil {
			log.Fatalf("Failed to open object file: %v", err)
		}
		prog, err = code.Decode(f)
		f.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, "load error:", err)
			os.Exit(1)
		}
	} else {
		fsys, name, err := utils.SourceFS(input)
		if err != nil {
			log.Fatalf("Failed to resolve source file: %v", err)
		}
		prog, err = compiler.CompileFile(fsys, name, defines)
		if err != nil {
			// StageError already names the stage ("parse error: ...").
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if *outPath == "" && !*showAsm && !*run {
			*outPath = utils.ObjectPath(input)
		}
	}

	if *showAsm {
		fmt.Print(prog)
	}

	if *outPath != "" {
		if err := writeObject(*outPath, prog); err != nil {
			log.Fatalf("Failed to write %s: %v", *outPath, err)
		}
	}

	if *run {
		result, err := vm.Run(prog, vm.Options{Output: os.Stdout, MaxSteps: *maxSteps})
		if err != nil {
			fmt.Fprintln(os.Stderr, "run error:", err)
			os.Exit(1)
		}
		os.Exit(int(uint8(result)))
	}
}

func writeObject(path string, prog *code.Program) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := prog.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
