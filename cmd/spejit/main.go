// Command spejit translates a JSON-encoded managed IR module into a linked
// SPE (Cell BE Synergistic Processing Element) instruction image, packaged
// as a minimal ELF64 object.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"spejit/codegen"
	"spejit/elfimage"
	"spejit/ir"
	"spejit/linker"
)

var verbose bool

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	outputPath := "a.spe"
	var asmPath string
	var inPath string

	i := 1
	for i < len(os.Args) {
		switch {
		case os.Args[i] == "-o" && i+1 < len(os.Args):
			outputPath = os.Args[i+1]
			i += 2
		case os.Args[i] == "-asm" && i+1 < len(os.Args):
			asmPath = os.Args[i+1]
			i += 2
		case os.Args[i] == "-in" && i+1 < len(os.Args):
			inPath = os.Args[i+1]
			i += 2
		case os.Args[i] == "-v":
			verbose = true
			i++
		default:
			fmt.Fprintf(os.Stderr, "spejit: unrecognized argument %q\n", os.Args[i])
			usage()
			os.Exit(1)
		}
	}

	if inPath == "" {
		fmt.Fprintf(os.Stderr, "spejit: -in is required\n")
		usage()
		os.Exit(1)
	}

	methods, err := loadModule(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spejit: %v\n", err)
		os.Exit(1)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "spejit: compiling %d methods\n", len(methods))
	}

	compiled := make([]*codegen.CompiledMethod, len(methods))
	for i, m := range methods {
		cm, err := codegen.CompileMethod(m)
		if err != nil {
			fmt.Fprintf(os.Stderr, "spejit: %v\n", err)
			os.Exit(1)
		}
		compiled[i] = cm
		if verbose {
			fmt.Fprintf(os.Stderr, "spejit: %s compiled, %d instructions, max stack depth %d\n",
				m.Name, cm.Buf.Len(), cm.MaxStackDepth)
		}
	}

	img, err := linker.Link(compiled)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spejit: %v\n", err)
		os.Exit(1)
	}

	if asmPath != "" {
		f, err := os.Create(asmPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "spejit: %v\n", err)
			os.Exit(1)
		}
		err = img.Disassemble(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "spejit: %v\n", err)
			os.Exit(1)
		}
	}

	elf, err := elfimage.Build(img)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spejit: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outputPath, elf, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "spejit: %v\n", err)
		os.Exit(1)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "spejit: wrote %s (%d bytes)\n", outputPath, len(elf))
	}
}

func loadModule(path string) ([]*ir.Method, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var wm wireModule
	if err := json.Unmarshal(data, &wm); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(wm.Methods) == 0 {
		return nil, fmt.Errorf("%s: module has no methods", path)
	}
	methods := make([]*ir.Method, len(wm.Methods))
	for i, w := range wm.Methods {
		methods[i] = resolveMethod(w)
	}
	return methods, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: spejit -in module.json [-o output.spe] [-asm listing.s] [-v]\n")
}
