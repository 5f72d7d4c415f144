// Sparkling CLI - runs scripts, compiles object files and hosts a REPL
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/carriercomm/Sparkling/compiler"
	"github.com/carriercomm/Sparkling/manifest"
	"github.com/carriercomm/Sparkling/stdlib"
	"github.com/carriercomm/Sparkling/vm"
)

var log = commonlog.GetLogger("spn")

func main() {
	compileOnly := flag.Bool("c", false, "Compile to an object file instead of running")
	output := flag.String("o", "", "Object file output path (with -c)")
	eval := flag.String("e", "", "Evaluate an expression and print its value")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	disasm := flag.Bool("d", false, "Print a bytecode listing instead of running")
	verbosity := flag.Int("v", 0, "Log verbosity (0 quiet, 2 debug)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: spn [options] [script...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs Sparkling scripts (.spn) and object files (.spnc).\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  spn script.spn          # Run a script\n")
		fmt.Fprintf(os.Stderr, "  spn -c script.spn       # Compile to script.spnc\n")
		fmt.Fprintf(os.Stderr, "  spn -e '1 + 2 * 3'      # Evaluate an expression\n")
		fmt.Fprintf(os.Stderr, "  spn -i                  # Start the REPL\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	ctx := stdlib.NewContext()
	defer ctx.Close()

	if m := loadManifest(); m != nil {
		applyManifest(ctx, m)
	}

	switch {
	case *eval != "":
		runEval(ctx, *eval)
	case *compileOnly:
		for _, path := range flag.Args() {
			compileFile(path, *output, *disasm)
		}
	case *interactive || flag.NArg() == 0:
		repl(ctx)
	default:
		for _, path := range flag.Args() {
			runFile(ctx, path)
		}
	}
}

func loadManifest() *manifest.Manifest {
	cwd, err := os.Getwd()
	if err != nil {
		return nil
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return nil
	}
	return m
}

func applyManifest(ctx *vm.Context, m *manifest.Manifest) {
	log.Infof("using manifest in %s", m.Dir)
	if m.Runtime.MaxCallDepth > 0 {
		ctx.SetMaxCallDepth(m.Runtime.MaxCallDepth)
	}
	stdlib.SetRequirePaths(m.SourceDirPaths())
	// preconfigured database connections surface as globals
	if m.DB.Driver != "" {
		drv := vm.MakeString(m.DB.Driver)
		dsn := vm.MakeString(m.DB.DSN)
		ctx.SetGlobal("DB_DRIVER", drv)
		ctx.SetGlobal("DB_DSN", dsn)
		drv.Release()
		dsn.Release()
	}
}

func runEval(ctx *vm.Context, src string) {
	if !strings.HasSuffix(strings.TrimSpace(src), ";") {
		src += ";"
	}
	v, err := ctx.ExecString(src)
	if err != nil {
		reportError(ctx)
		os.Exit(1)
	}
	if !v.IsNil() {
		fmt.Println(v.DebugDescribe())
	}
	v.Release()
}

func runFile(ctx *vm.Context, path string) {
	var v vm.Value
	var err error
	if strings.HasSuffix(path, ".spnc") {
		v, err = ctx.ExecObjFile(path)
	} else {
		v, err = ctx.ExecSrcFile(path)
	}
	if err != nil {
		reportError(ctx)
		os.Exit(1)
	}
	v.Release()
}

func compileFile(path, output string, listing bool) {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	chunk, err := compiler.New().Compile(path, string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if listing {
		for _, proto := range chunk.Protos {
			fmt.Print(vm.Disassemble(chunk, proto))
		}
		return
	}

	out := output
	if out == "" {
		out = strings.TrimSuffix(path, ".spn") + ".spnc"
	}
	data, err := vm.MarshalChunk(chunk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Infof("wrote %s (%d bytes)", out, len(data))
}

func repl(ctx *vm.Context) {
	fmt.Println("Sparkling REPL. Statements end with ';', Ctrl-D exits.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("spn> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasSuffix(line, ";") && !strings.HasSuffix(line, "}") {
			line += ";"
		}
		v, err := ctx.ExecString(line)
		if err != nil {
			reportError(ctx)
			continue
		}
		if !v.IsNil() {
			fmt.Println(v.DebugDescribe())
		}
		v.Release()
	}
}

func reportError(ctx *vm.Context) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", ctx.ErrorStage(), ctx.ErrorMessage())
}
