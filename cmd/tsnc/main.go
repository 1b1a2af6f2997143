// Command tsnc compiles a single entry source file and every file it
// transitively imports into a native x86-64 executable. It wires together
// internal/lexer, internal/parser, internal/resolver, internal/irgen and
// internal/backend exactly in the pipeline order of the teacher's
// src/main.go `run` function, with command-line parsing replaced by cobra
// per spec.md's ambient-stack expansion (the teacher hand-rolls
// util.ParseArgs; the rest of this pack reaches for cobra — see
// Consensys-go-corset's pkg/cmd tree). -j/--threads is forwarded straight
// into irgen.Generator.Generate, which fans function-body lowering out
// across that many worker goroutines exactly as the teacher's GenLLVM does.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hhramberg/tsnc/internal/ast"
	"github.com/hhramberg/tsnc/internal/irgen"
	"github.com/hhramberg/tsnc/internal/lexer"
	"github.com/hhramberg/tsnc/internal/parser"
	"github.com/hhramberg/tsnc/internal/resolver"
	"github.com/hhramberg/tsnc/internal/token"
	"github.com/hhramberg/tsnc/internal/util"

	"github.com/hhramberg/tsnc/internal/backend"
)

var opt util.Options

var rootCmd = &cobra.Command{
	Use:   "tsnc [flags] source",
	Short: "ahead-of-time compiler for a small TypeScript-shaped language",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt.Src = args[0]
		return run(opt)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&opt.Out, "out", "o", "", "output executable path")
	flags.IntVarP(&opt.Threads, "threads", "j", 1, "worker goroutines for IR generation")
	flags.BoolVarP(&opt.Verbose, "verbose", "v", false, "dump the parsed AST and the generated LLVM IR")
	flags.BoolVar(&opt.TokenStream, "ts", false, "dump the entry file's token stream and exit")
}

// run executes the compiler pipeline, mirroring the teacher's src/main.go
// run function's stage order (read source, maybe dump tokens, parse,
// generate, link).
func run(opt util.Options) error {
	log := util.NewLogger(opt.Verbose)

	src, err := util.ReadSource(opt)
	if err != nil {
		return errors.Wrap(err, "could not read source code")
	}

	if opt.TokenStream {
		return dumpTokenStream(src)
	}

	entryPath, err := filepath.Abs(opt.Src)
	if err != nil {
		return errors.Wrapf(err, "resolving absolute path of %q", opt.Src)
	}

	res := resolver.New(entryPath, func(absPath string) (string, error) {
		b, err := os.ReadFile(absPath)
		return string(b), err
	})

	entryFile, exports, err := parser.ParseImported(res, entryPath, resolver.EntryFileID, src)
	if err != nil {
		return errors.Wrap(err, "parse error")
	}
	res.SetEntryFile(entryPath, entryFile, exports)

	files := res.Files()

	if opt.Verbose {
		for _, f := range files {
			ast.Print(f.Decls, 0)
		}
	}

	gen := irgen.New(filepath.Base(entryPath), log)
	defer gen.Dispose()

	if err := gen.Generate(files, resolver.EntryFileID, opt.Threads); err != nil {
		return errors.Wrap(err, "LLVM code generation error")
	}

	objPath, err := backend.EmitObject(opt, gen.Module())
	if err != nil {
		return errors.Wrap(err, "could not emit object code")
	}
	if err := backend.Link(opt, objPath); err != nil {
		return errors.Wrap(err, "linking error")
	}
	return nil
}

// dumpTokenStream prints the entry file's lexed tokens one per line and
// exits, matching the teacher's `-ts` flag (frontend.TokenStream).
func dumpTokenStream(src string) error {
	lx := lexer.New(src)
	go lx.Run()
	for tok := range lx.Tokens {
		if tok.Kind == token.ERROR {
			return errors.Errorf("lex error at %d:%d: %s", tok.Line, tok.Pos, tok.Val)
		}
		fmt.Println(tok.String())
		if tok.Kind == token.EOF {
			break
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
