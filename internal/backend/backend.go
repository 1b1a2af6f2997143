// Package backend turns a generated LLVM module into a native executable:
// target-machine initialization, emitting an object file, and invoking gcc
// to link it. This whole package is an out-of-scope collaborator relative
// to spec.md's CORE modules (spec.md explicitly excludes "invoking gcc" and
// "LLVM target init and write-to-file" from its scope) — it exists only so
// the repo is a runnable compiler end to end, grounded on the teacher's
// target-machine setup in ir/llvm/transform.go's GenLLVM and on
// original_source/packages/driver/src/main.rs's compile_assembly_to_exec.
package backend

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"tinygo.org/x/go-llvm"

	"github.com/hhramberg/tsnc/internal/util"
)

// EmitObject initializes the native target machine and writes m's compiled
// object code to opt.Out + ".o" (or "./<src-basename>.o" if opt.Out is
// unset) and returns that path, mirroring the teacher's GenLLVM
// target-init-and-emit tail.
func EmitObject(opt util.Options, m llvm.Module) (string, error) {
	llvm.InitializeAllTargetInfos()
	llvm.InitializeAllTargetMCs()
	llvm.InitializeAllAsmParsers()
	llvm.InitializeAllAsmPrinters()

	triple := llvm.DefaultTargetTriple()
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return "", errors.Wrap(err, "resolving native target")
	}

	tm := target.CreateTargetMachine(triple, "generic", "",
		llvm.CodeGenLevelNone,
		llvm.RelocDefault,
		llvm.CodeModelDefault)
	defer tm.Dispose()

	td := tm.CreateTargetData()
	defer td.Dispose()

	m.SetDataLayout(td.String())
	m.SetTarget(triple)

	buf, err := tm.EmitToMemoryBuffer(m, llvm.ObjectFile)
	if err != nil {
		return "", errors.Wrap(err, "emitting object code")
	}
	if buf.IsNil() {
		return "", errors.New("could not emit compiled code to memory")
	}

	objPath := objectPath(opt)
	if err := os.WriteFile(objPath, buf.Bytes(), 0644); err != nil {
		return "", errors.Wrapf(err, "writing object file %q", objPath)
	}
	return objPath, nil
}

func objectPath(opt util.Options) string {
	if len(opt.Out) > 0 {
		return opt.Out + ".o"
	}
	base := strings.TrimSuffix(filepath.Base(opt.Src), filepath.Ext(opt.Src))
	return fmt.Sprintf("./%s.o", base)
}

// Link invokes gcc to link objPath into a native executable at opt.Out
// ("./a.out" if unset), matching spec.md §6's "Emitted artifacts" and grounded on
// original_source/packages/driver/src/main.rs's compile_assembly_to_exec
// (`gcc <asm> -o <out>`).
func Link(opt util.Options, objPath string) error {
	out := opt.Out
	if len(out) == 0 {
		out = "./a.out"
	}
	cmd := exec.Command("gcc", objPath, "-o", out)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "gcc failed to link %q", objPath)
	}
	return nil
}
