package util

import (
	"bufio"
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Options carries the driver's resolved configuration. cmd/tsnc populates it
// from cobra flags (spec.md's ambient-stack expansion replaces the teacher's
// hand-rolled util.ParseArgs with a cobra.Command); the compiler packages
// downstream of cmd/tsnc never talk to flags directly.
type Options struct {
	Src         string // path to the entry source file
	Out         string // path to the output executable
	Threads     int    // worker goroutines for parallel IR generation
	Verbose     bool   // dump the AST to stdout and the LLVM IR to the debug log
	TokenStream bool   // dump the entry file's token stream and exit
}

// ReadSource reads the full text of the entry file, or blocks briefly on
// stdin if no path was given, in the style of the teacher's util.ReadSource.
func ReadSource(opt Options) (string, error) {
	if len(opt.Src) > 0 {
		b, err := ioutil.ReadFile(opt.Src)
		return string(b), errors.Wrapf(err, "reading source file %q", opt.Src)
	}

	c := make(chan string)
	cerr := make(chan error)
	go func() {
		defer close(c)
		defer close(cerr)
		reader := bufio.NewReader(os.Stdin)
		text, err := reader.ReadString(0)
		if err == nil {
			c <- text
		} else {
			cerr <- err
		}
	}()

	select {
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("expected source on stdin, got none")
	case s := <-c:
		return s, nil
	case err := <-cerr:
		return "", errors.Wrap(err, "reading stdin")
	}
}
