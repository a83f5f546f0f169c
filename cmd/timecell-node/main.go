package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// configError marks failures that happen before any command runs.
type configError struct{ err error }

func (e *configError) Error() string { return "invalid config: " + e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		var ce *configError
		if errors.As(err, &ce) {
			return 2
		}
		return 1
	}
	return 0
}
