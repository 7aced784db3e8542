package engine

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

var (
	// ErrSpawn reports that the subprocess could not be started.
	ErrSpawn = errors.New("failed to start analysis engine")

	// ErrScriptNotFound reports a missing engine script. It wraps ErrSpawn.
	ErrScriptNotFound = errors.Wrap(ErrSpawn, "engine script not found")
)

// Command describes how to launch the analysis engine.
type Command struct {
	// Executable is the interpreter or binary to run.
	Executable string
	// InterpreterArgs go before Script, e.g. "-u" for unbuffered python.
	InterpreterArgs []string
	// Script is optional. When set it must exist.
	Script string
	// Args go after Script: the target pid, then the plugin path.
	Args []string
	// Dir is the working directory; empty means inherit.
	Dir string
	// Env is appended to the current environment.
	Env []string
}

// Argv returns the full argument vector after Executable.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.InterpreterArgs)+len(c.Args)+1)
	argv = append(argv, c.InterpreterArgs...)
	if c.Script != "" {
		argv = append(argv, c.Script)
	}
	return append(argv, c.Args...)
}

func (c Command) check() error {
	if c.Executable == "" {
		return errors.Wrap(ErrSpawn, "no executable configured")
	}
	if c.Script == "" {
		return nil
	}
	if _, err := os.Stat(c.Script); err != nil {
		return errors.Wrapf(ErrScriptNotFound, "%s", c.Script)
	}
	return nil
}

func (c Command) build() *exec.Cmd {
	cmd := exec.Command(c.Executable, c.Argv()...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	} else if c.Script != "" {
		cmd.Dir = filepath.Dir(c.Script)
	}
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8")
	cmd.Env = append(cmd.Env, c.Env...)
	return cmd
}
