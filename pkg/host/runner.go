// Package host implements the collaborators deckhand converges a machine
// through: command execution, file system access, package installation,
// system accounts, service supervision, the job CLI, node inventory and
// configuration templates.
package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Command is one external program invocation.
type Command struct {
	Name  string
	Args  []string
	Env   map[string]string
	Dir   string
	Stdin []byte

	// AllowedExitCodes lists non-zero exit codes that are not failures,
	// e.g. 2 for "getent: key not found".
	AllowedExitCodes []int
}

// Argv returns the full command line.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Output holds the result of a finished command.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes commands on the managed host. A non-zero exit status not
// listed in AllowedExitCodes is returned as an external command error.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Output, error)
}

// FileInfo is the subset of file metadata convergence compares.
type FileInfo struct {
	Mode  fs.FileMode
	UID   int
	GID   int
	IsDir bool
}

// FS is file system access on the managed host. Missing paths are reported
// with errors satisfying errors.Is(err, fs.ErrNotExist).
type FS interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, mode fs.FileMode) error
	Stat(path string) (*FileInfo, error)
	Mkdir(path string, mode fs.FileMode) error
	Chmod(path string, mode fs.FileMode) error
	Chown(path string, uid, gid int) error
	RemoveAll(path string) error
}

// LocalRunner runs commands on this machine through os/exec.
type LocalRunner struct {
	logger zerolog.Logger
}

// NewLocalRunner creates a runner for the local machine.
func NewLocalRunner(logger zerolog.Logger) *LocalRunner {
	return &LocalRunner{logger: logger.With().Str("component", "runner").Logger()}
}

// Run implements Runner.
func (r *LocalRunner) Run(ctx context.Context, cmd Command) (*Output, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), envList(cmd.Env)...)
	}
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	out := &Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	r.logger.Debug().
		Str("command", cmd.String()).
		Dur("duration", out.Duration).
		Err(err).
		Msg("Command finished")

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			return out, engine.NewExternalCommandError(cmd.Argv(), -1, "", err)
		}
		out.ExitCode = exitErr.ExitCode()
	}

	return out, CheckExit(cmd, out)
}

// CheckExit converts a failing exit status into an external command error.
func CheckExit(cmd Command, out *Output) error {
	if out.ExitCode == 0 {
		return nil
	}
	for _, code := range cmd.AllowedExitCodes {
		if code == out.ExitCode {
			return nil
		}
	}
	return engine.NewExternalCommandError(cmd.Argv(), out.ExitCode, string(out.Stderr), nil)
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}

// LocalFS is FS on the local file system.
type LocalFS struct{}

// ReadFile implements FS.
func (LocalFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile implements FS. The file is written to a sibling temporary file
// and renamed into place.
func (LocalFS) WriteFile(path string, data []byte, mode fs.FileMode) error {
	tmp := path + ".deckhand-tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	if err := os.Chmod(tmp, mode); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Stat implements FS without following symlinks.
func (LocalFS) Stat(path string) (*FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	return &FileInfo{
		Mode:  fs.FileMode(st.Mode & 0o777),
		UID:   int(st.Uid),
		GID:   int(st.Gid),
		IsDir: st.Mode&unix.S_IFMT == unix.S_IFDIR,
	}, nil
}

// Mkdir implements FS.
func (LocalFS) Mkdir(path string, mode fs.FileMode) error {
	if err := os.Mkdir(path, mode); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return os.Chmod(path, mode)
}

// Chmod implements FS.
func (LocalFS) Chmod(path string, mode fs.FileMode) error {
	return os.Chmod(path, mode)
}

// Chown implements FS.
func (LocalFS) Chown(path string, uid, gid int) error {
	return os.Lchown(path, uid, gid)
}

// RemoveAll implements FS.
func (LocalFS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
