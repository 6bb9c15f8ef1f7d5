package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
	"golang.org/x/crypto/ssh"
)

// Run implements host.Runner. Each command runs in its own session.
func (c *Client) Run(ctx context.Context, cmd host.Command) (*host.Output, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:          "exec",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if cmd.Stdin != nil {
		session.Stdin = bytes.NewReader(cmd.Stdin)
	}

	line := CommandLine(cmd, c.config.Sudo)
	start := time.Now()

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		<-done
		return nil, ctx.Err()
	case runErr = <-done:
	}

	out := &host.Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	c.logger.Debug().
		Str("command", cmd.String()).
		Dur("duration", out.Duration).
		Err(runErr).
		Msg("Remote command finished")

	if runErr != nil {
		var exitErr *ssh.ExitError
		if !errors.As(runErr, &exitErr) {
			return out, engine.NewExternalCommandError(cmd.Argv(), -1, string(out.Stderr), runErr)
		}
		out.ExitCode = exitErr.ExitStatus()
	}

	return out, host.CheckExit(cmd, out)
}

// CommandLine renders cmd as a single shell-quoted line for the remote
// shell, with its environment, working directory and sudo applied.
func CommandLine(cmd host.Command, sudo bool) string {
	var parts []string
	if sudo {
		parts = append(parts, "sudo", "-n", "--")
	}
	if len(cmd.Env) > 0 {
		keys := make([]string, 0, len(cmd.Env))
		for k := range cmd.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts = append(parts, "env")
		for _, k := range keys {
			parts = append(parts, k+"="+cmd.Env[k])
		}
	}
	parts = append(parts, cmd.Argv()...)

	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = shellQuote(p)
	}
	line := strings.Join(quoted, " ")

	if cmd.Dir != "" {
		line = "cd " + shellQuote(cmd.Dir) + " && " + line
	}
	return line
}

// shellQuote quotes s for a POSIX shell, leaving plain words untouched.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
