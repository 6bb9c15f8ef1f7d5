package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobCLI queries and loads job definitions held by the running server.
type JobCLI interface {
	// List returns the definitions matching project and name, serialized
	// in format ("yaml" or "xml"). A job the server does not know yields an
	// empty document.
	List(ctx context.Context, project, name, format string) ([]byte, error)

	// Load creates or replaces the jobs in content.
	Load(ctx context.Context, project string, content []byte, format string) error
}

// RdJobs drives the rd-jobs tool. Documents are handed over through a
// scratch file that is removed on every path.
type RdJobs struct {
	runner  Runner
	fs      FS
	base    string
	scratch string
	logger  zerolog.Logger
}

// NewRdJobs creates a job CLI for the server installed at base. Scratch
// files are created in scratchDir, which must be writable by the caller.
func NewRdJobs(runner Runner, fsys FS, base, scratchDir string, logger zerolog.Logger) *RdJobs {
	if scratchDir == "" {
		scratchDir = "/tmp"
	}
	return &RdJobs{
		runner:  runner,
		fs:      fsys,
		base:    base,
		scratch: scratchDir,
		logger:  logger.With().Str("component", "jobcli").Logger(),
	}
}

// List implements JobCLI.
func (r *RdJobs) List(ctx context.Context, project, name, format string) (data []byte, err error) {
	file := r.scratchFile(format)
	defer r.cleanup(file, &err)

	if _, err := r.run(ctx, "list", "--project", project, "--name", name, "--file", file, "--format", format); err != nil {
		return nil, err
	}

	data, err = r.fs.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job listing: %w", err)
	}
	return data, nil
}

// Load implements JobCLI.
func (r *RdJobs) Load(ctx context.Context, project string, content []byte, format string) (err error) {
	file := r.scratchFile(format)
	defer r.cleanup(file, &err)

	if err := r.fs.WriteFile(file, content, 0o600); err != nil {
		return fmt.Errorf("failed to stage job definition: %w", err)
	}
	if _, err := r.run(ctx, "load", "--project", project, "--file", file, "--format", format); err != nil {
		return err
	}
	r.logger.Info().Str("project", project).Msg("Job definition loaded")
	return nil
}

func (r *RdJobs) scratchFile(format string) string {
	return path.Join(r.scratch, "deckhand-job-"+uuid.NewString()+"."+format)
}

// cleanup removes the scratch file, reporting a removal failure only when
// the operation itself succeeded.
func (r *RdJobs) cleanup(file string, errp *error) {
	if rerr := r.fs.RemoveAll(file); rerr != nil {
		r.logger.Warn().Err(rerr).Str("file", file).Msg("Failed to remove scratch file")
		if *errp == nil {
			*errp = fmt.Errorf("failed to remove scratch file %s: %w", file, rerr)
		}
	}
}

func (r *RdJobs) run(ctx context.Context, args ...string) (*Output, error) {
	return r.runner.Run(ctx, Command{
		Name: "rd-jobs",
		Args: args,
		Env:  map[string]string{"RDECK_BASE": r.base},
	})
}
