package host_test

import (
	"context"
	"strings"
	"testing"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/host/hosttest"
	"github.com/rs/zerolog"
)

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestRdJobsList(t *testing.T) {
	r := hosttest.NewRunner()
	f := hosttest.NewFS()
	cli := host.NewRdJobs(r, f, "/var/lib/rundeck", "/tmp", zerolog.Nop())

	var env map[string]string
	r.Handle("rd-jobs", func(c host.Command) (*host.Output, error) {
		env = c.Env
		_ = f.WriteFile(argAfter(c.Args, "--file"), []byte("- name: short\n"), 0o600)
		return &host.Output{}, nil
	})

	data, err := cli.List(context.Background(), "teapot", "short", "yaml")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if string(data) != "- name: short\n" {
		t.Errorf("List() = %q", data)
	}
	if env["RDECK_BASE"] != "/var/lib/rundeck" {
		t.Errorf("RDECK_BASE = %q", env["RDECK_BASE"])
	}

	cmd := r.Commands()[0]
	if !strings.HasPrefix(cmd, "rd-jobs list --project teapot --name short --file /tmp/deckhand-job-") || !strings.HasSuffix(cmd, "--format yaml") {
		t.Errorf("unexpected command %q", cmd)
	}
	if paths := f.Paths(); len(paths) != 0 {
		t.Errorf("scratch file left behind: %v", paths)
	}
}

func TestRdJobsListRemovesScratchOnError(t *testing.T) {
	r := hosttest.NewRunner()
	f := hosttest.NewFS()
	cli := host.NewRdJobs(r, f, "/var/lib/rundeck", "/tmp", zerolog.Nop())

	r.Handle("rd-jobs", func(c host.Command) (*host.Output, error) {
		_ = f.WriteFile(argAfter(c.Args, "--file"), []byte("partial"), 0o600)
		return &host.Output{ExitCode: 2, Stderr: []byte("Error: connection refused")}, nil
	})

	_, err := cli.List(context.Background(), "teapot", "short", "yaml")
	if !engine.IsExternalCommand(err) {
		t.Fatalf("List() error = %v, want external command error", err)
	}
	if paths := f.Paths(); len(paths) != 0 {
		t.Errorf("scratch file left behind: %v", paths)
	}
}

func TestRdJobsLoad(t *testing.T) {
	r := hosttest.NewRunner()
	f := hosttest.NewFS()
	cli := host.NewRdJobs(r, f, "/var/lib/rundeck", "/tmp", zerolog.Nop())

	var staged string
	r.Handle("rd-jobs", func(c host.Command) (*host.Output, error) {
		staged = f.Content(argAfter(c.Args, "--file"))
		return &host.Output{}, nil
	})

	if err := cli.Load(context.Background(), "cron", []byte("- name: crontab\n"), "yaml"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if staged != "- name: crontab\n" {
		t.Errorf("staged content = %q", staged)
	}
	if paths := f.Paths(); len(paths) != 0 {
		t.Errorf("scratch file left behind: %v", paths)
	}
}
