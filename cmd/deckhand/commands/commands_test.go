package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/deckhand/pkg/config"
	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/resources"
	"github.com/rs/zerolog"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// workspace writes a settings file whose state database lives in a
// temporary directory and returns its path.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	s := config.DefaultSettings()
	s.StateDB = filepath.Join(dir, "state.db")
	s.Telemetry.LogLevel = "error"
	path := filepath.Join(dir, "deckhand.yaml")
	if err := s.Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand("1.0.0", "abc", "today")

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	sort.Strings(names)

	for _, want := range []string{"converge", "drift", "history", "init", "inventory", "plan", "probe", "schema", "validate"} {
		i := sort.SearchStrings(names, want)
		if i == len(names) || names[i] != want {
			t.Errorf("missing command %q in %v", want, names)
		}
	}

	for _, flag := range []string{"config", "verbose", "json", "state", "target", "identity"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
	if !strings.Contains(cmd.Version, "1.0.0") {
		t.Errorf("Version = %q", cmd.Version)
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"converge needs a declaration", []string{"converge"}},
		{"plan needs a declaration", []string{"plan"}},
		{"probe takes no arguments", []string{"probe", "extra"}},
		{"search needs a query", []string{"inventory", "search"}},
		{"add needs a name", []string{"inventory", "add"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestInitWorkspace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")

	out, err := execute(t, "init", "--no-keys", dir)
	if err != nil {
		t.Fatalf("init error = %v", err)
	}
	if !strings.Contains(out, "site.cue") {
		t.Errorf("output = %q", out)
	}

	for _, f := range []string{"deckhand.yaml", "site.cue", "data/state.db"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("%s: %v", f, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "keys")); !os.IsNotExist(err) {
		t.Errorf("keys directory created with --no-keys")
	}

	s, err := config.LoadSettings(filepath.Join(dir, "deckhand.yaml"), false)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.StateDB != filepath.Join(dir, "data", "state.db") {
		t.Errorf("StateDB = %q", s.StateDB)
	}

	decl, err := config.NewLoader(zerolog.Nop()).Load(context.Background(), []string{filepath.Join(dir, "site.cue")})
	if err != nil {
		t.Fatalf("sample declaration does not load: %v", err)
	}
	if len(decl.Projects) != 1 || len(decl.Projects[0].Jobs) != 1 {
		t.Errorf("projects = %+v", decl.Projects)
	}

	if _, err := execute(t, "init", "--no-keys", dir); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := execute(t, "init", "--no-keys", "--force", dir); err != nil {
		t.Errorf("init --force error = %v", err)
	}
}

func TestInventoryCommands(t *testing.T) {
	cfg := workspace(t)

	if _, err := execute(t, "-c", cfg, "inventory", "add", "--name", "web01", "--role", "web", "--env", "prod", "--attr", "rack=a1"); err != nil {
		t.Fatalf("add error = %v", err)
	}
	if _, err := execute(t, "-c", cfg, "inventory", "add", "--name", "db01", "--role", "db"); err != nil {
		t.Fatalf("add error = %v", err)
	}
	if _, err := execute(t, "-c", cfg, "inventory", "add", "--name", "bad", "--attr", "norack"); err == nil {
		t.Error("malformed --attr should fail")
	}

	out, err := execute(t, "-c", cfg, "--json", "inventory", "search", "rack:a1")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	var nodes []host.Node
	if err := json.Unmarshal([]byte(out), &nodes); err != nil {
		t.Fatalf("search output %q: %v", out, err)
	}
	if len(nodes) != 1 || nodes[0].Name != "web01" {
		t.Errorf("search = %+v", nodes)
	}

	if _, err := execute(t, "-c", cfg, "inventory", "remove", "web01"); err != nil {
		t.Fatalf("remove error = %v", err)
	}
	out, err = execute(t, "-c", cfg, "inventory", "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if strings.Contains(out, "web01") || !strings.Contains(out, "db01") {
		t.Errorf("list = %q", out)
	}
	if _, err := execute(t, "-c", cfg, "inventory", "remove", "web01"); err == nil {
		t.Error("removing a missing node should fail")
	}
}

func TestHistoryEmpty(t *testing.T) {
	cfg := workspace(t)

	out, err := execute(t, "-c", cfg, "--json", "history")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("history = %q", out)
	}
	if _, err := execute(t, "-c", cfg, "history", "no-such-run"); err == nil {
		t.Error("unknown run should fail")
	}
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema")
	if err != nil {
		t.Fatalf("schema error = %v", err)
	}
	if !strings.Contains(out, "#Fragment") {
		t.Errorf("schema output lacks #Fragment:\n%s", out)
	}

	out, err = execute(t, "schema", "--list")
	if err != nil {
		t.Fatalf("schema --list error = %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("schema --list printed nothing")
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	server := engine.ResourceID{Kind: engine.KindServer, Name: "rundeck01"}
	acl := engine.ResourceID{Kind: engine.KindAcl, Name: "ops"}
	summary := &engine.RunSummary{
		RunID:       "run-1",
		Status:      engine.RunStatusSucceeded,
		DryRun:      true,
		StartedAt:   start,
		CompletedAt: start.Add(2 * time.Second),
		Steps: []engine.StepResult{
			{Resource: acl, Action: engine.ActionEnable, Step: "file", Changed: true},
			{Resource: server, Action: engine.ActionInstall, Step: "package"},
		},
		Notifications: []engine.NotificationResult{
			{Source: acl, Target: server, Action: engine.ActionRestart, Changed: true, Collapsed: 2},
		},
	}

	var buf bytes.Buffer
	if err := printSummary(&buf, summary); err != nil {
		t.Fatalf("printSummary() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"acl[ops]", "server[rundeck01]", "restart", "2 would change", "run-1 succeeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEnabledJobs(t *testing.T) {
	job := func(name string, action engine.Action) *resources.Job {
		return &resources.Job{Name: name, Action: action}
	}
	tree := &resources.Tree{Server: &resources.Server{Projects: []*resources.Project{
		{Name: "cron", Action: engine.ActionEnable, Jobs: []*resources.Job{
			job("cleanup", engine.ActionEnable),
			job("retired", engine.ActionDisable),
		}},
		{Name: "gone", Action: engine.ActionDisable, Jobs: []*resources.Job{
			job("orphan", engine.ActionEnable),
		}},
		{Name: "Reports", Action: engine.ActionReconfigure, Jobs: []*resources.Job{
			job("weekly", engine.ActionEnable),
		}},
	}}}

	tests := []struct {
		project string
		want    []string
	}{
		{"", []string{"cleanup", "weekly"}},
		{"cron", []string{"cleanup"}},
		{"reports", []string{"weekly"}},
		{"gone", nil},
	}
	for _, tt := range tests {
		var got []string
		for _, j := range enabledJobs(tree, tt.project) {
			got = append(got, j.Name)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("enabledJobs(%q) = %v, want %v", tt.project, got, tt.want)
		}
	}
}

func TestWriteOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	write := func() error { return os.WriteFile(path, []byte("x"), 0o644) }

	if err := writeOnce(path, false, write); err != nil {
		t.Fatalf("first write error = %v", err)
	}
	if err := writeOnce(path, false, write); err == nil || !strings.Contains(err.Error(), "--force") {
		t.Errorf("second write error = %v", err)
	}
	if err := writeOnce(path, true, write); err != nil {
		t.Errorf("forced write error = %v", err)
	}
}
