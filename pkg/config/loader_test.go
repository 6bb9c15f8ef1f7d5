package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/rs/zerolog"
)

const cueDeclaration = `
server: {
	node_name: "rundeck01"
	version:   "2.6.11-1"
	port:      4440
	admin: password: "s3cret"
	mail: {
		hostname: "smtp.example.com"
		tls:      true
	}
}

_team: "ops"

projects: [{
	name:            "\(_team)::cron"
	ssh_authentication: "privateKey"
	jobs: [{
		name:    "cron::cleanup"
		content: "- name: cleanup\n"
	}]
	node_sources: [{
		name:  "all"
		query: "role:web"
		limit: 5
	}]
}]
`

const yamlUsers = `
users:
  - name: alice
    password: wonderland
    roles: [admin, user]
  - name: bob
    password: builder
    format: crypt
acls:
  - name: ops
    content: |
      description: ops
`

const starlarkProjects = `
def project(name):
    return {
        "name": name,
        "jobs": [{"name": name + "::backup", "format": "xml", "content": "<joblist/>"}],
    }

projects = [project(n) for n in vars["projects"]]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestFormatOf(t *testing.T) {
	tests := map[string]string{
		"site.cue":      FormatCUE,
		"users.yaml":    FormatYAML,
		"users.YML":     FormatYAML,
		"nodes.json":    FormatYAML,
		"projects.star": FormatStarlark,
		"README.md":     "",
	}
	for path, want := range tests {
		if got := FormatOf(path); got != want {
			t.Errorf("FormatOf(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoader_LoadCUE(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	decl, err := loader.LoadBytes(context.Background(), "site.cue", []byte(cueDeclaration))
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}

	if decl.Server == nil || decl.Server.NodeName != "rundeck01" {
		t.Fatalf("server = %+v", decl.Server)
	}
	if decl.Server.Admin.Password != "s3cret" {
		t.Errorf("admin password = %q", decl.Server.Admin.Password)
	}
	if decl.Server.Mail == nil || decl.Server.Mail.TLS == nil || !*decl.Server.Mail.TLS {
		t.Errorf("mail = %+v", decl.Server.Mail)
	}
	if decl.Server.PublicRSS != nil {
		t.Error("unset bool should stay nil")
	}

	if len(decl.Projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(decl.Projects))
	}
	p := decl.Projects[0]
	if p.Name != "ops::cron" {
		t.Errorf("project name = %q, want interpolated ops::cron", p.Name)
	}
	if len(p.Jobs) != 1 || p.Jobs[0].Name != "cron::cleanup" {
		t.Errorf("jobs = %+v", p.Jobs)
	}
	if len(p.NodeSources) != 1 || p.NodeSources[0].Limit == nil || *p.NodeSources[0].Limit != 5 {
		t.Errorf("node sources = %+v", p.NodeSources)
	}
}

func TestLoader_LoadMerged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "00-site.cue", cueDeclaration)
	writeFile(t, dir, "10-users.yaml", yamlUsers)
	writeFile(t, dir, "20-projects.star", starlarkProjects)
	writeFile(t, dir, "README.md", "ignored")

	loader := NewLoader(zerolog.Nop())
	loader.SetVar("projects", []interface{}{"billing", "reports"})

	decl, err := loader.Load(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(decl.Sources) != 3 {
		t.Errorf("sources = %v", decl.Sources)
	}

	var names []string
	for _, p := range decl.Projects {
		names = append(names, p.Name)
	}
	if got := strings.Join(names, ","); got != "ops::cron,billing,reports" {
		t.Errorf("projects = %s", got)
	}
	if decl.Projects[1].Jobs[0].Format != "xml" {
		t.Errorf("starlark job format = %q", decl.Projects[1].Jobs[0].Format)
	}

	if len(decl.Users) != 2 || decl.Users[0].Name != "alice" || decl.Users[1].Format != "crypt" {
		t.Errorf("users = %+v", decl.Users)
	}
	if len(decl.Acls) != 1 || !strings.Contains(decl.Acls[0].Content, "description: ops") {
		t.Errorf("acls = %+v", decl.Acls)
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantCode string
		wantText string
	}{
		{
			name:     "cue syntax",
			file:     "bad.cue",
			content:  "server: {",
			wantCode: engine.ErrCodeValidation,
			wantText: "bad.cue",
		},
		{
			name:     "unknown field",
			file:     "typo.yaml",
			content:  "server:\n  admin: {password: x}\n  prot: 4440\n",
			wantCode: engine.ErrCodeValidation,
			wantText: "prot",
		},
		{
			name:     "bad enum",
			file:     "level.yaml",
			content:  "server:\n  admin: {password: x}\n  logging_level: LOUD\n",
			wantCode: engine.ErrCodeValidation,
		},
		{
			name:     "missing server",
			file:     "users.yaml",
			content:  yamlUsers,
			wantCode: engine.ErrCodeRequired,
			wantText: "server",
		},
		{
			name:     "missing job content",
			file:     "job.yaml",
			content:  "server:\n  admin: {password: x}\nprojects:\n  - name: cron\n    jobs:\n      - name: cleanup\n",
			wantCode: engine.ErrCodeValidation,
			wantText: "content",
		},
		{
			name:     "starlark failure",
			file:     "broken.star",
			content:  "projects = undefined_name\n",
			wantCode: engine.ErrCodeValidation,
			wantText: "broken.star",
		},
		{
			name:     "yaml syntax",
			file:     "broken.yaml",
			content:  "server: [\n",
			wantCode: engine.ErrCodeValidation,
			wantText: "broken.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(zerolog.Nop()).LoadBytes(context.Background(), tt.file, []byte(tt.content))
			if !engine.IsValidation(err) {
				t.Fatalf("LoadBytes() error = %v, want ValidationError", err)
			}
			var ee *engine.EngineError
			if !errors.As(err, &ee) {
				t.Fatalf("error is not an EngineError: %T", err)
			}
			if ee.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", ee.Code, tt.wantCode)
			}
			if tt.wantText != "" && !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantText)
			}
		})
	}
}

func TestLoader_ServerDeclaredTwice(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "server:\n  admin: {password: x}\n")
	b := writeFile(t, dir, "b.yaml", "server:\n  admin: {password: y}\n")

	_, err := NewLoader(zerolog.Nop()).Load(context.Background(), []string{a, b})
	if !engine.IsValidation(err) {
		t.Fatalf("Load() error = %v, want ValidationError", err)
	}
	if !strings.Contains(err.Error(), "more than once") {
		t.Errorf("error = %v", err)
	}
}

func TestLoader_Sources(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	ctx := context.Background()

	if _, err := loader.Load(ctx, nil); !engine.IsValidation(err) {
		t.Errorf("Load(nil) error = %v, want ValidationError", err)
	}

	dir := t.TempDir()
	if _, err := loader.Load(ctx, []string{dir}); !engine.IsValidation(err) {
		t.Errorf("Load(empty dir) error = %v, want ValidationError", err)
	}

	notes := writeFile(t, dir, "notes.txt", "")
	if _, err := loader.Load(ctx, []string{notes}); !engine.IsValidation(err) {
		t.Errorf("Load(notes.txt) error = %v, want ValidationError", err)
	}

	if _, err := loader.Load(ctx, []string{filepath.Join(dir, "missing.cue")}); err == nil {
		t.Error("expected error for missing file")
	}
}
