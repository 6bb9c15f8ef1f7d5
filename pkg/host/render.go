package host

import (
	"bytes"
	"embed"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

// Built-in template identifiers.
const (
	TemplateLog4j          = "log4j.properties"
	TemplateJaas           = "jaas-loginmodule.conf"
	TemplateProfile        = "profile"
	TemplateFramework      = "framework.properties"
	TemplateRundeckConfig  = "rundeck-config.properties"
	TemplateRealm          = "realm.properties"
	TemplateProject        = "project.properties"
	TemplateResourcesXML   = "resources.xml"
	TemplateAdminACL       = "admin.aclpolicy"
	TemplateAPITokenACL    = "apitoken.aclpolicy"
	TemplateSystemdService = "systemd.service"
)

const templateSuffix = ".tmpl"

// Renderer turns a template and its variables into file content. The
// result is written verbatim.
type Renderer interface {
	Render(id string, vars any) ([]byte, error)
}

// TemplateRenderer renders Go text/templates embedded in the binary. A
// file named <id>.tmpl in the override directory replaces the built-in one.
type TemplateRenderer struct {
	dir   string
	funcs template.FuncMap
}

// NewTemplateRenderer creates a renderer. overrideDir may be empty.
func NewTemplateRenderer(overrideDir string) *TemplateRenderer {
	return &TemplateRenderer{dir: overrideDir, funcs: templateFuncs}
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"xml": func(s string) string {
		var b strings.Builder
		_ = xml.EscapeText(&b, []byte(s))
		return strings.ReplaceAll(b.String(), `"`, "&#34;")
	},
	"inc": func(i int) int { return i + 1 },
	"seconds": func(d interface{ Seconds() float64 }) int {
		return int(d.Seconds())
	},
}

// Render implements Renderer.
func (r *TemplateRenderer) Render(id string, vars any) ([]byte, error) {
	src, err := r.source(id)
	if err != nil {
		return nil, err
	}

	t, err := template.New(id).Funcs(r.funcs).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", id, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", id, err)
	}
	return buf.Bytes(), nil
}

func (r *TemplateRenderer) source(id string) ([]byte, error) {
	if r.dir != "" {
		data, err := os.ReadFile(filepath.Join(r.dir, id+templateSuffix))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read template override %s: %w", id, err)
		}
	}

	data, err := builtinTemplates.ReadFile("templates/" + id + templateSuffix)
	if err != nil {
		return nil, fmt.Errorf("unknown template %q", id)
	}
	return data, nil
}

// BuiltinTemplates lists the identifiers of the embedded templates.
func BuiltinTemplates() []string {
	entries, _ := builtinTemplates.ReadDir("templates")
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, strings.TrimSuffix(e.Name(), templateSuffix))
	}
	return ids
}
