package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Source formats recognized by file extension.
const (
	FormatCUE      = "cue"
	FormatYAML     = "yaml"
	FormatStarlark = "starlark"
)

// FormatOf returns the declaration format for path, or "" when the
// extension is not recognized.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE
	case ".yaml", ".yml", ".json":
		return FormatYAML
	case ".star":
		return FormatStarlark
	}
	return ""
}

// Loader reads declarations from CUE, YAML and Starlark sources. Every
// source is checked against the built-in CUE schema, decoded into a
// Declaration and merged in the order given.
type Loader struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	evaluator *StarlarkEvaluator
	validate  *validator.Validate
	logger    zerolog.Logger
	vars      map[string]interface{}
}

// NewLoader creates a loader.
func NewLoader(logger zerolog.Logger) *Loader {
	ctx := cuecontext.New()
	return &Loader{
		ctx:       ctx,
		schemas:   NewSchemaRegistry(ctx),
		evaluator: NewStarlarkEvaluator(30 * time.Second),
		validate:  NewValidator(),
		logger:    logger.With().Str("component", "config").Logger(),
		vars:      map[string]interface{}{},
	}
}

// SetVar exposes a value to Starlark scripts through the vars dict.
func (l *Loader) SetVar(name string, value interface{}) {
	l.vars[name] = value
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// Load reads every source, in order, and returns the merged and validated
// declaration. A directory source contributes its recognized files in
// lexical order. All CUE files are unified into one value before decoding.
func (l *Loader) Load(ctx context.Context, sources []string) (*Declaration, error) {
	if len(sources) == 0 {
		return nil, engine.NewValidationError("no declaration sources provided", nil).
			WithCode(engine.ErrCodeValidation)
	}

	files, err := expandSources(sources)
	if err != nil {
		return nil, err
	}

	var (
		cueVal   cue.Value
		cueFiles []string
		problems []ValidationError
		parts    []*Declaration
	)

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		if FormatOf(file) == FormatCUE {
			val := l.ctx.CompileBytes(content, cue.Filename(file))
			if err := val.Err(); err != nil {
				problems = append(problems, convertCUEErrors(err)...)
				continue
			}
			if cueVal.Exists() {
				cueVal = cueVal.Unify(val)
			} else {
				cueVal = val
			}
			cueFiles = append(cueFiles, file)
			continue
		}

		decl, errs := l.parse(ctx, file, content)
		problems = append(problems, errs...)
		if decl != nil {
			parts = append(parts, decl)
		}
	}

	if cueVal.Exists() {
		decl, errs := l.decode(cueVal, strings.Join(cueFiles, ", "))
		problems = append(problems, errs...)
		if decl != nil {
			decl.Sources = cueFiles
			parts = append([]*Declaration{decl}, parts...)
		}
	}

	if len(problems) > 0 {
		return nil, problemsError(problems)
	}

	merged := &Declaration{}
	for _, part := range parts {
		if err := merged.Merge(part); err != nil {
			return nil, err
		}
	}

	if err := l.Validate(merged); err != nil {
		return nil, err
	}

	l.logger.Debug().
		Strs("sources", merged.Sources).
		Int("projects", len(merged.Projects)).
		Int("users", len(merged.Users)).
		Msg("Loaded declaration")

	return merged, nil
}

// LoadBytes parses a single in-memory source. The format follows the
// extension of name.
func (l *Loader) LoadBytes(ctx context.Context, name string, content []byte) (*Declaration, error) {
	var (
		decl *Declaration
		errs []ValidationError
	)
	if FormatOf(name) == FormatCUE {
		val := l.ctx.CompileBytes(content, cue.Filename(name))
		if err := val.Err(); err != nil {
			return nil, problemsError(convertCUEErrors(err))
		}
		decl, errs = l.decode(val, name)
	} else {
		decl, errs = l.parse(ctx, name, content)
	}
	if len(errs) > 0 {
		return nil, problemsError(errs)
	}

	if err := l.Validate(decl); err != nil {
		return nil, err
	}
	return decl, nil
}

// parse turns a YAML or Starlark source into a declaration fragment.
func (l *Loader) parse(ctx context.Context, file string, content []byte) (*Declaration, []ValidationError) {
	var data map[string]interface{}

	switch FormatOf(file) {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &data); err != nil {
			return nil, []ValidationError{{File: file, Message: err.Error()}}
		}

	case FormatStarlark:
		result, err := l.evaluator.Evaluate(ctx, string(content), map[string]interface{}{"vars": l.vars})
		if err != nil {
			return nil, []ValidationError{{File: file, Message: err.Error()}}
		}
		data = make(map[string]interface{})
		for _, key := range []string{"server", "projects", "acls", "users"} {
			if v, ok := result.Output[key]; ok {
				data[key] = v
			}
		}

	default:
		return nil, []ValidationError{{File: file, Message: "unrecognized declaration format"}}
	}

	if data == nil {
		data = map[string]interface{}{}
	}

	val := l.ctx.Encode(data)
	if err := val.Err(); err != nil {
		return nil, []ValidationError{{File: file, Message: err.Error()}}
	}

	decl, errs := l.decode(val, file)
	for i := range errs {
		if errs[i].File == "" {
			errs[i].File = file
		}
	}
	if decl != nil {
		decl.Sources = []string{file}
	}
	return decl, errs
}

// decode checks val against the fragment schema and decodes it.
func (l *Loader) decode(val cue.Value, source string) (*Declaration, []ValidationError) {
	unified, err := l.schemas.Unify("#Fragment", val)
	if err != nil {
		return nil, convertCUEErrors(err)
	}

	var decl Declaration
	if err := unified.Decode(&decl); err != nil {
		return nil, []ValidationError{{File: source, Message: fmt.Sprintf("failed to decode declaration: %v", err)}}
	}
	return &decl, nil
}

// Merge appends other's resources to d. The server may be declared by one
// source only.
func (d *Declaration) Merge(other *Declaration) error {
	if other.Server != nil {
		if d.Server != nil {
			return engine.NewValidationError(
				fmt.Sprintf("server declared more than once (%s)", strings.Join(append(d.Sources, other.Sources...), ", ")),
				nil,
			).WithCode(engine.ErrCodeValidation).WithResource("server")
		}
		d.Server = other.Server
	}
	d.Projects = append(d.Projects, other.Projects...)
	d.Acls = append(d.Acls, other.Acls...)
	d.Users = append(d.Users, other.Users...)
	d.Sources = append(d.Sources, other.Sources...)
	return nil
}

// expandSources resolves directories into their recognized files.
func expandSources(sources []string) ([]string, error) {
	var files []string
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if !info.IsDir() {
			if FormatOf(source) == "" {
				return nil, engine.NewValidationError(fmt.Sprintf("unrecognized declaration format: %s", source), nil).
					WithCode(engine.ErrCodeValidation)
			}
			files = append(files, source)
			continue
		}

		entries, err := os.ReadDir(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", source, err)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && FormatOf(e.Name()) != "" {
				found = append(found, filepath.Join(source, e.Name()))
			}
		}
		if len(found) == 0 {
			return nil, engine.NewValidationError(fmt.Sprintf("no declaration files found in %s", source), nil).
				WithCode(engine.ErrCodeValidation)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		var file string
		var line, column int

		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		format, args := e.Msg()
		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}

	return validationErrors
}

// problemsError folds load problems into one ValidationError carrying the
// individual problems as a detail.
func problemsError(problems []ValidationError) error {
	lines := make([]string, len(problems))
	for i, p := range problems {
		lines[i] = p.String()
	}
	return engine.NewValidationError(
		fmt.Sprintf("invalid declaration: %s", strings.Join(lines, "; ")),
		nil,
	).WithCode(engine.ErrCodeValidation).WithDetail("problems", problems)
}
