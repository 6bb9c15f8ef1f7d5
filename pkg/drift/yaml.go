package drift

import (
	"bytes"
	"fmt"

	"github.com/openfroyo/deckhand/pkg/engine"
	"gopkg.in/yaml.v3"
)

// Fields the server assigns; they are not part of the declared job.
var systemFields = []string{"id", "uuid", "project"}

func normalizeYAML(name string, data []byte) (*Document, error) {
	data = stripTagQuirk(data)
	if isBlank(data) {
		return &Document{Absent: true}, nil
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, engine.NewValidationError("failed to parse job YAML", err).
			WithOperation("normalize")
	}

	var jobs []any
	switch v := raw.(type) {
	case nil:
		return &Document{Absent: true}, nil
	case []any:
		jobs = v
	case map[string]any:
		jobs = []any{v}
	default:
		return nil, engine.NewValidationError(fmt.Sprintf("job YAML must be a list of jobs, got %T", raw), nil).
			WithOperation("normalize")
	}

	switch {
	case len(jobs) == 0:
		return &Document{Absent: true}, nil
	case len(jobs) > 1:
		return nil, multipleJobs(len(jobs))
	}

	job, ok := jobs[0].(map[string]any)
	if !ok {
		return nil, engine.NewValidationError(fmt.Sprintf("invalid job format: %T", jobs[0]), nil).
			WithOperation("normalize")
	}

	for _, f := range systemFields {
		delete(job, f)
	}
	job["name"] = name

	if sched, ok := job["schedule"].(map[string]any); ok {
		if expr, ok := sched["crontab"].(string); ok {
			s, err := ParseCrontab(expr)
			if err != nil {
				return nil, err
			}
			delete(sched, "crontab")
			applySchedule(sched, s)
		}
	}

	tree := []any{job}
	canonical, err := encodeYAML(tree)
	if err != nil {
		return nil, err
	}
	return &Document{Canonical: canonical, tree: tree}, nil
}

func applySchedule(sched map[string]any, s Schedule) {
	sched["time"] = map[string]any{
		"seconds": s.Seconds,
		"minute":  s.Minute,
		"hour":    s.Hour,
	}
	sched["month"] = s.Month
	if s.DayOfMonth != "" {
		sched["dayofmonth"] = map[string]any{"day": s.DayOfMonth}
	} else {
		sched["weekday"] = map[string]any{"day": s.Weekday}
	}
	if s.Year != "" {
		sched["year"] = s.Year
	}
}

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, engine.NewInternalError("failed to encode job YAML", err)
	}
	if err := enc.Close(); err != nil {
		return nil, engine.NewInternalError("failed to encode job YAML", err)
	}
	return stripTagQuirk(buf.Bytes()), nil
}
