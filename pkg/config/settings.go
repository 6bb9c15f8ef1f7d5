package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/openfroyo/deckhand/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// DefaultSettingsPath is where the CLI looks for its settings file.
const DefaultSettingsPath = "/etc/deckhand/deckhand.yaml"

// Settings configures the deckhand tool itself, as opposed to the server
// it manages.
type Settings struct {
	// StateDB is the SQLite run journal. The run lock lives next to it.
	StateDB string `yaml:"state_db" json:"state_db" validate:"required"`

	// TemplateDir holds template overrides, <id>.tmpl.
	TemplateDir string `yaml:"template_dir,omitempty" json:"template_dir,omitempty"`

	// PolicyPaths are rego files or directories checked before a run.
	PolicyPaths []string `yaml:"policy_paths,omitempty" json:"policy_paths,omitempty"`

	// InventoryFile is a YAML or JSON node list searched by node sources.
	// When empty the SQLite inventory is used.
	InventoryFile string `yaml:"inventory_file,omitempty" json:"inventory_file,omitempty"`

	// ProbeTimeout bounds the readiness wait after a restart.
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout" validate:"min=0"`

	// Solo describes the local machine as the only node when a node
	// source has no other nodes.
	Solo bool `yaml:"solo,omitempty" json:"solo,omitempty"`

	Telemetry TelemetrySettings `yaml:"telemetry" json:"telemetry"`
}

// TelemetrySettings is the settings file view of telemetry.Config.
type TelemetrySettings struct {
	LogLevel      string  `yaml:"log_level" json:"log_level" validate:"oneof=trace debug info warn error fatal"`
	LogFormat     string  `yaml:"log_format" json:"log_format" validate:"oneof=console json"`
	Tracing       string  `yaml:"tracing" json:"tracing" validate:"oneof=none stdout otlp"`
	OTLPEndpoint  string  `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`
	SamplingRate  float64 `yaml:"sampling_rate" json:"sampling_rate" validate:"min=0,max=1"`
	MetricsListen string  `yaml:"metrics_listen,omitempty" json:"metrics_listen,omitempty"`

	// ResourceAttributes are attached to every exported trace.
	ResourceAttributes map[string]string `yaml:"resource_attributes,omitempty" json:"resource_attributes,omitempty"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		StateDB:      "/var/lib/deckhand/state.db",
		ProbeTimeout: 5 * time.Minute,
		Telemetry: TelemetrySettings{
			LogLevel:     "info",
			LogFormat:    "console",
			Tracing:      "none",
			SamplingRate: 1.0,
		},
	}
}

// LoadSettings reads path over the defaults. A missing file yields the
// defaults when optional is true.
func LoadSettings(path string, optional bool) (*Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// Validate checks the settings' struct tags.
func (s *Settings) Validate() error {
	return ValidateStruct(NewValidator(), s)
}

// TelemetryConfig maps the settings onto a telemetry configuration.
func (s *Settings) TelemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Logging.Level = s.Telemetry.LogLevel
	cfg.Logging.Format = s.Telemetry.LogFormat

	if s.Telemetry.Tracing != "" && s.Telemetry.Tracing != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = s.Telemetry.Tracing
		cfg.Tracing.Endpoint = s.Telemetry.OTLPEndpoint
		cfg.Tracing.SamplingRate = s.Telemetry.SamplingRate
	}
	for k, v := range s.Telemetry.ResourceAttributes {
		cfg.ResourceAttributes[k] = v
	}

	if s.Telemetry.MetricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = s.Telemetry.MetricsListen
	}
	return cfg
}

// Write saves the settings as YAML with mode 0644.
func (s *Settings) Write(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
