package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/rs/zerolog"
)

// DefaultStartupTimeout bounds how long a start or restart may take. The
// server warms caches on boot, so it is longer than most services need.
const DefaultStartupTimeout = 60 * time.Second

// Supervisor manages the lifecycle of a long-running service.
type Supervisor interface {
	// UnitPath returns where the service definition for name is written.
	UnitPath(name string) string

	// Install reloads the supervisor after a service definition changed.
	Install(ctx context.Context, name string) error

	IsEnabled(ctx context.Context, name string) (bool, error)
	IsActive(ctx context.Context, name string) (bool, error)
	Enable(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}

// Systemd supervises services through systemctl.
type Systemd struct {
	runner         Runner
	startupTimeout time.Duration
	unitDir        string
	logger         zerolog.Logger
}

// NewSystemd creates a systemd supervisor. A zero startup timeout uses
// DefaultStartupTimeout.
func NewSystemd(runner Runner, startupTimeout time.Duration, logger zerolog.Logger) *Systemd {
	if startupTimeout <= 0 {
		startupTimeout = DefaultStartupTimeout
	}
	return &Systemd{
		runner:         runner,
		startupTimeout: startupTimeout,
		unitDir:        "/etc/systemd/system",
		logger:         logger.With().Str("component", "supervisor").Logger(),
	}
}

// StartupTimeout returns the configured start/restart bound.
func (s *Systemd) StartupTimeout() time.Duration { return s.startupTimeout }

// UnitPath implements Supervisor.
func (s *Systemd) UnitPath(name string) string {
	return s.unitDir + "/" + name + ".service"
}

// Install implements Supervisor.
func (s *Systemd) Install(ctx context.Context, name string) error {
	if _, err := s.systemctl(ctx, "daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload units for %s: %w", name, err)
	}
	return nil
}

// IsEnabled implements Supervisor. is-enabled exits 1 for disabled units.
func (s *Systemd) IsEnabled(ctx context.Context, name string) (bool, error) {
	out, err := s.runner.Run(ctx, Command{
		Name:             "systemctl",
		Args:             []string{"is-enabled", name},
		AllowedExitCodes: []int{1},
	})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out.Stdout)) == "enabled", nil
}

// IsActive implements Supervisor. is-active exits 3 for inactive units.
func (s *Systemd) IsActive(ctx context.Context, name string) (bool, error) {
	out, err := s.runner.Run(ctx, Command{
		Name:             "systemctl",
		Args:             []string{"is-active", name},
		AllowedExitCodes: []int{3},
	})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out.Stdout)) == "active", nil
}

// Enable implements Supervisor.
func (s *Systemd) Enable(ctx context.Context, name string) error {
	if _, err := s.systemctl(ctx, "enable", name); err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}
	s.logger.Info().Str("service", name).Msg("Service enabled")
	return nil
}

// Start implements Supervisor.
func (s *Systemd) Start(ctx context.Context, name string) error {
	if err := s.bounded(ctx, "start", name); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	s.logger.Info().Str("service", name).Msg("Service started")
	return nil
}

// Restart implements Supervisor.
func (s *Systemd) Restart(ctx context.Context, name string) error {
	if err := s.bounded(ctx, "restart", name); err != nil {
		return fmt.Errorf("failed to restart service: %w", err)
	}
	s.logger.Info().Str("service", name).Msg("Service restarted")
	return nil
}

// Stop implements Supervisor.
func (s *Systemd) Stop(ctx context.Context, name string) error {
	if _, err := s.systemctl(ctx, "stop", name); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}
	return nil
}

// bounded runs a lifecycle verb under the startup timeout.
func (s *Systemd) bounded(ctx context.Context, verb, name string) error {
	tctx, cancel := context.WithTimeout(ctx, s.startupTimeout)
	defer cancel()

	_, err := s.systemctl(tctx, verb, name)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return engine.NewTimeoutError(
			fmt.Sprintf("systemctl %s %s did not finish within %s", verb, name, s.startupTimeout), err).
			WithOperation(verb)
	}
	return err
}

func (s *Systemd) systemctl(ctx context.Context, args ...string) (*Output, error) {
	return s.runner.Run(ctx, Command{Name: "systemctl", Args: args})
}
