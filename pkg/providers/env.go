package providers

import (
	"context"
	"time"

	"github.com/openfroyo/deckhand/pkg/drift"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/rs/zerolog"
)

// Waiter blocks until the server answers on port.
type Waiter interface {
	WaitUntilUp(ctx context.Context, port int, healthPath string) error
}

// Env holds the collaborators every unit converges through.
type Env struct {
	System     *host.System
	Renderer   host.Renderer
	Installer  host.PlatformInstaller
	Supervisor host.Supervisor
	Detector   *drift.Detector
	Prober     Waiter

	// Inventory answers node source queries. Nil means only declared and
	// solo nodes are available.
	Inventory host.Inventory

	// ProbeTimeout bounds the readiness wait after a start or restart. Zero
	// uses the server's startup timeout.
	ProbeTimeout time.Duration

	// KeyBits sizes generated SSH keys. Zero means 4096.
	KeyBits int

	Logger zerolog.Logger
}

func (e *Env) runner() host.Runner { return e.System.Runner() }

// waitUntilUp runs the readiness barrier for s.
func (e *Env) waitUntilUp(ctx context.Context, port int, healthPath string, fallback time.Duration) error {
	if e.Prober == nil {
		return nil
	}
	timeout := e.ProbeTimeout
	if timeout <= 0 {
		timeout = fallback
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return e.Prober.WaitUntilUp(ctx, port, healthPath)
}
