package telemetry_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/deckhand/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	zerolog.Ctx(ctx).Info().Msg("deckhand started")

	// Output varies, no output specified
}

// Example_metricsCollection demonstrates recording converge metrics.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		panic(err)
	}

	metrics.RecordRunStarted("apply")
	metrics.RecordStep("user", "enable", true, 3*time.Millisecond)
	metrics.RecordNotification("rebuild_realm", true)
	metrics.RecordProbeAttempt("http", "up")
	metrics.RecordRunCompleted("succeeded", 2*time.Second)

	families, _ := metrics.Registry().Gather()
	fmt.Println(len(families) > 0)
	// Output: true
}

// Example_instrumentedOperation demonstrates the StartOperation helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DefaultConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ic := telemetry.StartOperation(ctx, "drift.check",
		telemetry.AttrResource.String("job[nightly-backup]"),
	)
	err := errors.New("rd-jobs exited 1")
	ic.Logger.WithError(err).Warn("Could not fetch remote job")
	ic.End(err)

	// Output varies, no output specified
}

// Example_nilMetrics shows that a nil collector is safe to use.
func Example_nilMetrics() {
	var metrics *telemetry.Metrics
	metrics.RecordRunStarted("dry_run")
	metrics.RecordError("validation", "INVALID_NAME")
	fmt.Println(metrics.Registry() == nil)
	// Output: true
}
