// Package telemetry provides logging, tracing and metrics for deckhand.
//
// Structured logging uses zerolog, tracing uses OpenTelemetry and metrics
// use Prometheus. All three are built from one Config:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Logging
//
// Logs go to stderr by default so that command output on stdout (plans,
// drift reports, history tables) stays machine-readable. The logger is
// stored in the context and read back with zerolog.Ctx:
//
//	zerolog.Ctx(ctx).Info().Str("resource", "project[ops]").Msg("Project converged")
//
// # Tracing
//
// A converge run produces one "converge.run" span with a child
// "converge.resource" span per resource and a "notifications.flush" span
// per flush. Exporters: otlp (gRPC), stdout (pretty-printed to stderr) and
// none.
//
// # Metrics
//
// Metrics are off by default. When enabled, Metrics.Serve exposes them on
// the configured address until its context is cancelled:
//
//	deckhand_runs_started_total{mode}
//	deckhand_runs_completed_total{status}
//	deckhand_run_duration_seconds{status}
//	deckhand_steps_executed_total{kind,action,changed}
//	deckhand_notifications_fired_total{action,changed}
//	deckhand_probe_attempts_total{phase,outcome}
//	deckhand_drift_detections_total{format,status}
//	deckhand_errors_by_kind_total{kind}
//
// Every Metrics method is safe to call on a nil or disabled *Metrics.
package telemetry
