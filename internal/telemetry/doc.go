// Package telemetry sets up OpenTelemetry tracing and metrics for sketchd.
//
// Each domain package records its own instruments against the global
// MeterProvider (see the telemetry.go file in controller and validator);
// this package only installs the providers and exporters.
//
//	tel, err := telemetry.New(ctx, telemetry.ConfigFrom(cfg.Observability, version))
//	defer tel.Shutdown(ctx)
//
// Telemetry failures never stop the daemon. A provider that cannot be
// created leaves the instance degraded and the global no-op in place.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
