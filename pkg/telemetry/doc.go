// Package telemetry wires structured logging (zerolog), tracing
// (OpenTelemetry) and metrics (Prometheus) for chartkit.
//
// Build everything from one configuration at startup:
//
//	tel, err := telemetry.New(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	p := processor.New(loader, validator,
//	    processor.WithLogger(tel.Logger),
//	    processor.WithObserver(tel.Metrics),
//	)
//
// # Metrics
//
// Metrics implements the observer interfaces of the processor, preflight
// and dataload packages:
//
//	chartkit_documents_processed_total{status}
//	chartkit_document_duration_seconds{status}
//	chartkit_stage_duration_seconds{stage}
//	chartkit_errors_total{kind,code}
//	chartkit_loader_cache_total{result}
//	chartkit_preflight_requests_total{ready}
//	chartkit_runs_completed_total{status}
//
// A disabled Metrics records nothing and its Handler answers 404.
//
// # Tracing
//
// When tracing is enabled NewTracer installs a global tracer provider; the
// processor starts one span per document and one per pipeline stage.
// Exporters: otlp (gRPC), stdout and none.
package telemetry
