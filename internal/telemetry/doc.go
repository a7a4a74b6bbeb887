// Package telemetry provides OpenTelemetry instrumentation for vecfs.
//
// It builds tracer and meter providers exporting over OTLP (gRPC or
// HTTP/protobuf) and installs them globally, so packages that call
// otel.Tracer("vecfs.<pkg>") and otel.Meter(...) pick them up without
// holding a reference.
//
// # Usage
//
//	cfg := telemetry.FromAppConfig(appCfg, version)
//	tel, err := telemetry.New(ctx, cfg, telemetry.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// # Configuration
//
//	observability:
//	  enable_telemetry: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  service_name: "vecfsd"
//	  sampling_rate: 0.1
//	  always_sample: ["vectorfs.save"]
//
// Spans and metrics carry the node name (vecfs.node, service.instance.id)
// and storage backend (vecfs.storage.backend) as resource attributes.
// Root spans listed in always_sample are kept at any sampling rate.
//
// # Error Handling
//
// Telemetry failures do not crash the application. If a provider cannot be
// initialized, the instance is marked degraded and the global no-op
// providers stay in place.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install(t)
//	// exercise code that starts spans
//	tt.AssertSpanExists(t, "vectorfs.save")
package telemetry
