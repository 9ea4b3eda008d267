// Package telemetry provides OpenTelemetry instrumentation for scrubd.
//
// # Overview
//
// This package implements distributed tracing and metrics collection using the
// OpenTelemetry Go SDK. It exports telemetry data to an OTEL Collector over
// OTLP (gRPC by default, http/protobuf optionally).
//
// Telemetry carries operation metadata only. Detected values, plaintext, and
// vault contents never become span attributes or metric labels; spans carry
// counts, labels, tiers, and operation IDs.
//
// # Usage
//
// Create telemetry instance:
//
//	cfg := telemetry.NewDefaultConfig()
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Use tracer and meter:
//
//	tracer := tel.Tracer("scrubd.scrub")
//	ctx, span := tracer.Start(ctx, "scrub.scrub")
//	defer span.End()
//
//	meter := tel.Meter("scrubd.scrub")
//	counter, _ := meter.Int64Counter("scrubd.scrub.operations_total")
//	counter.Add(ctx, 1)
//
// # Configuration
//
//	observability:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  service_name: "scrubd"
//	  sampling:
//	    rate: 1.0  # 100% in dev, lower in prod
//	    always_on_errors: true
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//
// # Error Handling
//
// Telemetry failures do not crash the application. If telemetry cannot be
// initialized, the instance degrades gracefully and returns no-op providers;
// Health reports the degradation reason.
//
// # Testing
//
// Use TestTelemetry for tests:
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install(t)
//	tracer := tt.Tracer("test")
//	_, span := tracer.Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
