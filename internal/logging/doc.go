// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry)
//   - Automatic context field injection (trace_id, operation_id, actor)
//   - Defense-in-depth redaction of sensitive values
//   - Level-aware sampling (errors never sampled)
//
// scrubd exists to keep sensitive values out of text, so its own log
// stream is held to the same standard: raw detected values, salts, and
// keys must never appear in a log entry. The redacting encoder enforces
// that as a last line of defense behind the domain types.
//
// # Usage
//
// Create a logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithOperationID(ctx, opID)
//	logger.Info(ctx, "scrub complete", zap.Int("entities", n))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2026-03-02T10:15:30Z",
//	  "level": "info",
//	  "msg": "scrub complete",
//	  "trace_id": "abc123",
//	  "operation_id": "7f9c...",
//	  "entities": 4
//	}
//
// # Redaction
//
// Sensitive data is redacted at multiple layers:
//  1. Domain primitives (config.Secret type)
//  2. Encoder-level field name filtering
//  3. Encoder-level pattern matching on string values
//
// Use helpers for manual redaction:
//
//	logger.Info(ctx, "key loaded", logging.RedactedString("key", hexKey))
//
// # Sampling
//
// Level-aware sampling keeps bulk scrub runs from flooding the stream.
// Error and above always pass through. Disable for debugging:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertNoSecrets(t)
package logging
