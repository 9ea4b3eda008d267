package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTestLogger_Assertions(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "scrub complete", zap.String("operation_id", "op-1"))
	tl.Warn(ctx, "entity skipped")

	tl.AssertLogged(t, zapcore.InfoLevel, "scrub complete")
	tl.AssertLogged(t, zapcore.WarnLevel, "skipped")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "scrub complete")
	tl.AssertField(t, "scrub complete", "operation_id", "op-1")
}

func TestTestLogger_NoSecretsPassesOnCleanStream(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "key loaded", RedactedString("private_key", "raw-bytes-here"))
	tl.Info(ctx, "descrub denied", zap.String("actor", "mallory"))

	tl.AssertNoSecrets(t)
}

func TestTestLogger_Reset(t *testing.T) {
	tl := NewTestLogger()

	tl.Info(context.Background(), "before reset")
	tl.Reset()

	if got := len(tl.All()); got != 0 {
		t.Fatalf("expected empty log after reset, got %d entries", got)
	}
}

func TestTestLogger_FilterMessage(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "first")
	tl.Info(ctx, "second")

	if got := tl.FilterMessage("second").Len(); got != 1 {
		t.Fatalf("expected 1 filtered entry, got %d", got)
	}
}
