// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	// Operation correlation: one scrub or descrub, all its log entries
	if opID := OperationIDFromContext(ctx); opID != "" {
		fields = append(fields, zap.String("operation_id", opID))
	}

	// Acting principal for descrub operations
	if actor := ActorFromContext(ctx); actor != "" {
		fields = append(fields, zap.String("actor", actor))
	}

	return fields
}

// Context key types
type operationCtxKey struct{}
type actorCtxKey struct{}

const maxIDLen = 128

// idPattern allows alphanumeric, hyphen, underscore, dot.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateID validates an operation ID or actor name.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, dot, hyphen, underscore)", name)
	}
	return nil
}

// OperationIDFromContext extracts the operation ID from context.
func OperationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(operationCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithOperationID adds an operation ID to context.
// Panics if the ID is empty or contains invalid characters.
func WithOperationID(ctx context.Context, operationID string) context.Context {
	if err := validateID(operationID, "operationID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, operationCtxKey{}, operationID)
}

// ActorFromContext extracts the actor name from context.
func ActorFromContext(ctx context.Context) string {
	if a, ok := ctx.Value(actorCtxKey{}).(string); ok {
		return a
	}
	return ""
}

// WithActor adds the acting principal to context.
// Panics if the name is empty or contains invalid characters.
func WithActor(ctx context.Context, actor string) context.Context {
	if err := validateID(actor, "actor"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
