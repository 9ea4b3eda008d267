package logging

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/scrubd/internal/config"
)

// encodeOne runs a single entry with fields through the redacting encoder
// and returns the encoded line.
func encodeOne(t *testing.T, cfg RedactionConfig, fields ...zap.Field) string {
	t.Helper()

	enc, err := NewRedactingEncoder(newEncoder("json"), cfg)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Message: "test entry",
	}, fields)
	require.NoError(t, err)
	return buf.String()
}

func TestRedactingEncoder_SensitiveKeyNeverEncoded(t *testing.T) {
	cfg := NewDefaultConfig().Redaction

	line := encodeOne(t, cfg, zap.String("value", "jane@example.com"))

	assert.NotContains(t, line, "jane@example.com")
	assert.Contains(t, line, "[REDACTED]")
}

func TestRedactingEncoder_PatternMatchNeverEncoded(t *testing.T) {
	cfg := NewDefaultConfig().Redaction

	// Key not on the deny list, value shaped like a card number
	line := encodeOne(t, cfg, zap.String("detail", "card 4111 1111 1111 1111 declined"))

	assert.NotContains(t, line, "4111 1111 1111 1111")
	assert.Contains(t, line, "[REDACTED:pattern]")
}

func TestRedactingEncoder_KeyMatchIsCaseInsensitive(t *testing.T) {
	cfg := NewDefaultConfig().Redaction

	line := encodeOne(t, cfg, zap.String("Salt", "change-me"))

	assert.NotContains(t, line, "change-me")
}

func TestRedactingEncoder_NonSensitiveFieldsPassThrough(t *testing.T) {
	cfg := NewDefaultConfig().Redaction

	line := encodeOne(t, cfg,
		zap.String("operation_id", "op-42"),
		zap.Int("entities", 3),
	)

	assert.Contains(t, line, "op-42")
	assert.Contains(t, line, `"entities":3`)
}

func TestRedactingEncoder_NonStringSensitiveField(t *testing.T) {
	cfg := NewDefaultConfig().Redaction

	line := encodeOne(t, cfg, zap.Int("token", 12345))

	assert.NotContains(t, line, "12345")
	assert.Contains(t, line, "[REDACTED]")
}

func TestRedactingEncoder_WithFieldsGoThroughAddString(t *testing.T) {
	// Fields attached via With() reach the encoder through AddString
	// rather than EncodeEntry; both paths must redact.
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	enc.AddString("plaintext", "raw data")
	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Message: "m",
	}, nil)
	require.NoError(t, err)

	assert.NotContains(t, buf.String(), "raw data")
	assert.Contains(t, buf.String(), "[REDACTED]")
}

func TestNewRedactingEncoder_InvalidPattern(t *testing.T) {
	cfg := RedactionConfig{
		Enabled:  true,
		Patterns: []string{"[invalid("},
	}

	_, err := NewRedactingEncoder(newEncoder("json"), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redaction pattern")
}

func TestNewRedactingEncoder_PatternTooLong(t *testing.T) {
	cfg := RedactionConfig{
		Enabled:  true,
		Patterns: []string{strings.Repeat("a", 201)},
	}

	_, err := NewRedactingEncoder(newEncoder("json"), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern too long")
}

func TestNewRedactingEncoder_DisabledPassesEverything(t *testing.T) {
	cfg := RedactionConfig{
		Enabled:  false,
		Fields:   []string{"value"},
		Patterns: []string{"[invalid("},
	}

	line := encodeOne(t, cfg, zap.String("value", "kept as-is"))
	assert.Contains(t, line, "kept as-is")
}

func TestRedactingEncoder_Clone(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	clone, ok := enc.Clone().(*RedactingEncoder)
	require.True(t, ok, "clone must stay a redacting encoder")
	assert.Equal(t, enc.redactFields, clone.redactFields)
}

func TestSecretField(t *testing.T) {
	line := encodeOne(t, NewDefaultConfig().Redaction,
		Secret("identifier_salt", config.Secret("hunter2hunter2")))

	assert.NotContains(t, line, "hunter2hunter2")
	assert.Contains(t, line, "[REDACTED:14]")
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("key_material", "0123456789abcdef")
	assert.Equal(t, "[REDACTED:16]", f.String)
}
