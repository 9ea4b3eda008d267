package telemetry

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/scrubd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// enabledConfig returns a valid enabled config for mutation in tests.
func enabledConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	return cfg
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled) // Disabled by default; no collector required to scrub
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "scrubd", cfg.ServiceName)
	assert.Equal(t, "0.1.0", cfg.ServiceVersion)
	assert.True(t, cfg.Insecure) // Insecure by default for local dev
	assert.False(t, cfg.TLSSkipVerify)
	assert.Equal(t, 1.0, cfg.Sampling.Rate)
	assert.True(t, cfg.Sampling.AlwaysOnErrors)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Metrics.ExportInterval.Duration())
	assert.Equal(t, 5*time.Second, cfg.Shutdown.Timeout.Duration())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid enabled config",
			mutate: func(c *Config) {},
		},
		{
			name: "disabled config skips validation",
			mutate: func(c *Config) {
				c.Enabled = false
				c.Endpoint = ""
				c.ServiceName = ""
			},
		},
		{
			name: "missing endpoint",
			mutate: func(c *Config) {
				c.Endpoint = ""
			},
			wantErr: "endpoint is required",
		},
		{
			name: "unknown protocol",
			mutate: func(c *Config) {
				c.Protocol = "thrift"
			},
			wantErr: "protocol must be grpc or http/protobuf",
		},
		{
			name: "empty protocol defaults to grpc",
			mutate: func(c *Config) {
				c.Protocol = ""
			},
		},
		{
			name: "http protocol accepted",
			mutate: func(c *Config) {
				c.Protocol = "http/protobuf"
			},
		},
		{
			name: "missing service name",
			mutate: func(c *Config) {
				c.ServiceName = ""
			},
			wantErr: "service_name is required",
		},
		{
			name: "missing service version",
			mutate: func(c *Config) {
				c.ServiceVersion = ""
			},
			wantErr: "service_version is required",
		},
		{
			name: "insecure remote endpoint rejected",
			mutate: func(c *Config) {
				c.Endpoint = "collector.example.com:4317"
			},
			wantErr: "insecure connections to remote endpoints are not allowed",
		},
		{
			name: "remote endpoint with TLS accepted",
			mutate: func(c *Config) {
				c.Endpoint = "collector.example.com:4317"
				c.Insecure = false
			},
		},
		{
			name: "sampling rate too low",
			mutate: func(c *Config) {
				c.Sampling.Rate = -0.1
			},
			wantErr: "sampling.rate must be between 0 and 1",
		},
		{
			name: "sampling rate too high",
			mutate: func(c *Config) {
				c.Sampling.Rate = 1.1
			},
			wantErr: "sampling.rate must be between 0 and 1",
		},
		{
			name: "invalid metrics export interval",
			mutate: func(c *Config) {
				c.Metrics.ExportInterval = config.Duration(0)
			},
			wantErr: "metrics.export_interval must be positive",
		},
		{
			name: "zero interval fine when metrics disabled",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.ExportInterval = config.Duration(0)
			},
		},
		{
			name: "invalid shutdown timeout",
			mutate: func(c *Config) {
				c.Shutdown.Timeout = config.Duration(0)
			},
			wantErr: "shutdown.timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := enabledConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		local    bool
	}{
		{"localhost:4317", true},
		{"localhost", true},
		{"127.0.0.1:4317", true},
		{"127.8.1.2:4317", true},
		{"[::1]:4317", true},
		{"[::1]", true},
		{"::1", true},
		{"collector.example.com:4317", false},
		{"10.0.0.5:4317", false},
		{"otel.internal", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.local, cfg.isLocalEndpoint())
		})
	}
}
