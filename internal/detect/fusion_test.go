package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuse(t *testing.T) {
	tests := []struct {
		name   string
		mode   FusionMode
		rule   float64
		signal float64
		want   float64
	}{
		{"max takes signal", FuseMax, 0.8, 0.95, 0.95},
		{"max takes rule", FuseMax, 0.99, 0.5, 0.99},
		{"avg", FuseAvg, 0.8, 0.6, 0.7},
		{"weighted favors rule", FuseWeighted(0.75), 0.8, 0.4, 0.7},
		{"weighted zero is signal", FuseWeighted(0), 0.8, 0.4, 0.4},
		{"weight clamped high", FuseWeighted(3), 0.8, 0.4, 0.8},
		{"weight clamped low", FuseWeighted(-1), 0.8, 0.4, 0.4},
		{"zero mode is max", FusionMode{}, 0.3, 0.6, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Fuse(tt.rule, tt.signal, tt.mode), 1e-9)
		})
	}
}

func TestParseFusionMode(t *testing.T) {
	mode, err := ParseFusionMode("max")
	require.NoError(t, err)
	assert.Equal(t, "max", mode.String())

	mode, err = ParseFusionMode("")
	require.NoError(t, err)
	assert.Equal(t, "max", mode.String())

	mode, err = ParseFusionMode("avg")
	require.NoError(t, err)
	assert.Equal(t, "avg", mode.String())

	mode, err = ParseFusionMode("weighted:0.7")
	require.NoError(t, err)
	assert.Equal(t, "weighted:0.7", mode.String())

	_, err = ParseFusionMode("weighted:abc")
	assert.Error(t, err)

	_, err = ParseFusionMode("median")
	assert.Error(t, err)
}
