package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefault(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected Config
	}{
		{
			name:   "empty",
			config: Config{},
			expected: Config{
				Type:           TypeWazero,
				Mode:           ModeInterpreter,
				StartFunctions: []string{"_initialize"},
			},
		},
		{
			name:   "explicit values are kept",
			config: Config{Type: "stub", Mode: ModeCompiled, StartFunctions: []string{}},
			expected: Config{
				Type:           "stub",
				Mode:           ModeCompiled,
				StartFunctions: []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Default()
			assert.Equal(t, tt.expected, tt.config)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "empty", config: Config{}},
		{name: "interpreter", config: Config{Mode: ModeInterpreter}},
		{name: "compiled", config: Config{Mode: ModeCompiled}},
		{name: "invalid mode", config: Config{Mode: "invalid"}, wantErr: true},
		{name: "max memory", config: Config{MemoryLimitPages: MaxMemoryPages}},
		{name: "memory over max", config: Config{MemoryLimitPages: MaxMemoryPages + 1}, wantErr: true},
		{name: "env pairs", config: Config{Env: []string{"A=1", "B="}}},
		{name: "env without separator", config: Config{Env: []string{"A"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}
