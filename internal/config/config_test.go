package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywhistle/tally-ho/internal/common"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr bool
	}{
		{"defaults are valid", "", nil, false},
		{"zero concurrency", "dispatcher.max_concurrent", 0, true},
		{"zero attempts", "dispatcher.max_attempts", 0, true},
		{"assist window narrower than auto window", "matcher.assist_window_days", 1, true},
		{"zero orphan grace", "orphans.age_days", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			SetDefaults()
			if tt.key != "" {
				viper.Set(tt.key, tt.value)
			}

			err := Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
