package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/testutil"
)

func TestGetMatchingRule(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRule(ctx, &model.MerchantRule{
		Pattern:  "CHEVRON",
		Category: "Fuel",
	}))
	require.NoError(t, store.SaveRule(ctx, &model.MerchantRule{
		Pattern:      "CHEVRON TRUCK STOP",
		Category:     "Fleet Fuel",
		Jurisdiction: "TX",
	}))

	tests := []struct {
		name        string
		payee       string
		wantPattern string
		wantNoMatch bool
	}{
		{
			name:        "most specific pattern wins",
			payee:       "Chevron Truck Stop #41",
			wantPattern: "CHEVRON TRUCK STOP",
		},
		{
			name:        "general pattern catches the rest",
			payee:       "CHEVRON 00123",
			wantPattern: "CHEVRON",
		},
		{
			name:        "case insensitive",
			payee:       "chevron station",
			wantPattern: "CHEVRON",
		},
		{
			name:        "no rule matches",
			payee:       "Marriott Hotels",
			wantNoMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := store.GetMatchingRule(ctx, tt.payee)
			require.NoError(t, err)
			if tt.wantNoMatch {
				assert.Nil(t, rule)
				return
			}
			require.NotNil(t, rule)
			assert.Equal(t, tt.wantPattern, rule.Pattern)
		})
	}
}

func TestIncrementRuleUseCount(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRule(ctx, &model.MerchantRule{Pattern: "CHEVRON", Category: "Fuel"}))

	require.NoError(t, store.IncrementRuleUseCount(ctx, "CHEVRON"))
	require.NoError(t, store.IncrementRuleUseCount(ctx, "CHEVRON"))

	rule, err := store.GetMatchingRule(ctx, "Chevron 00123")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, 2, rule.UseCount)
	assert.False(t, rule.LastUsed.IsZero())
}
