package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to    OrderStatus
		wantErr     bool
		wantRestore bool
	}{
		{OrderStatusPending, OrderStatusProcessing, false, false},
		{OrderStatusPending, OrderStatusCancelled, false, true},
		{OrderStatusProcessing, OrderStatusShipped, false, false},
		{OrderStatusProcessing, OrderStatusCancelled, false, true},
		{OrderStatusShipped, OrderStatusDelivered, false, false},
		{OrderStatusShipped, OrderStatusCancelled, false, true},

		{OrderStatusPending, OrderStatusShipped, true, false},
		{OrderStatusPending, OrderStatusDelivered, true, false},
		{OrderStatusProcessing, OrderStatusPending, true, false},
		{OrderStatusDelivered, OrderStatusCancelled, true, false},
		{OrderStatusCancelled, OrderStatusPending, true, false},
		{OrderStatusCancelled, OrderStatusCancelled, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			result, err := Transition(tt.from, tt.to)
			if tt.wantErr {
				var invalid ErrInvalidTransition
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, tt.from, invalid.From)
				assert.Equal(t, tt.to, invalid.To)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.from, result.From)
			assert.Equal(t, tt.to, result.To)
			assert.Equal(t, tt.wantRestore, result.RestoreStock)
		})
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatusPending.Terminal())
	assert.False(t, OrderStatusProcessing.Terminal())
	assert.False(t, OrderStatusShipped.Terminal())
}
