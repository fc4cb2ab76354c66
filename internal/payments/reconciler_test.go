package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MarcelReig/mitaller/internal/domain"
	"github.com/MarcelReig/mitaller/internal/gateway"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		current domain.PaymentStatus
		event   gateway.EventType
		want    action
	}{
		{"success from pending", domain.PaymentStatusPending, gateway.EventPaymentSucceeded, actionSucceed},
		{"success from processing", domain.PaymentStatusProcessing, gateway.EventPaymentSucceeded, actionSucceed},
		{"success after failure recovers", domain.PaymentStatusFailed, gateway.EventPaymentSucceeded, actionSucceed},
		{"repeated success is a no-op", domain.PaymentStatusSucceeded, gateway.EventPaymentSucceeded, actionNone},
		{"success after refund is a no-op", domain.PaymentStatusRefunded, gateway.EventPaymentSucceeded, actionNone},

		{"failure from pending", domain.PaymentStatusPending, gateway.EventPaymentFailed, actionFail},
		{"failure never downgrades success", domain.PaymentStatusSucceeded, gateway.EventPaymentFailed, actionNone},
		{"failure never downgrades refund", domain.PaymentStatusRefunded, gateway.EventPaymentFailed, actionNone},
		{"repeated failure is a no-op", domain.PaymentStatusFailed, gateway.EventPaymentFailed, actionNone},

		{"refund from succeeded", domain.PaymentStatusSucceeded, gateway.EventChargeRefunded, actionRefund},
		{"refund from pending is a no-op", domain.PaymentStatusPending, gateway.EventChargeRefunded, actionNone},
		{"repeated refund is a no-op", domain.PaymentStatusRefunded, gateway.EventChargeRefunded, actionNone},

		{"unknown event is a no-op", domain.PaymentStatusPending, gateway.EventUnknown, actionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decide(tt.current, tt.event))
		})
	}
}
