package domain

import "fmt"

// ErrInvalidTransition is returned when a requested status change is not
// allowed by the order state machine.
type ErrInvalidTransition struct {
	From OrderStatus
	To   OrderStatus
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// TransitionResult describes the effects of an order status change.
// RestoreStock is set on the single transition into CANCELLED, making the
// compensation's exactly-once guard explicit instead of hiding it in a
// persistence hook.
type TransitionResult struct {
	From         OrderStatus
	To           OrderStatus
	RestoreStock bool
}

// Transition validates a status change against the state machine:
// PENDING -> PROCESSING -> SHIPPED -> DELIVERED, with CANCELLED reachable
// from any non-terminal state. The caller must persist the change with a
// compare-and-swap on the previous status so the returned effects fire at
// most once.
func Transition(from, to OrderStatus) (TransitionResult, error) {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return TransitionResult{
				From:         from,
				To:           to,
				RestoreStock: to == OrderStatusCancelled,
			}, nil
		}
	}

	return TransitionResult{}, ErrInvalidTransition{From: from, To: to}
}
