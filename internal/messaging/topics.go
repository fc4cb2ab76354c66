// Package messaging publishes and consumes domain events over Kafka with
// trace context propagated in message headers. Events are published by
// HTTP handlers after the database transaction commits; the notification
// worker consumes them.
package messaging

// Topics carrying the domain events. Messages are keyed by order id so
// all events for one order land on the same partition, in order.
const (
	TopicOrderPlaced      = "order.placed"
	TopicOrderCancelled   = "order.cancelled"
	TopicPaymentSucceeded = "payment.succeeded"
)
