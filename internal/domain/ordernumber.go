package domain

import (
	"math/rand/v2"
	"time"
)

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNumber generates a human-readable order identifier in the form
// ORD-YYYYMMDD-XXXXXX. Six random alphanumeric characters give ~2 billion
// combinations per day; the unique constraint catches the rare collision
// and the checkout retries with a fresh number.
func NewOrderNumber(now time.Time) string {
	buf := make([]byte, 0, 19)
	buf = append(buf, "ORD-"...)
	buf = now.AppendFormat(buf, "20060102")
	buf = append(buf, '-')
	for range 6 {
		buf = append(buf, orderNumberAlphabet[rand.IntN(len(orderNumberAlphabet))])
	}
	return string(buf)
}
