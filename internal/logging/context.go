package logging

import (
	"context"

	"github.com/google/uuid"
)

// Correlation IDs tie together the log lines of one fetch attempt or one
// API request. They ride on the context so call sites never thread them
// by hand.

type ctxKey int

const correlationKey ctxKey = iota

// ContextWithCorrelation returns a child context carrying the ID.
func ContextWithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID reports the ID carried by ctx; empty when none was set.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// NewCorrelationID mints a fresh random ID.
func NewCorrelationID() string {
	return uuid.NewString()
}
