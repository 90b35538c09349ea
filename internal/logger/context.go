package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var opContextKey = contextKey{}

// OpContext holds operation-scoped logging context. The transaction
// engine attaches one per transaction so every log line produced while
// staging carries the transaction and capability identifiers.
type OpContext struct {
	TxnID      string
	Capability string
	Op         string
	StartTime  time.Time
}

// WithContext returns a new context carrying the given OpContext.
func WithContext(ctx context.Context, oc *OpContext) context.Context {
	return context.WithValue(ctx, opContextKey, oc)
}

// FromContext retrieves the OpContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *OpContext {
	if ctx == nil {
		return nil
	}
	oc, _ := ctx.Value(opContextKey).(*OpContext)
	return oc
}

// NewOpContext creates an OpContext for a transaction.
func NewOpContext(txnID, capability string) *OpContext {
	return &OpContext{
		TxnID:      txnID,
		Capability: capability,
		StartTime:  time.Now(),
	}
}

// WithOp returns a copy with the current operation name set.
func (oc *OpContext) WithOp(op string) *OpContext {
	if oc == nil {
		return nil
	}
	clone := *oc
	clone.Op = op
	return &clone
}
