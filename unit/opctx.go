package unit

import (
	"context"

	"github.com/ardnew/softscsi/unit/channel"
)

// OperationContext is the per-worker binding of one in-flight transaction.
// It exists only for the duration of a single interface callback on a
// single worker; callbacks must not retain it past their return.
type OperationContext struct {
	Request    *channel.Request  // The request being serviced
	Response   *channel.Response // The response under assembly
	DataBuffer []byte            // The worker's data buffer
}

// opctxKey is the context key for the bound operation context.
type opctxKey struct{}

// withOperationContext binds opctx for the dynamic extent of a callback.
func withOperationContext(ctx context.Context, opctx *OperationContext) context.Context {
	return context.WithValue(ctx, opctxKey{}, opctx)
}

// GetOperationContext returns the operation context bound to ctx.
//
// It is valid only inside an [Interface] callback, on the context the
// callback was invoked with; anywhere else it returns nil.
func GetOperationContext(ctx context.Context) *OperationContext {
	opctx, _ := ctx.Value(opctxKey{}).(*OperationContext)
	return opctx
}
