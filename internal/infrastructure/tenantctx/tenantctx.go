// Package tenantctx carries the current tenant of a unit of work.
//
// The store is the context.Context of the request or job being processed. There is no
// process-wide tenant variable: two goroutines handling different units of work can never
// observe each other's tenant, and a worker that reuses a goroutine starts every job from a
// fresh context.
package tenantctx

import (
	"context"
	"errors"
	"strconv"
)

// ErrMissingTenantContext is returned when an operation needs a tenant and none is set.
var ErrMissingTenantContext = errors.New("tenant context is missing")

type contextKey struct{}

// entry distinguishes "tenant 0" from "no tenant".
type entry struct {
	id  uint64
	set bool
}

// Set returns a child context whose current tenant is id.
func Set(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, contextKey{}, entry{id: id, set: true})
}

// Clear returns a child context with no current tenant, shadowing any tenant set by a parent.
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, entry{})
}

// Current returns the current tenant and whether one is set.
func Current(ctx context.Context) (uint64, bool) {
	if ctx == nil {
		return 0, false
	}
	e, ok := ctx.Value(contextKey{}).(entry)
	if !ok || !e.set {
		return 0, false
	}
	return e.id, true
}

// MustCurrent returns the current tenant or ErrMissingTenantContext.
func MustCurrent(ctx context.Context) (uint64, error) {
	id, ok := Current(ctx)
	if !ok {
		return 0, ErrMissingTenantContext
	}
	return id, nil
}

// String renders the current tenant for logs, or "" when absent.
func String(ctx context.Context) string {
	id, ok := Current(ctx)
	if !ok {
		return ""
	}
	return strconv.FormatUint(id, 10)
}
