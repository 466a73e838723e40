// Package requestctx carries the authenticated tenant through a request and
// maps caller-visible alias scopes to tenant-private registry scopes.
package requestctx

import (
	"context"
	"strings"
)

type contextKey struct{}

var tenantKey = &contextKey{}

// Separator joins tenant and scope in a registry scope id.
const Separator = "/"

// WithTenant stores the tenant in ctx.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// Tenant returns the tenant from ctx, or "" if not set.
func Tenant(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey).(string)
	return v
}

// Scope returns the registry scope for a caller-visible scope. Without a
// tenant the scope is used as is.
func Scope(ctx context.Context, scope string) string {
	tenant := Tenant(ctx)
	if tenant == "" {
		return scope
	}
	return tenant + Separator + scope
}

// Visible is the inverse of Scope; ok is false for scopes owned by another tenant.
func Visible(ctx context.Context, stored string) (string, bool) {
	tenant := Tenant(ctx)
	if tenant == "" {
		return stored, true
	}
	return strings.CutPrefix(stored, tenant+Separator)
}
