// Package tenant enforces per-tenant request rates on the HTTP API.
package tenant

import (
	"errors"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Tenant holds per-tenant request limits.
type Tenant struct {
	ID        string
	RateLimit int // requests per second; 0 means no limit
}

// Manager validates incoming requests per tenant: existence and rate limit.
type Manager struct {
	tenants  map[string]*Tenant
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewManager creates a tenant manager with the given tenants.
func NewManager(tenants []Tenant) *Manager {
	m := &Manager{
		tenants:  make(map[string]*Tenant),
		limiters: make(map[string]*rate.Limiter),
	}
	for i := range tenants {
		t := &tenants[i]
		m.tenants[t.ID] = t
		if t.RateLimit > 0 {
			m.limiters[t.ID] = rate.NewLimiter(rate.Limit(t.RateLimit), t.RateLimit*2) // burst = 2s worth
		}
	}
	return m
}

// FromAPIKeys builds one tenant per distinct tenant in apiKeys (key -> tenant),
// each limited to rps requests per second.
func FromAPIKeys(apiKeys map[string]string, rps int) *Manager {
	seen := make(map[string]bool)
	var tenants []Tenant
	for _, id := range apiKeys {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		tenants = append(tenants, Tenant{ID: id, RateLimit: rps})
	}
	return NewManager(tenants)
}

// ValidateRequest checks that the tenant exists and is within its rate limit.
func (m *Manager) ValidateRequest(tenantID string) error {
	m.mu.RLock()
	_, ok := m.tenants[tenantID]
	lim := m.limiters[tenantID]
	m.mu.RUnlock()
	if !ok {
		return ErrTenantNotFound
	}
	if lim != nil && !lim.Allow() {
		return ErrRateLimitExceeded
	}
	return nil
}

// IDs returns the known tenant ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
