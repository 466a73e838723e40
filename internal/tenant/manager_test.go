package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_ValidateRequest_TenantNotFound(t *testing.T) {
	m := NewManager([]Tenant{{ID: "acme", RateLimit: 10}})
	assert.ErrorIs(t, m.ValidateRequest("other"), ErrTenantNotFound)
}

func TestManager_ValidateRequest_Unlimited(t *testing.T) {
	m := NewManager([]Tenant{{ID: "acme"}})
	for i := 0; i < 100; i++ {
		assert.NoError(t, m.ValidateRequest("acme"))
	}
}

func TestManager_ValidateRequest_RateLimited(t *testing.T) {
	m := NewManager([]Tenant{{ID: "acme", RateLimit: 1}, {ID: "globex", RateLimit: 1}})

	// burst is two seconds' worth
	assert.NoError(t, m.ValidateRequest("acme"))
	assert.NoError(t, m.ValidateRequest("acme"))
	assert.ErrorIs(t, m.ValidateRequest("acme"), ErrRateLimitExceeded)

	assert.NoError(t, m.ValidateRequest("globex"), "limits are per tenant")
}

func TestFromAPIKeys(t *testing.T) {
	m := FromAPIKeys(map[string]string{
		"k1": "acme",
		"k2": "acme",
		"k3": "globex",
	}, 5)
	assert.Equal(t, []string{"acme", "globex"}, m.IDs())
	assert.NoError(t, m.ValidateRequest("acme"))
	assert.ErrorIs(t, m.ValidateRequest("initech"), ErrTenantNotFound)
}
