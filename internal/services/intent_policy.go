package services

import (
	"time"

	"aitwin/internal/models"
)

// DefaultLocalAdapter is the fine-tuned variant served by the local backend
const DefaultLocalAdapter = "phi3"

// IntentPolicy describes how a query of one intent is cached and routed
type IntentPolicy struct {
	TTL       time.Duration
	Cacheable bool
	Backend   string
	Variant   string
}

// PolicyTable maps each intent to its policy
type PolicyTable map[models.Intent]IntentPolicy

// NewPolicyTable builds the intent policy table.
// Factual answers live longest, personal answers are never cached.
func NewPolicyTable(factualTTL, defaultTTL time.Duration) PolicyTable {
	return PolicyTable{
		models.IntentFactual: {
			TTL:       factualTTL,
			Cacheable: true,
			Backend:   models.BackendGeneral,
		},
		models.IntentCoding: {
			TTL:       defaultTTL,
			Cacheable: true,
			Backend:   models.BackendGeneral,
		},
		models.IntentCasual: {
			TTL:       defaultTTL,
			Cacheable: true,
			Backend:   models.BackendLocal,
			Variant:   DefaultLocalAdapter,
		},
		models.IntentPersonal: {
			Cacheable: false,
			Backend:   models.BackendLocal,
			Variant:   DefaultLocalAdapter,
		},
	}
}

// DefaultPolicyTable returns the table with a 7 day factual TTL and 1 hour otherwise
func DefaultPolicyTable() PolicyTable {
	return NewPolicyTable(7*24*time.Hour, time.Hour)
}

// For returns the policy of an intent. Unknown intents are treated as casual.
func (p PolicyTable) For(intent models.Intent) IntentPolicy {
	if policy, ok := p[intent]; ok {
		return policy
	}
	return p[models.IntentCasual]
}
