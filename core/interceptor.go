package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a unique instance ID for an interceptor
func GenerateID(name string) string {
	return fmt.Sprintf("%s-%s", name, uuid.New().String()[:8])
}

// DiscoveryState describes where an interceptor's lazy-bind loop is.
type DiscoveryState string

const (
	DiscoveryIdle      DiscoveryState = "idle"
	DiscoveryPending   DiscoveryState = "pending"
	DiscoveryBound     DiscoveryState = "bound"
	DiscoveryExhausted DiscoveryState = "exhausted"
	DiscoveryStopped   DiscoveryState = "stopped"
)

// InterceptorInfo is a point-in-time status snapshot served to the host
// for diagnostics.
type InterceptorInfo struct {
	Name              string         `json:"name"`
	ID                string         `json:"id"`
	Initialized       bool           `json:"initialized"`
	Bound             bool           `json:"bound"`
	APIVersion        string         `json:"api_version,omitempty"`
	DiscoveryState    DiscoveryState `json:"discovery_state"`
	DiscoveryAttempts int            `json:"discovery_attempts"`
	LastChange        time.Time      `json:"last_change,omitempty"`
}
