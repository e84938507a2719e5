package app

import (
	"sync/atomic"

	"github.com/florianilch/copilot-proxy/internal/proxy"
)

// Health tracks whether the proxy can serve Copilot traffic. It becomes
// ready once the first service token has been obtained.
// All methods are thread-safe.
type Health struct {
	ready atomic.Bool
}

// Compile-time check that Health implements proxy.ReadinessChecker interface
var _ proxy.ReadinessChecker = (*Health)(nil)

// NewHealth creates a Health that is not ready.
func NewHealth() *Health {
	return &Health{}
}

// SetReady updates the readiness state.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady implements proxy.ReadinessChecker.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}
