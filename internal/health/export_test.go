package health

import "time"

// CryptoRandDurationExported exports cryptoRandDuration for testing.
var CryptoRandDurationExported = cryptoRandDuration

// RefreshAll exports refreshAll for testing.
func (h *Checker) RefreshAll() {
	h.refreshAll()
}

// NewTestBreaker builds a breaker named "test-service" with explicit durations.
func NewTestBreaker(threshold int, recovery time.Duration) *CircuitBreaker {
	return newCircuitBreaker("test-service", threshold, recovery, nil)
}
