package telemetry

import "sync"

// ResetMetricsForTest clears cached metric instruments so tests can
// re-register them against a fresh meter provider.
func ResetMetricsForTest() {
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	forwardCounter = nil
	forwardLatency = nil
	sealVerifiedCounter = nil
	sealFailedCounter = nil
	probeAttemptCounter = nil
	blockedTargetCounter = nil
}
