package worklog

import "time"

// Metrics captures worker-level telemetry.
type Metrics interface {
	// ObserveExecuteDuration records the time spent in one executor attempt.
	ObserveExecuteDuration(duration time.Duration)
	// AddProcessed increments the count of successfully executed entries.
	AddProcessed(count int)
	// AddErrors increments the count of failed attempts.
	AddErrors(count int)
	// AddRetries increments the count of scheduled retries.
	AddRetries(count int)
	// AddDead increments the count of dead-lettered entries.
	AddDead(count int)
	// SetActiveConsumers updates the number of running consumers.
	SetActiveConsumers(count int)
	// SetOutstanding updates the number of entries read but not yet completed.
	SetOutstanding(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveExecuteDuration implements Metrics.
func (NopMetrics) ObserveExecuteDuration(time.Duration) {}

// AddProcessed implements Metrics.
func (NopMetrics) AddProcessed(int) {}

// AddErrors implements Metrics.
func (NopMetrics) AddErrors(int) {}

// AddRetries implements Metrics.
func (NopMetrics) AddRetries(int) {}

// AddDead implements Metrics.
func (NopMetrics) AddDead(int) {}

// SetActiveConsumers implements Metrics.
func (NopMetrics) SetActiveConsumers(int) {}

// SetOutstanding implements Metrics.
func (NopMetrics) SetOutstanding(int) {}
