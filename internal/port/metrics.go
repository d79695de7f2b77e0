package port

import "time"

type Metrics interface {
	ObserveOperation(operation, result string, duration time.Duration)
	IncRetry(operation string)
	IncLockFailure()
	IncCompensation(operation string)
}

type NopMetrics struct{}

func (NopMetrics) ObserveOperation(string, string, time.Duration) {}
func (NopMetrics) IncRetry(string)                                {}
func (NopMetrics) IncLockFailure()                                {}
func (NopMetrics) IncCompensation(string)                         {}
