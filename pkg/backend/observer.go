package backend

import "time"

// Outcome labels for Observer.OperationDone.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"
	OutcomeCanceled  = "canceled"
)

// Observer receives registry events for metrics. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	OperationDone(storeID, op, outcome string, elapsed time.Duration)
	Retried(storeID, op string)
	FailedOver(from, to string, leg Leg)
	StatusChanged(storeID string, from, to Status)
	ActiveChanged(from, to string)
	Probed(storeID string, healthy bool, latency time.Duration)
	HandlesOpen(n int64)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) OperationDone(string, string, string, time.Duration) {}
func (NopObserver) Retried(string, string)                              {}
func (NopObserver) FailedOver(string, string, Leg)                      {}
func (NopObserver) StatusChanged(string, Status, Status)                {}
func (NopObserver) ActiveChanged(string, string)                        {}
func (NopObserver) Probed(string, bool, time.Duration)                  {}
func (NopObserver) HandlesOpen(int64)                                   {}
