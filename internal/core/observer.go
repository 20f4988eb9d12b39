package core

import "time"

// Observer receives ingest telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	RunStarted(resourceID string)
	RunFinished(resourceID string, records int, d time.Duration, err error)
	BatchSent(records int, d time.Duration, err error)
	ResourceSkipped(reason string)
}

// NopObserver discards all telemetry.
type NopObserver struct{}

func (NopObserver) RunStarted(string) {}
func (NopObserver) RunFinished(string, int, time.Duration, error) {}
func (NopObserver) BatchSent(int, time.Duration, error) {}
func (NopObserver) ResourceSkipped(string) {}
