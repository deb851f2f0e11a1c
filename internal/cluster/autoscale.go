package cluster

import (
	"sync"
	"time"
)

// AutoScaler evaluates a load signal against hysteresis bounds and drives
// Supervisor.ScaleUp/ScaleDown. Sustained-above and
// sustained-below windows are tracked independently so a single noisy
// sample can't trigger a scale event.
type AutoScaler struct {
	sup *Supervisor

	HighWaterMark int
	LowWaterMark  int
	MinWorkers    int
	MaxWorkers    int

	mu         sync.Mutex
	aboveSince time.Time
	belowSince time.Time
}

// NewAutoScaler returns an AutoScaler bound to sup with the given hysteresis
// bounds.
func NewAutoScaler(sup *Supervisor, high, low, min, max int) *AutoScaler {
	return &AutoScaler{sup: sup, HighWaterMark: high, LowWaterMark: low, MinWorkers: min, MaxWorkers: max}
}

// Evaluate feeds one load sample (e.g. in-flight request count) into the
// scaler. Call it periodically (e.g. every few seconds) from the owning
// application.
func (a *AutoScaler) Evaluate(load int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	currentCount := a.currentWorkerCount()

	if load >= a.HighWaterMark {
		if a.aboveSince.IsZero() {
			a.aboveSince = now
		}
		a.belowSince = time.Time{}
		if now.Sub(a.aboveSince) >= scaleUpSustain && currentCount < a.MaxWorkers {
			_ = a.sup.ScaleUp(1)
			a.aboveSince = time.Time{}
		}
		return
	}

	if load <= a.LowWaterMark {
		if a.belowSince.IsZero() {
			a.belowSince = now
		}
		a.aboveSince = time.Time{}
		if now.Sub(a.belowSince) >= scaleDownSustain && currentCount > a.MinWorkers {
			_ = a.sup.ScaleDown(1)
			a.belowSince = time.Time{}
		}
		return
	}

	a.aboveSince = time.Time{}
	a.belowSince = time.Time{}
}

func (a *AutoScaler) currentWorkerCount() int {
	a.sup.mu.Lock()
	defer a.sup.mu.Unlock()
	return len(a.sup.workers)
}
