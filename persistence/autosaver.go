package persistence

import (
	"log"
	"time"
)

// AutoSaver periodically snapshots a strategy's state via a ticker-driven
// loop with a Start/Stop/done-channel shape. A save failure is logged and
// the loop continues — auto-save must never take the strategy engine
// down.
type AutoSaver struct {
	repo         *Repository
	strategyName string
	interval     time.Duration
	snapshotFn   func() Snapshot
	done         chan struct{}
}

// NewAutoSaver builds an AutoSaver that calls snapshotFn on each tick and
// persists the result under strategyName.
func NewAutoSaver(repo *Repository, strategyName string, interval time.Duration, snapshotFn func() Snapshot) *AutoSaver {
	return &AutoSaver{
		repo:         repo,
		strategyName: strategyName,
		interval:     interval,
		snapshotFn:   snapshotFn,
		done:         make(chan struct{}),
	}
}

// Run blocks, saving on every tick until Stop is called. Intended to be
// launched in its own goroutine.
func (a *AutoSaver) Run() {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.saveOnce()
		case <-a.done:
			return
		}
	}
}

func (a *AutoSaver) saveOnce() {
	snap := a.snapshotFn()
	if err := a.repo.Save(a.strategyName, snap); err != nil {
		log.Printf("⚠️ auto-save failed for strategy %q: %v", a.strategyName, err)
	}
}

// Stop ends the auto-save loop.
func (a *AutoSaver) Stop() {
	close(a.done)
}
