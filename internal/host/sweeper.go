package host

import (
	"log/slog"
	"time"
)

// SweeperConfig configures the background sweep of dead arena handles.
type SweeperConfig struct {
	// Interval is how often membership sets are pruned. Default: 60 seconds.
	Interval time.Duration

	// OnSweep is called after each sweep that removed entries, outside the
	// host lock.
	OnSweep func(removed int)
}

// StartSweeper launches a goroutine that periodically prunes released
// handles from the struct manager's membership sets. Enumerations prune
// lazily; the sweeper bounds the memory held by sets nobody enumerates.
// Call StopSweeper to shut it down.
func (h *Host) StartSweeper(cfg *SweeperConfig) {
	if cfg == nil {
		cfg = &SweeperConfig{}
	}
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	h.StopSweeper()
	h.sweepStop = make(chan struct{})
	h.sweepDone = make(chan struct{})

	go h.sweepLoop(cfg, h.sweepStop, h.sweepDone)
	slog.Info("host: sweeper started", "interval", cfg.Interval)
}

// StopSweeper shuts down the sweeper goroutine, if running.
func (h *Host) StopSweeper() {
	if h.sweepStop != nil {
		close(h.sweepStop)
		<-h.sweepDone
		h.sweepStop = nil
		h.sweepDone = nil
	}
}

// Sweep prunes dead handles now and returns the number of entries removed.
func (h *Host) Sweep() int {
	var removed int
	_ = h.Do(func(s *Session) error {
		removed = s.structs.Sweep()
		return nil
	})
	return removed
}

func (h *Host) sweepLoop(cfg *SweeperConfig, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			removed := h.Sweep()
			if removed == 0 {
				continue
			}
			slog.Debug("host: swept dead handles", "removed", removed)
			if cfg.OnSweep != nil {
				cfg.OnSweep(removed)
			}
		}
	}
}
