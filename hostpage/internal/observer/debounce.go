package observer

import "time"

// debounceConfig controls the batching behaviour.
type debounceConfig struct {
	// Window is the debounce time. Default: 100ms.
	Window time.Duration
	// MaxRecords flushes immediately once this many mutation records are
	// pending. Default: 500.
	MaxRecords int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 100 * time.Millisecond
	}
	if dc.MaxRecords <= 0 {
		dc.MaxRecords = 500
	}
}

// debouncer coalesces batches reported by the page and emits one merged
// Batch when the window expires or the record count hits the cap.
// Not safe for concurrent use: the observer loop owns it.
type debouncer struct {
	cfg     debounceConfig
	pending Batch
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func(Batch)
}

func newDebouncer(cfg debounceConfig, flushFn func(Batch)) *debouncer {
	cfg.defaults()
	return &debouncer{cfg: cfg, flushFn: flushFn}
}

// add merges b into the pending batch. Returns true if an immediate flush
// was triggered (cap reached).
func (d *debouncer) add(b Batch) bool {
	d.pending = d.pending.merge(b)

	if d.pending.Records >= d.cfg.MaxRecords {
		d.flush()
		return true
	}

	// (Re)start the window timer.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// timerC returns the channel that fires when the debounce window expires.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// flush emits the pending batch, then resets.
func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if d.pending.empty() {
		return
	}
	b := d.pending
	d.pending = Batch{}
	d.flushFn(b)
}
