package builder

import (
	"sync/atomic"
	"time"
)

// progress tracks how far a build has come through its tile set. Workers
// increment it; a reporter goroutine reads snapshots, so the counter is
// atomic and everything else is immutable after creation.
type progress struct {
	total     int64
	startTime time.Time
	processed atomic.Int64
}

func newProgress(total int) *progress {
	return &progress{
		total:     int64(total),
		startTime: time.Now(),
	}
}

func (p *progress) increment() {
	p.processed.Add(1)
}

// snapshot returns the processed count, completion percentage, processing
// rate in tiles per second, and the estimated time remaining. The ETA is
// zero until there is enough signal to compute one.
func (p *progress) snapshot() (done int64, percentage, rate float64, eta time.Duration) {
	done = p.processed.Load()
	elapsed := time.Since(p.startTime)

	if p.total > 0 {
		percentage = float64(done) / float64(p.total) * 100
	}
	if elapsed > 0 {
		rate = float64(done) / elapsed.Seconds()
	}
	if rate > 0 && done < p.total {
		eta = (time.Duration(float64(p.total-done)/rate) * time.Second).Round(time.Second)
	}
	return done, percentage, rate, eta
}
