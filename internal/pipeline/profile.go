package pipeline

import (
	"sync"
	"time"

	"github.com/MeKo-Tech/idscan/internal/document"
)

// Profiler aggregates simple counters/timers across scans.
type Profiler struct {
	mu       sync.Mutex
	scans    int64
	byStatus map[document.Status]int64
	total    time.Duration
	stages   map[Stage]time.Duration
}

// Record counts one finished scan.
func (p *Profiler) Record(elapsed time.Duration, status document.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byStatus == nil {
		p.byStatus = make(map[document.Status]int64)
	}
	p.scans++
	p.byStatus[status]++
	p.total += elapsed
}

// RecordStage adds the time spent in one stage.
func (p *Profiler) RecordStage(s Stage, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stages == nil {
		p.stages = make(map[Stage]time.Duration)
	}
	p.stages[s] += d
}

// Snapshot returns cumulative metrics in milliseconds for readability.
func (p *Profiler) Snapshot() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	statuses := make(map[string]int64, len(p.byStatus))
	for s, n := range p.byStatus {
		statuses[string(s)] = n
	}
	out := map[string]any{
		"scans":    p.scans,
		"statuses": statuses,
		"ms_total": p.total.Milliseconds(),
	}
	if p.scans > 0 {
		out["ms_per_scan"] = float64(p.total.Microseconds()) / 1000 / float64(p.scans)
		stages := make(map[string]float64, len(p.stages))
		for s, d := range p.stages {
			stages[string(s)] = float64(d.Microseconds()) / 1000 / float64(p.scans)
		}
		out["stage_ms_per_scan"] = stages
	}
	return out
}
