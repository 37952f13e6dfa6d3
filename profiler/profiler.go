// Package profiler - Per-stage timing for proposal forward passes.
package profiler

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// TimeTracker tracks timing statistics for one pipeline stage.
type TimeTracker struct {
	name      string
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Name returns the stage name.
func (t *TimeTracker) Name() string { return t.name }

// Count returns how many samples the stage has recorded.
func (t *TimeTracker) Count() int64 { return t.count }

// Total returns the accumulated time spent in the stage.
func (t *TimeTracker) Total() time.Duration { return t.totalTime }

// Mean returns the average duration of one sample.
func (t *TimeTracker) Mean() time.Duration {
	if t.count == 0 {
		return 0
	}
	return t.totalTime / time.Duration(t.count)
}

func (t *TimeTracker) record(d time.Duration) {
	if t.count == 0 || d < t.minTime {
		t.minTime = d
	}
	if d > t.maxTime {
		t.maxTime = d
	}
	t.totalTime += d
	t.count++
}

// StageTimer collects per-stage durations across forward passes. It is
// safe for concurrent use and cheap enough to leave attached in
// production.
type StageTimer struct {
	mu     sync.Mutex
	stages map[string]*TimeTracker
}

// NewStageTimer creates an empty stage timer.
func NewStageTimer() *StageTimer {
	return &StageTimer{stages: make(map[string]*TimeTracker)}
}

// Record adds one duration sample for a named stage.
//
// Arguments:
//   - stage: Stage name, e.g. "decode" or "nms".
//   - d: The measured duration.
func (s *StageTimer) Record(stage string, d time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tracker, ok := s.stages[stage]
	if !ok {
		tracker = &TimeTracker{name: stage}
		s.stages[stage] = tracker
	}
	tracker.record(d)
}

// Time measures fn and records it under the stage name.
func (s *StageTimer) Time(stage string, fn func()) {
	if s == nil {
		fn()
		return
	}
	start := time.Now()
	fn()
	s.Record(stage, time.Since(start))
}

// Stages returns a snapshot of all trackers, sorted by name.
func (s *StageTimer) Stages() []TimeTracker {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TimeTracker, 0, len(s.stages))
	for _, t := range s.stages {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Report renders a one-line-per-stage summary.
func (s *StageTimer) Report() string {
	var b strings.Builder
	for _, t := range s.Stages() {
		fmt.Fprintf(&b, "%-10s count=%d total=%s mean=%s min=%s max=%s\n",
			t.name, t.count, t.totalTime, t.Mean(), t.minTime, t.maxTime)
	}
	return b.String()
}
