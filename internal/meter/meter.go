// Package meter runs the real-time level/duration loop for an active capture
// session. The loop runs strictly while the session is recording: Start spins
// it up, Stop cancels it synchronously, and no tick ever fires after Stop
// returns.
package meter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Analyzer is the pull-based analysis collaborator: a synchronous,
// non-blocking snapshot of byte-valued frequency bins (0..255 per bin).
type Analyzer interface {
	Sample() ([]byte, error)
}

// Sample is the transient (level, elapsed) pair describing the live capture.
// It has no identity beyond "most recent" and is never stored.
type Sample struct {
	Level   float64
	Elapsed time.Duration
}

// Clock formats the elapsed time as mm:ss.t for display.
func (s Sample) Clock() string {
	secs := s.Elapsed.Seconds()
	minutes := int(secs) / 60
	seconds := int(secs) % 60
	tenths := int(secs*10) % 10
	return fmt.Sprintf("%02d:%02d.%d", minutes, seconds, tenths)
}

// Loop samples the analyzer once per tick and publishes the current Sample.
type Loop struct {
	analyzer Analyzer
	interval time.Duration

	mu      sync.RWMutex
	current Sample
	stop    chan struct{}
	done    chan struct{}
}

// NewLoop creates a metering loop ticking at the given interval.
func NewLoop(analyzer Analyzer, interval time.Duration) *Loop {
	return &Loop{
		analyzer: analyzer,
		interval: interval,
	}
}

// Start begins ticking against the given session start time. The current
// sample is zeroed immediately, so duration reads as zero during the gap
// before the first tick. Start while already running is a no-op.
func (l *Loop) Start(sessionStart time.Time) {
	l.mu.Lock()
	if l.stop != nil {
		l.mu.Unlock()
		return
	}
	l.current = Sample{}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	stop, done := l.stop, l.done
	l.mu.Unlock()

	go l.run(sessionStart, stop, done)
}

// Stop cancels the loop synchronously: when it returns, no further tick will
// fire. The published level resets to 0; elapsed freezes at its last value
// until the next Start. Stop while not running is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done

	l.mu.Lock()
	l.current.Level = 0
	l.mu.Unlock()
}

// Current returns the most recently published sample.
func (l *Loop) Current() Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Running reports whether the loop is ticking.
func (l *Loop) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stop != nil
}

func (l *Loop) run(sessionStart time.Time, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			l.tick(sessionStart, now)
		}
	}
}

// tick pulls one analyzer snapshot and publishes the reduced sample. An
// unavailable analyzer is not fatal: the tick publishes level 0 and the loop
// retries on the next tick, so a stale level never outlives one tick.
func (l *Loop) tick(sessionStart, now time.Time) {
	level := 0.0
	bins, err := l.analyzer.Sample()
	if err != nil {
		slog.Debug("Analyzer unavailable for tick", "error", err)
	} else {
		level = Level(bins)
	}

	l.mu.Lock()
	l.current = Sample{Level: level, Elapsed: now.Sub(sessionStart)}
	l.mu.Unlock()
}

// Level reduces a frequency-bin snapshot to one normalized value in [0,1]:
// the average magnitude across bins scaled by the maximum representable
// magnitude (255).
func Level(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	sum := 0
	for _, b := range bins {
		sum += int(b)
	}
	level := float64(sum) / float64(len(bins)) / 255.0
	if level > 1 {
		level = 1
	}
	return level
}
