// Package progress derives completion percentage, time remaining and token
// velocity from a session's counters.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/nixlim/genwatch/internal/session"
)

const (
	// DefaultMinPercent is the percentage below which no ETA is produced.
	DefaultMinPercent = 5

	velocityWindow = 30 * time.Second
)

// Percent returns the completion percentage for c. A server-reported
// percentage wins; otherwise tokens are preferred over files as the finer
// measure. The result is clamped to [0, 100].
func Percent(c session.Counters, status session.Status) (float64, Source) {
	if status == session.StatusCompleted {
		return 100, SourceFinal
	}
	switch {
	case c.ExplicitPercent:
		return session.ClampPercent(c.ProgressPercent), SourceExplicit
	case c.TotalTokens > 0:
		return session.ClampPercent(100 * float64(c.StreamedTokens) / float64(c.TotalTokens)), SourceTokens
	case c.TotalFiles > 0:
		return session.ClampPercent(100 * float64(c.CompletedFiles) / float64(c.TotalFiles)), SourceFiles
	}
	return 0, SourceNone
}

// Remaining extrapolates linearly from elapsed time: total = elapsed / p,
// remaining = total - elapsed. It is undefined at or below minPercent.
func Remaining(elapsed time.Duration, percent, minPercent float64) (time.Duration, bool) {
	if percent <= minPercent || percent <= 0 || elapsed <= 0 {
		return 0, false
	}
	if percent >= 100 {
		return 0, true
	}
	total := float64(elapsed) / (percent / 100)
	return time.Duration(total) - elapsed, true
}

// FormatRemaining renders d as "Xm Ys" above one minute and "Ys" otherwise.
func FormatRemaining(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs > 60 {
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%ds", secs)
}

// Estimator tracks one session at a time. It keeps a high-water mark so the
// displayed percentage never moves backwards, and a rolling window of token
// samples for velocity. All methods are safe for concurrent use.
type Estimator struct {
	mu         sync.Mutex
	minPercent float64
	sessionID  string
	highWater  float64
	samples    []tokenSample
}

// NewEstimator creates an Estimator that suppresses the ETA at or below
// minPercent.
func NewEstimator(minPercent float64) *Estimator {
	return &Estimator{minPercent: minPercent}
}

// Compute derives the estimate for s using the wall clock.
func (e *Estimator) Compute(s session.State, startedAt time.Time) Estimate {
	return e.ComputeWithTime(s, startedAt, time.Now())
}

// ComputeWithTime is Compute with an explicit clock, for tests.
func (e *Estimator) ComputeWithTime(s session.State, startedAt, now time.Time) Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.ID() != e.sessionID {
		e.sessionID = s.ID()
		e.highWater = 0
		e.samples = nil
	}

	pct, src := Percent(s.Counters, s.Status())
	if pct < e.highWater {
		pct = e.highWater
	}
	e.highWater = pct

	est := Estimate{Percent: pct, Source: src}
	if !startedAt.IsZero() {
		est.Elapsed = now.Sub(startedAt)
	}

	status := s.Status()
	if !status.Terminal() {
		est.Remaining, est.HasETA = Remaining(est.Elapsed, pct, e.minPercent)
		e.record(s.Counters.StreamedTokens, now)
		est.TokenVelocity = e.velocity(now.Add(-velocityWindow), now)
		est.Trend = e.trend(now)
	}
	return est
}

// Reset forgets the tracked session.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = ""
	e.highWater = 0
	e.samples = nil
}

func (e *Estimator) record(tokens int, now time.Time) {
	if n := len(e.samples); n > 0 && e.samples[n-1].tokens == tokens && now.Sub(e.samples[n-1].at) < time.Second {
		return
	}
	e.samples = append(e.samples, tokenSample{tokens: tokens, at: now})

	cutoff := now.Add(-2 * velocityWindow)
	i := 0
	for i < len(e.samples)-1 && e.samples[i].at.Before(cutoff) {
		i++
	}
	e.samples = e.samples[i:]
}

// velocity returns tokens per minute between the first and last samples
// inside [from, to].
func (e *Estimator) velocity(from, to time.Time) float64 {
	var first, last *tokenSample
	for i := range e.samples {
		sm := &e.samples[i]
		if sm.at.Before(from) || sm.at.After(to) {
			continue
		}
		if first == nil {
			first = sm
		}
		last = sm
	}
	if first == nil || last == first {
		return 0
	}
	elapsed := last.at.Sub(first.at)
	if elapsed <= 0 {
		return 0
	}
	delta := last.tokens - first.tokens
	if delta < 0 {
		return 0
	}
	return float64(delta) / elapsed.Minutes()
}

func (e *Estimator) trend(now time.Time) TrendDirection {
	mid := now.Add(-velocityWindow)
	current := e.velocity(mid, now)
	previous := e.velocity(now.Add(-2*velocityWindow), mid)
	if previous == 0 && current == 0 {
		return TrendFlat
	}
	diff := current - previous
	switch {
	case diff > 1:
		return TrendUp
	case diff < -1:
		return TrendDown
	}
	return TrendFlat
}
