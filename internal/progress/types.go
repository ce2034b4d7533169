package progress

import "time"

// Source tells where a percentage came from.
type Source int

const (
	SourceNone Source = iota
	SourceExplicit
	SourceTokens
	SourceFiles
	SourceFinal
)

func (s Source) String() string {
	switch s {
	case SourceExplicit:
		return "explicit"
	case SourceTokens:
		return "tokens"
	case SourceFiles:
		return "files"
	case SourceFinal:
		return "final"
	default:
		return "none"
	}
}

// TrendDirection indicates whether token velocity is rising or falling.
type TrendDirection int

const (
	TrendFlat TrendDirection = iota
	TrendUp
	TrendDown
)

func (t TrendDirection) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "flat"
	}
}

// Estimate is a derived, display-only view of a session's progress. It is
// recomputed on demand and never persisted.
type Estimate struct {
	Percent   float64
	Source    Source
	Elapsed   time.Duration
	Remaining time.Duration
	HasETA    bool

	TokenVelocity float64 // tokens per minute
	Trend         TrendDirection
}

type tokenSample struct {
	tokens int
	at     time.Time
}
