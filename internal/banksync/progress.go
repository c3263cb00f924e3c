package banksync

import (
	"math"
	"time"
)

// Phase is the displayed stage of a sync. Phases advance in declaration
// order; Error can be entered from any non-terminal phase.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseFetching
	PhaseSyncing
	PhaseProcessing
	PhaseComplete
	PhaseError
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseFetching:
		return "fetching"
	case PhaseSyncing:
		return "syncing"
	case PhaseProcessing:
		return "processing"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase is Complete or Error.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// Progress is the displayed state of one account's sync.
type Progress struct {
	AccountID      string
	EstimatedTotal int
	// Current is the displayed count. It never decreases.
	Current int
	// FinalTotal is the actual count, set once the remote call succeeds.
	FinalTotal *int
	Phase      Phase
	Message    string
	Err        error
	UpdatedAt  time.Time
}

// Total returns the final count when known, otherwise the estimate.
func (p Progress) Total() int {
	if p.FinalTotal != nil {
		return *p.FinalTotal
	}
	return p.EstimatedTotal
}

// Percent returns the displayed completion in [0, 100]. Only Complete
// reports 100.
func (p Progress) Percent() float64 {
	if p.Phase == PhaseComplete {
		return 100
	}
	total := p.Total()
	if total <= 0 {
		return 0
	}
	return math.Min(float64(p.Current)/float64(total)*100, 99)
}

// Estimate buffer applied to the last known count.
const (
	estimateBufferFraction = 0.2
	estimateMinBuffer      = 10
	estimateFloor          = 10
)

// EstimateTotal returns the expected number of transactions for a sync of
// an account last seen with lastCount transactions: the count plus a 20%
// buffer of at least 10, and never less than 10.
func EstimateTotal(lastCount int) int {
	lastCount = max(lastCount, 0)
	buffer := max(int(math.Ceil(float64(lastCount)*estimateBufferFraction)), estimateMinBuffer)
	return max(lastCount+buffer, estimateFloor)
}
