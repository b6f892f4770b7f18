package attempt

import (
	"math"
	"time"

	"quizrun-go/internal/api"
)

// Failure classifies what went wrong, as a view would report it.
type Failure int

const (
	// FailureLoad means the quiz could not be fetched; the flow cannot start.
	FailureLoad Failure = iota
	// FailureStart leaves the session NotStarted; retrying is safe.
	FailureStart
	// FailureAnswer means one answer may not be saved server-side.
	FailureAnswer
	// FailureFinish leaves the attempt open; Finish may be retried.
	FailureFinish
)

func (f Failure) String() string {
	switch f {
	case FailureLoad:
		return "load"
	case FailureStart:
		return "start"
	case FailureAnswer:
		return "answer"
	case FailureFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Observer receives session events. Calls may come from the countdown
// goroutine, so implementations must be safe for concurrent use.
type Observer interface {
	// Started reports the time the attempt has left, zero when untimed.
	Started(attemptID string, remaining time.Duration)
	Tick(remaining time.Duration)
	Finished(Summary)
	Failed(Failure, error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Started(string, time.Duration) {}
func (NopObserver) Tick(time.Duration)            {}
func (NopObserver) Finished(Summary)              {}
func (NopObserver) Failed(Failure, error)         {}

// Summary is the result view of a finished attempt. Every figure comes from
// the server's finish response; Total is the number of questions shown.
type Summary struct {
	Score      int
	Total      int
	Percentage int
	Passed     bool
	Elapsed    time.Duration
}

func newSummary(res api.Result, total int) Summary {
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(res.Score) / float64(total) * 100))
	}
	return Summary{
		Score:      res.Score,
		Total:      total,
		Percentage: pct,
		Passed:     res.Passed,
		Elapsed:    time.Duration(res.ElapsedSeconds) * time.Second,
	}
}
