package plan

import (
	"fmt"
	"math"
)

// Limits bound how large a single import job may be. Oversized plans must
// be split by the caller; SuggestedChunks on the rejection says into how
// many pieces.
type Limits struct {
	MaxEvents        int `json:"maxEvents"`
	MaxEstimatedLaps int `json:"maxEstimatedLaps"`
}

// GuardrailError rejects a plan that exceeds the configured limits.
type GuardrailError struct {
	EventCount      int
	EstimatedLaps   int
	Limits          Limits
	SuggestedChunks int
}

func (e *GuardrailError) Error() string {
	return fmt.Sprintf("plan guardrails exceeded: events=%d (max %d), estimatedLaps=%d (max %d); split into %d chunks",
		e.EventCount, e.Limits.MaxEvents, e.EstimatedLaps, e.Limits.MaxEstimatedLaps, e.SuggestedChunks)
}

// CheckGuardrails validates plan size before job creation. Returns nil when
// the plan fits, or a *GuardrailError carrying the overage and a suggested
// chunk count of ceil(max(events/maxEvents, laps/maxLaps)).
func CheckGuardrails(items []Item, limits Limits) error {
	eventCount := len(items)
	estimatedLaps := 0
	for _, it := range items {
		estimatedLaps += it.Counts.EstimatedLaps
	}

	overEvents := limits.MaxEvents > 0 && eventCount > limits.MaxEvents
	overLaps := limits.MaxEstimatedLaps > 0 && estimatedLaps > limits.MaxEstimatedLaps
	if !overEvents && !overLaps {
		return nil
	}

	ratio := 0.0
	if limits.MaxEvents > 0 {
		ratio = float64(eventCount) / float64(limits.MaxEvents)
	}
	if limits.MaxEstimatedLaps > 0 {
		if r := float64(estimatedLaps) / float64(limits.MaxEstimatedLaps); r > ratio {
			ratio = r
		}
	}
	chunks := int(math.Ceil(ratio))
	if chunks < 2 {
		chunks = 2
	}
	return &GuardrailError{
		EventCount:      eventCount,
		EstimatedLaps:   estimatedLaps,
		Limits:          limits,
		SuggestedChunks: chunks,
	}
}
