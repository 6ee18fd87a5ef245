// Package plan sizes prospective imports before any job is created: per
// requested reference it estimates scope, classifies it against persisted
// state, and enforces the hard guardrails on plan size.
package plan

import (
	"time"
)

type ItemStatus string

const (
	StatusNew      ItemStatus = "NEW"
	StatusPartial  ItemStatus = "PARTIAL"
	StatusExisting ItemStatus = "EXISTING"
)

// Counts sizes one plan item.
type Counts struct {
	Sessions      int `json:"sessions"`
	Drivers       int `json:"drivers"`
	EstimatedLaps int `json:"estimatedLaps"`
}

type Item struct {
	EventRef string     `json:"eventRef"`
	Status   ItemStatus `json:"status"`
	Counts   Counts     `json:"counts"`
}

// Plan is a precomputed import estimate held briefly while the caller
// decides whether to apply it.
type Plan struct {
	ID          string    `json:"planId"`
	GeneratedAt time.Time `json:"generatedAt"`
	Items       []Item    `json:"items"`
}

// EventRequest names one event reference the caller wants planned.
type EventRequest struct {
	EventRef string `json:"eventRef"`
}

// Request is the original create-plan input, kept alongside the plan so an
// expired plan can be transparently recomputed on apply.
type Request struct {
	Events []EventRequest `json:"events"`
}
