package ingest

// ImportSummary reports what one race import resolved, wrote, and skipped.
// It is produced once per import call and never mutated after return.
type ImportSummary struct {
	EventID             string `json:"eventId"`
	EventName           string `json:"eventName"`
	RaceClassID         string `json:"raceClassId"`
	RaceClassName       string `json:"raceClassName"`
	SessionID           string `json:"sessionId"`
	SessionName         string `json:"sessionName"`
	RaceID              string `json:"raceId"`
	RoundID             string `json:"roundId"`
	EntrantsProcessed   int    `json:"entrantsProcessed"`
	LapsImported        int    `json:"lapsImported"`
	SkippedLapCount     int    `json:"skippedLapCount"`
	SkippedEntrantCount int    `json:"skippedEntrantCount"`
	SkippedOutlapCount  int    `json:"skippedOutlapCount"`
	SourceURL           string `json:"sourceUrl"`
	IncludeOutlaps      bool   `json:"includeOutlaps"`
}
