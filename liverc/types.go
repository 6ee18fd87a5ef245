package liverc

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Normalized records produced from the provider's heterogeneous JSON.
// The raw documents are decoded as generic rows and resolved through the
// alias tables below, so a rename upstream is a one-line change here.

// EntryListEntry is one registered entrant from the class entry list.
type EntryListEntry struct {
	EntryID       string
	DisplayName   string
	CarNumber     string
	Withdrawn     bool
	TransponderID string
}

// RaceLap is a single timed lap from a race result document.
type RaceLap struct {
	EntryID        string
	DriverName     string
	LapNumber      int
	LapTimeSeconds float64
	Outlap         bool
	Penalties      []string
}

// RaceResultDoc is the normalized race result: document-level identifiers
// plus every lap recorded for the race.
type RaceResultDoc struct {
	EventID       string
	RaceID        string
	RoundID       string
	ClassName     string
	RaceName      string
	ScheduledLaps int
	Laps          []RaceLap
}

// Field alias tables. Order matters: the first present, parseable key wins.
var (
	entryAliases = map[string][]string{
		"entryId":       {"entry_id", "entryId", "racer_id", "id"},
		"displayName":   {"driver_name", "driverName", "display_name", "name"},
		"carNumber":     {"car_number", "carNumber", "number"},
		"withdrawn":     {"withdrawn", "is_withdrawn", "scratched"},
		"transponderId": {"transponder_id", "transponderId", "transponder"},
	}

	lapAliases = map[string][]string{
		"entryId":        {"entry_id", "entryId", "racer_id"},
		"driverName":     {"driver_name", "driverName", "name"},
		"lapNumber":      {"lap_num", "lap_number", "lap"},
		"lapTimeSeconds": {"lap_time", "laptime", "seconds", "time"},
		"outlap":         {"outlap", "is_outlap"},
		"penalties":      {"penalties", "penalty_list"},
	}

	resultDocAliases = map[string][]string{
		"eventId":       {"event_id", "eventId"},
		"raceId":        {"race_id", "raceId", "id"},
		"roundId":       {"round_id", "roundId"},
		"className":     {"class_name", "className", "class"},
		"raceName":      {"race_name", "raceName", "name"},
		"scheduledLaps": {"scheduled_laps", "laps_scheduled", "num_laps"},
		"laps":          {"laps", "lap_data", "lapData"},
	}
)

// row is one raw JSON object with undecoded values.
type row map[string]json.RawMessage

func (r row) raw(field string, aliases map[string][]string) (json.RawMessage, bool) {
	for _, key := range aliases[field] {
		if v, ok := r[key]; ok && len(v) > 0 && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

// str resolves a field as a string, accepting numbers as well so numeric
// upstream ids normalize to their decimal form.
func (r row) str(field string, aliases map[string][]string) string {
	v, ok := r.raw(field, aliases)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

// num resolves a field as a float, accepting native numbers and numeric strings.
func (r row) num(field string, aliases map[string][]string) (float64, bool) {
	v, ok := r.raw(field, aliases)
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func (r row) integer(field string, aliases map[string][]string) int {
	f, ok := r.num(field, aliases)
	if !ok {
		return 0
	}
	return int(f)
}

// boolean accepts JSON bools, 0/1 numbers, and the usual string spellings.
func (r row) boolean(field string, aliases map[string][]string) bool {
	v, ok := r.raw(field, aliases)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f != 0
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "y":
			return true
		}
	}
	return false
}

func (r row) strings(field string, aliases map[string][]string) []string {
	v, ok := r.raw(field, aliases)
	if !ok {
		return nil
	}
	var out []string
	if err := json.Unmarshal(v, &out); err == nil {
		return out
	}
	var single string
	if err := json.Unmarshal(v, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

func normalizeEntry(r row) EntryListEntry {
	return EntryListEntry{
		EntryID:       r.str("entryId", entryAliases),
		DisplayName:   r.str("displayName", entryAliases),
		CarNumber:     r.str("carNumber", entryAliases),
		Withdrawn:     r.boolean("withdrawn", entryAliases),
		TransponderID: r.str("transponderId", entryAliases),
	}
}

func normalizeLap(r row) RaceLap {
	secs, _ := r.num("lapTimeSeconds", lapAliases)
	return RaceLap{
		EntryID:        r.str("entryId", lapAliases),
		DriverName:     r.str("driverName", lapAliases),
		LapNumber:      r.integer("lapNumber", lapAliases),
		LapTimeSeconds: secs,
		Outlap:         r.boolean("outlap", lapAliases),
		Penalties:      r.strings("penalties", lapAliases),
	}
}
