package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// LapSourceID derives the content-addressed identity of one lap.
//
// The input tuple is (eventID, sessionID, raceID, entrantSourceID, lapNumber)
// joined with "|", hashed with SHA-256, hex-encoded, and truncated to 32
// characters. eventID and sessionID are the canonical record ids of the
// resolved event and session; raceID is the upstream race identifier (empty
// when the result document carries none); entrantSourceID is the upstream
// entry id, or the "name:" display-name fallback for timing systems that
// publish no entry ids.
//
// Any change here breaks interop with previously stored laps: re-imports
// would insert instead of replace.
func LapSourceID(eventID, sessionID, raceID, entrantSourceID string, lapNumber int) string {
	key := strings.Join([]string{eventID, sessionID, raceID, entrantSourceID, strconv.Itoa(lapNumber)}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}

// EntrantSourceID derives the upstream identity key for an entrant within
// one session scope. Entries with a source id key by it; entries without
// one fall back to exact display-name matching.
func EntrantSourceID(sessionSourceID, entryID, displayName string) string {
	if entryID != "" {
		return sessionSourceID + "/" + entryID
	}
	return sessionSourceID + "/name:" + displayName
}
