package liverc

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ParsedRef identifies one race result on the timing provider, decomposed
// into the slugs the JSON API is addressed by.
type ParsedRef struct {
	EventSlug string
	ClassSlug string
	RoundSlug string
	RaceSlug  string
}

// CanonicalPath returns the normalized results path for the reference.
func (r ParsedRef) CanonicalPath() string {
	return fmt.Sprintf("/results/%s/%s/%s/%s", r.EventSlug, r.ClassSlug, r.RoundSlug, r.RaceSlug)
}

func (r ParsedRef) String() string { return r.CanonicalPath() }

// SessionSourceID is the upstream identity key for the race session.
func (r ParsedRef) SessionSourceID() string {
	return fmt.Sprintf("%s/%s/%s/%s", r.EventSlug, r.ClassSlug, r.RoundSlug, r.RaceSlug)
}

// ClassSourceID is the upstream identity key for the race class within its event.
func (r ParsedRef) ClassSourceID() string {
	return fmt.Sprintf("%s/%s", r.EventSlug, r.ClassSlug)
}

// ParseRef validates a provider results link and decomposes it.
//
// Accepted links contain a "results" path segment followed by at least four
// segments: event, class, round, race. The race segment may carry a file
// extension (the provider serves ".json" and ".html" flavors of the same
// path); the extension is stripped to obtain the logical slug.
//
// Links to the provider's browsable pages (no results segment) return
// ErrLegacyFormat: those ids have to be resolved to a results link
// out-of-band before ingestion.
func ParseRef(raw string) (ParsedRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ParsedRef{}, &InvalidRefError{Ref: raw, Reason: "empty"}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return ParsedRef{}, &InvalidRefError{Ref: raw, Reason: "not-a-url"}
	}

	segments := splitPath(u.Path)
	resultsAt := -1
	for i, s := range segments {
		if strings.EqualFold(s, "results") {
			resultsAt = i
			break
		}
	}
	if resultsAt < 0 {
		return ParsedRef{}, ErrLegacyFormat
	}

	rest := segments[resultsAt+1:]
	if len(rest) < 4 {
		return ParsedRef{}, &InvalidRefError{Ref: raw, Reason: "incomplete-url"}
	}

	race := rest[3]
	if ext := path.Ext(race); ext != "" {
		race = strings.TrimSuffix(race, ext)
	}
	if race == "" {
		return ParsedRef{}, &InvalidRefError{Ref: raw, Reason: "incomplete-url"}
	}

	return ParsedRef{
		EventSlug: rest[0],
		ClassSlug: rest[1],
		RoundSlug: rest[2],
		RaceSlug:  race,
	}, nil
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
