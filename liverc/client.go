package liverc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client fetches LiveRC result documents via the configured base URL.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client
}

func NewClient(base string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	return &Client{BaseURL: u, HTTP: &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DisableKeepAlives: true,
			MaxConnsPerHost:   2,
		},
	}}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	u := *c.BaseURL
	u.Path = path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &UpstreamUnavailableError{URL: u.String(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &UpstreamStatusError{URL: u.String(), Status: resp.StatusCode}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamUnavailableError{URL: u.String(), Err: err}
	}
	if len(b) == 0 {
		return &UpstreamMalformedError{URL: u.String(), Err: fmt.Errorf("empty response body")}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &UpstreamMalformedError{URL: u.String(), Err: err}
	}
	return nil
}

// FetchEntryList returns the normalized entry list for one class within one event.
// GET /results/{event}/{class}/entry_list.json
func (c *Client) FetchEntryList(ctx context.Context, eventSlug, classSlug string) ([]EntryListEntry, error) {
	var rows []row
	p := fmt.Sprintf("/results/%s/%s/entry_list.json", eventSlug, classSlug)
	if err := c.getJSON(ctx, p, &rows); err != nil {
		return nil, err
	}
	out := make([]EntryListEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, normalizeEntry(r))
	}
	return out, nil
}

// FetchRaceResult returns the normalized per-lap result for one race.
// GET /results/{event}/{class}/{round}/{race}.json
func (c *Client) FetchRaceResult(ctx context.Context, eventSlug, classSlug, roundSlug, raceSlug string) (RaceResultDoc, error) {
	var doc row
	p := fmt.Sprintf("/results/%s/%s/%s/%s.json", eventSlug, classSlug, roundSlug, raceSlug)
	if err := c.getJSON(ctx, p, &doc); err != nil {
		return RaceResultDoc{}, err
	}

	out := RaceResultDoc{
		EventID:       doc.str("eventId", resultDocAliases),
		RaceID:        doc.str("raceId", resultDocAliases),
		RoundID:       doc.str("roundId", resultDocAliases),
		ClassName:     doc.str("className", resultDocAliases),
		RaceName:      doc.str("raceName", resultDocAliases),
		ScheduledLaps: doc.integer("scheduledLaps", resultDocAliases),
	}

	rawLaps, ok := doc.raw("laps", resultDocAliases)
	if !ok {
		return out, nil
	}
	var lapRows []row
	if err := json.Unmarshal(rawLaps, &lapRows); err != nil {
		u := *c.BaseURL
		u.Path = p
		return RaceResultDoc{}, &UpstreamMalformedError{URL: u.String(), Err: err}
	}
	out.Laps = make([]RaceLap, 0, len(lapRows))
	for _, r := range lapRows {
		out.Laps = append(out.Laps, normalizeLap(r))
	}
	return out, nil
}
