// Package catalog talks to the external event listing service. The service
// is a read-only collaborator: a failing or empty response is "no results",
// never an error surfaced to the user, because the dialog falls through to
// manual entry either way.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/clock"
)

// Mode selects which field of a catalog entry a query is matched against.
type Mode string

// Search modes.
const (
	ModeTitle Mode = "title"
	ModeVenue Mode = "venue"
)

// Slot is one occurrence from a candidate's schedule. The service only
// returns future occurrences, so the dialog trusts these without a
// future-check of its own.
type Slot struct {
	At    time.Time `json:"at"`    // UTC instant
	Label string    `json:"label"` // display text in the fixed zone
}

// Result is one catalog candidate.
type Result struct {
	ExternalRef int64  `json:"external_ref"`
	Title       string `json:"title"`
	Venue       string `json:"venue"`
	URL         string `json:"url"`
	Schedule    []Slot `json:"schedule"`
}

// Searcher is the catalog contract the dialog machine depends on.
type Searcher interface {
	Search(ctx context.Context, query string, mode Mode) ([]Result, error)
}

// Client queries a KudaGo-style public API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	norm    *clock.Normalizer
	log     *zap.Logger
}

// NewClient builds a catalog client. The normalizer is used to render slot
// labels and to bound the search to future occurrences.
func NewClient(baseURL string, norm *clock.Normalizer, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		norm:    norm,
		log:     log,
	}
}

// Wire format of the search endpoint.
type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Place *struct {
		Title string `json:"title"`
	} `json:"place"`
	SiteURL string `json:"site_url"`
	Dates   []struct {
		Start int64 `json:"start"` // unix seconds
	} `json:"dates"`
}

// Search runs a free-text query and filters the response by mode: ModeTitle
// matches the event title, ModeVenue the place name (both case-insensitive
// substring, the way the old CSV lookup worked). Transport failures and
// non-200 responses are logged and reported as an empty result set.
func (c *Client) Search(ctx context.Context, query string, mode Mode) ([]Result, error) {
	now := c.norm.Now()

	v := url.Values{}
	v.Set("q", query)
	v.Set("ctype", "event")
	v.Set("expand", "place,dates")
	v.Set("lang", "ru")
	v.Set("actual_since", fmt.Sprintf("%d", now.Unix()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/?"+v.Encode(), nil)
	if err != nil {
		return []Result{}, nil
	}
	req.Header.Set("User-Agent", "TheatreNotifyBot/2.0")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("catalog request failed", zap.Error(err))
		return []Result{}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("catalog returned non-200", zap.Int("status", resp.StatusCode))
		return []Result{}, nil
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.log.Warn("catalog response decode failed", zap.Error(err))
		return []Result{}, nil
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]Result, 0, len(payload.Results))
	for _, sr := range payload.Results {
		venue := ""
		if sr.Place != nil {
			venue = sr.Place.Title
		}
		var field string
		switch mode {
		case ModeVenue:
			field = venue
		default:
			field = sr.Title
		}
		if !strings.Contains(strings.ToLower(field), needle) {
			continue
		}
		r := Result{
			ExternalRef: sr.ID,
			Title:       sr.Title,
			Venue:       venue,
			URL:         sr.SiteURL,
		}
		for _, d := range sr.Dates {
			at := time.Unix(d.Start, 0).UTC()
			if !at.After(now) {
				continue
			}
			r.Schedule = append(r.Schedule, Slot{At: at, Label: c.norm.FormatLocal(at)})
		}
		out = append(out, r)
	}
	return out, nil
}
