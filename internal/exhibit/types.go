// Package exhibit defines the core records shared across the crawl pipeline.
package exhibit

import "time"

// DiscoveredLink is one detail-page URL surfaced by the listing discoverer,
// together with the cheap summary fields visible in the list view.
type DiscoveredLink struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	Venue        string `json:"venue"`
	Period       string `json:"period"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Detail is the best-effort extraction result for one exhibition page.
// Every field is either an extracted string/list or its zero value; the
// extractor never fails outright. FetchError is set when the detail page
// could not be retrieved and only the summary fields are populated.
type Detail struct {
	Title        string   `json:"title"`
	Venue        string   `json:"venue"`
	Period       string   `json:"period"`
	Address      string   `json:"address"`
	OpeningHours string   `json:"opening_hours"`
	ClosedDays   string   `json:"closed_days"`
	Price        string   `json:"price"`
	Telephone    string   `json:"telephone"`
	Website      string   `json:"website"`
	Artists      string   `json:"artists"`
	Description  string   `json:"description"`
	Images       []string `json:"images"`
	DetailURL    string   `json:"detail_url"`
	FetchError   string   `json:"fetch_error,omitempty"`
}

// MainImage returns the first image URL, the one considered the poster.
func (d Detail) MainImage() string {
	if len(d.Images) == 0 {
		return ""
	}
	return d.Images[0]
}

// Record is a Detail whose period has been parsed into calendar dates.
// Only Records reach the persistence writer.
type Record struct {
	Detail
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Outcome describes what the persistence writer did with one record.
type Outcome string

// Upsert outcomes.
const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

// ItemError records a per-item failure without failing the run.
type ItemError struct {
	URL   string `json:"url"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// RunSummary aggregates one orchestration run. It is returned to the API
// caller and never persisted.
type RunSummary struct {
	Success         bool        `json:"success"`
	Message         string      `json:"message"`
	Found           int         `json:"found_exhibitions"`
	Exhibitions     []Detail    `json:"exhibitions"`
	Saved           int         `json:"saved_exhibitions"`
	Updated         int         `json:"updated_exhibitions"`
	Skipped         int         `json:"skipped_exhibitions"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	DurationSeconds float64     `json:"duration_seconds"`
	Errors          []ItemError `json:"errors,omitempty"`
}

// Finalize stamps the end time and derived duration.
func (s *RunSummary) Finalize(end time.Time) {
	s.EndTime = end
	s.DurationSeconds = end.Sub(s.StartTime).Seconds()
}

// AddError appends a per-item error for the given pipeline stage.
func (s *RunSummary) AddError(url, stage string, err error) {
	s.Errors = append(s.Errors, ItemError{URL: url, Stage: stage, Error: err.Error()})
}
