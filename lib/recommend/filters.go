package recommend

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"log/slog"

	"github.com/icco/moviematch/lib/jsontext"
	"github.com/icco/moviematch/lib/platform"
	"github.com/icco/moviematch/lib/tmdb"
)

// genreLegend is the catalog's genre id table, embedded in the extraction
// prompt so the oracle answers with ids the catalog accepts.
var genreLegend = []struct {
	ID   string
	Name string
}{
	{"28", "Action"},
	{"12", "Adventure"},
	{"16", "Animation"},
	{"35", "Comedy"},
	{"80", "Crime"},
	{"99", "Documentary"},
	{"18", "Drama"},
	{"10751", "Family"},
	{"14", "Fantasy"},
	{"36", "History"},
	{"27", "Horror"},
	{"10402", "Music"},
	{"9648", "Mystery"},
	{"10749", "Romance"},
	{"878", "Science Fiction"},
	{"10770", "TV Movie"},
	{"53", "Thriller"},
	{"10752", "War"},
	{"37", "Western"},
}

// FilterSet is the structured query extracted from one prompt. Created once
// per request and read-only afterwards.
type FilterSet struct {
	GenreID   string   `json:"with_genres,omitempty"`
	Year      int      `json:"primary_release_year,omitempty"`
	YearGTE   int      `json:"primary_release_year.gte,omitempty"`
	YearLTE   int      `json:"primary_release_year.lte,omitempty"`
	Keywords  string   `json:"with_keywords,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
}

// Query converts the filter set into a catalog discover query.
func (f FilterSet) Query() tmdb.DiscoverQuery {
	return tmdb.DiscoverQuery{
		GenreID:  f.GenreID,
		Year:     f.Year,
		YearGTE:  f.YearGTE,
		YearLTE:  f.YearLTE,
		Keywords: f.Keywords,
	}
}

// YearBounds returns the effective post-filter range, defaulting to
// [1900, 2100] when a bound was not extracted.
func (f FilterSet) YearBounds() (int, int) {
	from, to := 1900, 2100
	if f.YearGTE > 0 {
		from = f.YearGTE
	}
	if f.YearLTE > 0 {
		to = f.YearLTE
	}
	return from, to
}

func filterSystemPrompt() string {
	var legend strings.Builder
	for _, g := range genreLegend {
		legend.WriteString(g.ID)
		legend.WriteString(": ")
		legend.WriteString(g.Name)
		legend.WriteString("\n")
	}
	return "Here are valid TMDb genres:\n" + legend.String() +
		"\nExtract a TMDb-compatible filter from a user prompt. Only output a JSON object with keys like " +
		"with_genres (genre ID), primary_release_year, primary_release_year.gte, primary_release_year.lte, " +
		"platforms (array of streaming service names), and with_keywords (comma-separated terms)."
}

// rawFilters mirrors the oracle's loosely typed output. Numeric fields arrive
// as numbers or quoted strings depending on the model's mood.
type rawFilters struct {
	WithGenres   json.RawMessage `json:"with_genres"`
	Year         json.RawMessage `json:"primary_release_year"`
	YearGTE      json.RawMessage `json:"primary_release_year.gte"`
	YearLTE      json.RawMessage `json:"primary_release_year.lte"`
	WithKeywords string          `json:"with_keywords"`
	Platforms    []string        `json:"platforms"`
}

// extractFilters asks the oracle for catalog filters at temperature 0. Any
// failure degrades to an empty filter set; extraction never fails the run.
func (r *Recommender) extractFilters(ctx context.Context, prompt string) FilterSet {
	completion, err := r.oracle.Complete(ctx, filterSystemPrompt(), prompt, 0)
	if err != nil {
		r.logger.Warn("Filter extraction call failed", slog.Any("error", err))
		return FilterSet{}
	}

	obj, err := jsontext.FirstObject(completion.Text)
	if err != nil {
		r.logger.Warn("Failed to parse filter output",
			slog.String("raw", completion.Text),
			slog.Any("error", err))
		return FilterSet{}
	}

	var raw rawFilters
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		r.logger.Warn("Failed to decode filter object",
			slog.String("raw", obj),
			slog.Any("error", err))
		return FilterSet{}
	}

	// The oracle's platform guesses use whatever spelling the prompt did;
	// fold them onto provider names so the post-filter compares like to like.
	platforms := make([]string, 0, len(raw.Platforms))
	for _, p := range raw.Platforms {
		platforms = append(platforms, platform.Canonical(p))
	}
	if len(platforms) == 0 {
		platforms = nil
	}

	filters := FilterSet{
		GenreID:   flexString(raw.WithGenres),
		Year:      flexInt(raw.Year),
		YearGTE:   flexInt(raw.YearGTE),
		YearLTE:   flexInt(raw.YearLTE),
		Keywords:  strings.TrimSpace(raw.WithKeywords),
		Platforms: platforms,
	}
	return filters
}

// flexString reads a JSON value that may be a string or a number.
func flexString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.Itoa(int(n))
	}
	return ""
}

// flexInt reads a JSON value that may be a number or a quoted number.
func flexInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return parsed
		}
	}
	return 0
}
