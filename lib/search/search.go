// Package search implements topic search over the catalog: the oracle distills
// a prompt into a topic and optional year, the topic resolves to a catalog
// keyword (or a genre when no keyword matches), and the discover results come
// back with their subscription streaming sources attached.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/icco/moviematch/lib/jsontext"
	"github.com/icco/moviematch/lib/llm"
	"github.com/icco/moviematch/lib/tmdb"
)

// resultLimit is how many discover hits a search answers with.
const resultLimit = 3

// genreAliases maps lowercase topic substrings onto catalog genre ids. Checked
// in order; only consulted when no keyword matches the topic.
var genreAliases = []struct {
	alias string
	id    string
}{
	{"action", "28"},
	{"adventure", "12"},
	{"animation", "16"},
	{"comedy", "35"},
	{"crime", "80"},
	{"documentary", "99"},
	{"drama", "18"},
	{"family", "10751"},
	{"fantasy", "14"},
	{"history", "36"},
	{"horror", "27"},
	{"music", "10402"},
	{"mystery", "9648"},
	{"romance", "10749"},
	{"science fiction", "878"},
	{"sciencefiction", "878"},
	{"scifi", "878"},
	{"sci-fi", "878"},
	{"thriller", "53"},
	{"war", "10752"},
	{"western", "37"},
}

// Catalog is the slice of the movie catalog that search needs.
type Catalog interface {
	SearchKeyword(ctx context.Context, query string) ([]tmdb.Keyword, error)
	Discover(ctx context.Context, q tmdb.DiscoverQuery) ([]tmdb.Candidate, error)
	GetWatchProviders(ctx context.Context, id int, region string) ([]string, error)
	PosterURL(posterPath string) string
}

// Result is one search hit with its streaming availability.
type Result struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Year        int      `json:"year"`
	Streaming   []string `json:"streaming"`
}

// Searcher answers one topic search per call. Safe for concurrent use.
type Searcher struct {
	catalog Catalog
	oracle  llm.Oracle
	region  string
	logger  *slog.Logger
}

func New(catalog Catalog, oracle llm.Oracle, region string, logger *slog.Logger) *Searcher {
	if region == "" {
		region = "US"
	}
	return &Searcher{
		catalog: catalog,
		oracle:  oracle,
		region:  region,
		logger:  logger,
	}
}

// Search resolves a free-text query into up to three catalog hits. Streaming
// lookups degrade to an empty list per hit; a failed topic extraction or
// discover call fails the search.
func (s *Searcher) Search(ctx context.Context, query string) ([]Result, error) {
	topic, year, err := s.extractTopic(ctx, query)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Extracted search topic",
		slog.String("topic", topic),
		slog.Int("year", year))

	q := tmdb.DiscoverQuery{Year: year}
	if topic != "" {
		if id := s.keywordID(ctx, topic); id != 0 {
			q.Keywords = strconv.Itoa(id)
		}
	}
	// A genre only stands in when no keyword matched.
	if q.Keywords == "" {
		q.GenreID = genreFor(topic)
	}

	candidates, err := s.catalog.Discover(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("discover failed: %w", err)
	}
	if len(candidates) > resultLimit {
		candidates = candidates[:resultLimit]
	}

	results := make([]Result, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			streaming, err := s.catalog.GetWatchProviders(gctx, candidate.ID, s.region)
			if err != nil {
				s.logger.Warn("Streaming lookup failed",
					slog.String("title", candidate.Title),
					slog.Any("error", err))
				streaming = nil
			}
			results[i] = Result{
				Title:       candidate.Title,
				Description: candidate.Overview,
				Image:       s.catalog.PosterURL(candidate.PosterPath),
				Year:        candidate.Year(),
				Streaming:   streaming,
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// rawTopic mirrors the oracle's reply; the year arrives as a number or a
// quoted string depending on the model's mood.
type rawTopic struct {
	Topic string          `json:"topic"`
	Year  json.RawMessage `json:"year"`
}

func (s *Searcher) extractTopic(ctx context.Context, query string) (string, int, error) {
	system := `You are a movie search assistant helping users find content using the TMDb API.
Return structured JSON like this:
{ "topic": "Marvel Cinematic Universe", "year": 2023 }
If no year is mentioned, omit it. Use simple values. Do not explain.`

	completion, err := s.oracle.Complete(ctx, system, query, 0)
	if err != nil {
		return "", 0, fmt.Errorf("topic extraction call failed: %w", err)
	}

	obj, err := jsontext.FirstObject(completion.Text)
	if err != nil {
		return "", 0, fmt.Errorf("failed to parse topic output: %w", err)
	}

	var raw rawTopic
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return "", 0, fmt.Errorf("failed to decode topic object: %w", err)
	}
	return strings.TrimSpace(raw.Topic), yearOf(raw.Year), nil
}

// keywordID resolves a topic to the first catalog keyword whose name contains
// it. Lookup failures and misses both yield 0; search then falls back to a
// genre match.
func (s *Searcher) keywordID(ctx context.Context, topic string) int {
	keywords, err := s.catalog.SearchKeyword(ctx, topic)
	if err != nil {
		s.logger.Warn("Keyword lookup failed",
			slog.String("topic", topic),
			slog.Any("error", err))
		return 0
	}

	lower := strings.ToLower(topic)
	for _, k := range keywords {
		if strings.Contains(strings.ToLower(k.Name), lower) {
			return k.ID
		}
	}
	return 0
}

func genreFor(topic string) string {
	lower := strings.ToLower(topic)
	for _, entry := range genreAliases {
		if strings.Contains(lower, entry.alias) {
			return entry.id
		}
	}
	return ""
}

func yearOf(raw json.RawMessage) int {
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
