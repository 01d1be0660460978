// Package recommend implements the prompt-to-recommendations pipeline: filter
// extraction, catalog discovery, multi-provider enrichment, store sync, the
// oracle-only fallback path, and the final re-ranking pass.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"github.com/icco/moviematch/lib/jsontext"
	"github.com/icco/moviematch/lib/llm"
	omdbclient "github.com/icco/moviematch/lib/omdb"
	"github.com/icco/moviematch/lib/platform"
	"github.com/icco/moviematch/lib/tmdb"
	"github.com/icco/moviematch/lib/validation"
	"github.com/icco/moviematch/models"
)

const (
	// minCatalogRating is the popularity floor on a 0-10 scale; catalog
	// entries at or below it are not worth enriching.
	minCatalogRating = 5.0

	// maxFinalResponseLen bounds the raw oracle text kept in the usage log.
	maxFinalResponseLen = 5000

	// fallbackListSize is how many titles the oracle is asked for when the
	// catalog path comes up empty.
	fallbackListSize = 15

	// degradeResultSize is how many movies to return when re-ranking output
	// cannot be parsed.
	degradeResultSize = 5
)

// Catalog is the movie discovery provider contract.
type Catalog interface {
	DiscoverPages(ctx context.Context, q tmdb.DiscoverQuery, pages int) []tmdb.Candidate
	SearchMovie(ctx context.Context, title string, year int) ([]tmdb.Candidate, error)
	GetMovieDetails(ctx context.Context, id int) (*tmdb.MovieDetails, error)
	GetWatchProviders(ctx context.Context, id int, region string) ([]string, error)
	PosterURL(posterPath string) string
}

// Ratings is the ratings/plot provider contract.
type Ratings interface {
	GetMovie(ctx context.Context, title string, year int) (*omdbclient.Movie, error)
}

// Storage is the slice of the shared store the pipeline writes to.
type Storage interface {
	SyncMovie(ctx context.Context, movie *models.Movie)
	LogPrompt(ctx context.Context, entry *models.PromptLog)
}

// Options tunes the pipeline's external-call behavior.
type Options struct {
	WatchRegion       string
	CatalogPages      int
	CandidateLimit    int
	EnrichConcurrency int
}

func (o *Options) applyDefaults() {
	if o.WatchRegion == "" {
		o.WatchRegion = "US"
	}
	if o.CatalogPages <= 0 {
		o.CatalogPages = 3
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = 30
	}
	if o.EnrichConcurrency <= 0 {
		o.EnrichConcurrency = 8
	}
}

// Recommender orchestrates one recommendation run per call. All clients are
// injected; the struct holds no per-request state and is safe for concurrent
// use.
type Recommender struct {
	store   Storage
	catalog Catalog
	ratings Ratings
	oracle  llm.Oracle
	logger  *slog.Logger
	opts    Options
}

func New(store Storage, catalog Catalog, ratings Ratings, oracle llm.Oracle, logger *slog.Logger, opts Options) *Recommender {
	opts.applyDefaults()
	return &Recommender{
		store:   store,
		catalog: catalog,
		ratings: ratings,
		oracle:  oracle,
		logger:  logger,
		opts:    opts,
	}
}

// RecommendFromPrompt turns free-text preferences into a short list of
// enriched movies. The returned slice may legitimately be empty; provider
// errors never surface to the caller except the fatal cases noted below.
func (r *Recommender) RecommendFromPrompt(ctx context.Context, prompt string) ([]models.Movie, error) {
	start := time.Now()
	step := newStepTimer(r.logger)
	r.logger.Info("Prompt received", slog.String("prompt", prompt))

	filters := r.extractFilters(ctx, prompt)
	step.log("extract filters")

	// Explicit platform mentions in the prompt beat whatever the oracle
	// guessed.
	if mentioned := platform.Mentioned(prompt); len(mentioned) > 0 {
		filters.Platforms = mentioned
	}
	r.logger.Debug("Extracted filters", slog.Any("filters", filters))

	candidates := r.catalog.DiscoverPages(ctx, filters.Query(), r.opts.CatalogPages)
	step.log("catalog discover")

	toEnrich := qualityFilter(candidates, minCatalogRating, r.opts.CandidateLimit)
	r.logger.Debug("Quality-filtered candidates",
		slog.Int("fetched", len(candidates)),
		slog.Int("kept", len(toEnrich)))

	enriched := r.enrichCandidates(ctx, toEnrich)
	step.log("enrichment")
	r.logger.Debug("Enriched candidates", slog.Int("count", len(enriched)))

	// Sync runs candidate-by-candidate: the existence check and the write are
	// not atomic, so concurrent syncs of one key could double-insert.
	for _, movie := range enriched {
		r.store.SyncMovie(ctx, movie)
	}
	step.log("store sync")

	if len(enriched) == 0 {
		return r.fallback(ctx, prompt, filters, step)
	}

	filtered := postFilter(enriched, filters, true)
	r.logger.Debug("Post-filtered candidates",
		slog.Int("count", len(filtered)),
		slog.Any("platforms", filters.Platforms))
	step.log("platform and year filter")

	final, err := r.rerank(ctx, prompt, filters, filtered, start)
	if err != nil {
		return nil, err
	}
	step.log("re-rank")

	r.logger.Info("Recommendation flow complete",
		slog.Int("results", len(final)),
		slog.Duration("total", time.Since(start)))
	return final, nil
}

// fallback is the oracle-only path used when catalog-grounded enrichment
// produced nothing. A malformed title list here is fatal: there is no further
// degrade path below it.
func (r *Recommender) fallback(ctx context.Context, prompt string, filters FilterSet, step *stepTimer) ([]models.Movie, error) {
	r.logger.Warn("No enriched catalog results, asking oracle for direct titles")

	system := fmt.Sprintf(`You are a movie recommendation engine. Based on the user prompt, suggest %d movie titles (just title and year). Respond ONLY with a JSON array of objects like this:
[
  { "title": "The Fault in Our Stars", "year": 2014 },
  { "title": "Me and Earl and the Dying Girl", "year": 2015 }
]`, fallbackListSize)

	completion, err := r.oracle.Complete(ctx, system, prompt, 0.7)
	if err != nil {
		return nil, fmt.Errorf("fallback suggestion call failed: %w", err)
	}

	arr, err := jsontext.FirstArray(completion.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fallback title list: %w", err)
	}
	if err := validation.ValidateTitleList([]byte(arr)); err != nil {
		return nil, fmt.Errorf("invalid fallback title list: %w", err)
	}

	var pairs []TitleYear
	if err := json.Unmarshal([]byte(arr), &pairs); err != nil {
		return nil, fmt.Errorf("failed to decode fallback title list: %w", err)
	}
	r.logger.Debug("Fallback title list", slog.Any("titles", pairs))
	step.log("fallback title list")

	enriched := r.enrichPairs(ctx, pairs)
	step.log("fallback enrichment")

	for _, movie := range enriched {
		r.store.SyncMovie(ctx, movie)
	}
	step.log("fallback store sync")

	// The fallback list has no year grounding, so only the platform
	// constraint applies. Re-ranking is skipped on this path.
	filtered := postFilter(enriched, filters, false)
	r.logger.Info("Fallback flow complete", slog.Int("results", len(filtered)))
	return deref(filtered), nil
}

// rerank asks the oracle to pick the best subset of the filtered movies. On
// any parse trouble it degrades to the first entries of the input in their
// original order; only the oracle call itself failing is fatal.
func (r *Recommender) rerank(ctx context.Context, prompt string, filters FilterSet, movies []*models.Movie, start time.Time) ([]models.Movie, error) {
	input := deref(movies)

	serialized, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize movies: %w", err)
	}

	system := `You are a movie expert. From the list of movie objects, select the 5-10 best ones based on the user's preferences. Return your result by calling JSON.stringify(...) on the array of movie objects exactly as provided. Do NOT add comments, markdown, or any other formatting. Only output the raw result of JSON.stringify([...]).`
	user := fmt.Sprintf("Prompt: %s\n\nMovies:\n%s", prompt, serialized)

	completion, err := r.oracle.Complete(ctx, system, user, 0.4)
	if err != nil {
		return nil, fmt.Errorf("re-rank call failed: %w", err)
	}

	arr, err := jsontext.FirstArray(completion.Text)
	if err != nil {
		r.logger.Warn("Failed to locate re-rank array, returning head of list",
			slog.Any("error", err))
		return truncate(input, degradeResultSize), nil
	}

	var ranked []models.Movie
	if err := json.Unmarshal([]byte(arr), &ranked); err != nil {
		r.logger.Warn("Failed to decode re-rank array, returning head of list",
			slog.Any("error", err))
		return truncate(input, degradeResultSize), nil
	}

	r.logUsage(ctx, prompt, filters, ranked, arr, completion.TotalTokens, start)
	return ranked, nil
}

// logUsage appends the analytics record for a completed primary-path run.
func (r *Recommender) logUsage(ctx context.Context, prompt string, filters FilterSet, ranked []models.Movie, raw string, tokens int, start time.Time) {
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		r.logger.Warn("Failed to serialize filters for logging", slog.Any("error", err))
		filtersJSON = []byte("{}")
	}
	topJSON, err := json.Marshal(ranked)
	if err != nil {
		r.logger.Warn("Failed to serialize results for logging", slog.Any("error", err))
		topJSON = []byte("[]")
	}

	if len(raw) > maxFinalResponseLen {
		raw = raw[:maxFinalResponseLen]
	}

	r.store.LogPrompt(ctx, &models.PromptLog{
		PromptText:     prompt,
		Filters:        string(filtersJSON),
		Platforms:      filters.Platforms,
		TopMovies:      string(topJSON),
		FinalResponse:  raw,
		UsedFallback:   false,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		TokenUsage:     tokens,
	})
}

// postFilter narrows movies to the mentioned platforms and, when asked, the
// extracted year range. An empty platform set passes everything.
func postFilter(movies []*models.Movie, filters FilterSet, applyYears bool) []*models.Movie {
	from, to := filters.YearBounds()

	kept := make([]*models.Movie, 0, len(movies))
	for _, m := range movies {
		if len(filters.Platforms) > 0 && !intersects(m.StreamingServices, filters.Platforms) {
			continue
		}
		if applyYears && (m.Year < from || m.Year > to) {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

func intersects(have []string, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func truncate(movies []models.Movie, n int) []models.Movie {
	if len(movies) > n {
		return movies[:n]
	}
	return movies
}

func deref(movies []*models.Movie) []models.Movie {
	out := make([]models.Movie, 0, len(movies))
	for _, m := range movies {
		out = append(out, *m)
	}
	return out
}

// stepTimer mirrors the per-stage duration logging the pipeline has always
// had, as debug attrs instead of stdout lines.
type stepTimer struct {
	logger *slog.Logger
	last   time.Time
}

func newStepTimer(logger *slog.Logger) *stepTimer {
	return &stepTimer{logger: logger, last: time.Now()}
}

func (t *stepTimer) log(label string) {
	now := time.Now()
	t.logger.Debug("Pipeline step finished",
		slog.String("step", label),
		slog.Duration("elapsed", now.Sub(t.last)))
	t.last = now
}
