package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icco/moviematch/lib/jsontext"
	"github.com/icco/moviematch/lib/llm"
	"github.com/icco/moviematch/lib/omdb"
	"github.com/icco/moviematch/lib/tmdb"
	"github.com/icco/moviematch/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCatalog serves canned discover/search/details/provider data.
type fakeCatalog struct {
	discover  []tmdb.Candidate
	matches   map[string]tmdb.Candidate
	details   map[int]*tmdb.MovieDetails
	providers map[int][]string
}

func (f *fakeCatalog) DiscoverPages(ctx context.Context, q tmdb.DiscoverQuery, pages int) []tmdb.Candidate {
	return f.discover
}

func (f *fakeCatalog) SearchMovie(ctx context.Context, title string, year int) ([]tmdb.Candidate, error) {
	match, ok := f.matches[title]
	if !ok {
		return nil, nil
	}
	return []tmdb.Candidate{match}, nil
}

func (f *fakeCatalog) GetMovieDetails(ctx context.Context, id int) (*tmdb.MovieDetails, error) {
	details, ok := f.details[id]
	if !ok {
		return nil, fmt.Errorf("no details for id %d", id)
	}
	return details, nil
}

func (f *fakeCatalog) GetWatchProviders(ctx context.Context, id int, region string) ([]string, error) {
	return f.providers[id], nil
}

func (f *fakeCatalog) PosterURL(posterPath string) string {
	if posterPath == "" {
		return ""
	}
	return "https://image.example.com" + posterPath
}

// fakeRatings answers by title; absent titles report no match.
type fakeRatings struct {
	movies map[string]*omdb.Movie
}

func (f *fakeRatings) GetMovie(ctx context.Context, title string, year int) (*omdb.Movie, error) {
	movie, ok := f.movies[title]
	if !ok {
		return nil, omdb.ErrNotFound
	}
	return movie, nil
}

// fakeStore records sync and log calls.
type fakeStore struct {
	synced []models.Movie
	logs   []models.PromptLog
}

func (f *fakeStore) SyncMovie(ctx context.Context, movie *models.Movie) {
	f.synced = append(f.synced, *movie)
}

func (f *fakeStore) LogPrompt(ctx context.Context, entry *models.PromptLog) {
	f.logs = append(f.logs, *entry)
}

// fakeOracle dispatches on temperature: 0 is filter extraction, 0.7 the
// fallback list, 0.4 the re-rank. Each stage's reply is scripted.
type fakeOracle struct {
	filterReply   string
	fallbackReply string
	rerankReply   func(user string) string

	filterCalls   int
	fallbackCalls int
	rerankCalls   int
}

func (f *fakeOracle) Complete(ctx context.Context, system, user string, temperature float32) (llm.Completion, error) {
	switch temperature {
	case 0:
		f.filterCalls++
		return llm.Completion{Text: f.filterReply, TotalTokens: 10}, nil
	case 0.7:
		f.fallbackCalls++
		return llm.Completion{Text: f.fallbackReply, TotalTokens: 20}, nil
	case 0.4:
		f.rerankCalls++
		reply := "[]"
		if f.rerankReply != nil {
			reply = f.rerankReply(user)
		}
		return llm.Completion{Text: reply, TotalTokens: 30}, nil
	default:
		return llm.Completion{}, fmt.Errorf("unexpected temperature %v", temperature)
	}
}

// echoRerank parses the serialized movie list out of the re-rank request and
// returns the first n entries verbatim, the way a cooperative model would.
func echoRerank(n int) func(user string) string {
	return func(user string) string {
		arr, err := jsontext.FirstArray(user)
		if err != nil {
			return "[]"
		}
		var movies []models.Movie
		if err := json.Unmarshal([]byte(arr), &movies); err != nil {
			return "[]"
		}
		if len(movies) > n {
			movies = movies[:n]
		}
		out, _ := json.Marshal(movies)
		return "JSON.stringify(" + string(out) + ")"
	}
}

func enrichableCandidate(id int, title, release string) tmdb.Candidate {
	return tmdb.Candidate{
		ID:          id,
		Title:       title,
		ReleaseDate: release,
		PosterPath:  fmt.Sprintf("/%d.jpg", id),
		VoteAverage: 7.5,
	}
}

func enrichableWorld(titles map[int]string, platforms []string) (*fakeCatalog, *fakeRatings) {
	catalog := &fakeCatalog{
		matches:   map[string]tmdb.Candidate{},
		details:   map[int]*tmdb.MovieDetails{},
		providers: map[int][]string{},
	}
	ratings := &fakeRatings{movies: map[string]*omdb.Movie{}}

	for id, title := range titles {
		catalog.matches[title] = tmdb.Candidate{ID: id, Title: title, PosterPath: fmt.Sprintf("/%d.jpg", id)}
		catalog.details[id] = &tmdb.MovieDetails{
			ID:      id,
			Runtime: 120,
			Genres: []struct {
				Name string `json:"name"`
			}{{Name: "Horror"}},
		}
		catalog.providers[id] = platforms
		ratings.movies[title] = &omdb.Movie{
			IMDbID:         fmt.Sprintf("tt%07d", id),
			IMDbRating:     7.8,
			RottenTomatoes: 85,
			Plot:           "Something happens to someone.",
			Director:       "A Director",
			MainCast:       []string{"An Actor"},
			PosterURL:      fmt.Sprintf("https://posters.example.com/%d.jpg", id),
		}
	}
	return catalog, ratings
}

func newTestRecommender(store Storage, catalog Catalog, ratings Ratings, oracle llm.Oracle) *Recommender {
	return New(store, catalog, ratings, oracle, testLogger(), Options{})
}

func TestRecommendPrimaryPath(t *testing.T) {
	// Scenario: three enrichable catalog candidates, all on Netflix, and a
	// cooperative re-ranking oracle that picks two of them.
	titles := map[int]string{1: "The Shining", 2: "Hereditary", 3: "The Babadook"}
	catalog, ratings := enrichableWorld(titles, []string{"Netflix"})
	catalog.discover = []tmdb.Candidate{
		enrichableCandidate(1, "The Shining", "1980-05-23"),
		enrichableCandidate(2, "Hereditary", "2018-06-08"),
		enrichableCandidate(3, "The Babadook", "2014-05-22"),
	}

	store := &fakeStore{}
	oracle := &fakeOracle{
		filterReply: `{"with_genres": 27}`,
		rerankReply: echoRerank(2),
	}

	r := newTestRecommender(store, catalog, ratings, oracle)
	results, err := r.RecommendFromPrompt(context.Background(), "something scary on Netflix")
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, movie := range results {
		assert.Contains(t, []string{"The Shining", "Hereditary", "The Babadook"}, movie.Title)
		assert.NotEmpty(t, movie.Plot)
		assert.NotEmpty(t, movie.StreamingServices)
		assert.NotZero(t, movie.Year)
	}

	assert.Len(t, store.synced, 3, "every enriched candidate syncs exactly once")
	assert.Equal(t, 0, oracle.fallbackCalls)
	assert.Equal(t, 1, oracle.rerankCalls)

	require.Len(t, store.logs, 1)
	assert.False(t, store.logs[0].UsedFallback)
	assert.Equal(t, []string{"Netflix"}, []string(store.logs[0].Platforms))
	assert.Equal(t, 30, store.logs[0].TokenUsage)
}

func TestRecommendFallbackPath(t *testing.T) {
	// Scenario: nothing from the catalog survives, oracle suggests two
	// enrichable titles. Re-ranking must never run.
	titles := map[int]string{10: "Coherence", 11: "Timecrimes"}
	catalog, ratings := enrichableWorld(titles, []string{"Netflix"})
	catalog.discover = []tmdb.Candidate{
		// Missing poster: rejected by the quality filter.
		{ID: 99, Title: "No Poster", ReleaseDate: "2001-01-01", VoteAverage: 9.0},
	}

	store := &fakeStore{}
	oracle := &fakeOracle{
		filterReply:   `{}`,
		fallbackReply: `[{"title":"Coherence","year":2013},{"title":"Timecrimes","year":2007}]`,
	}

	r := newTestRecommender(store, catalog, ratings, oracle)
	results, err := r.RecommendFromPrompt(context.Background(), "mindbending low budget sci-fi on netflix")
	require.NoError(t, err)

	require.Len(t, results, 2)
	gotTitles := []string{results[0].Title, results[1].Title}
	assert.ElementsMatch(t, []string{"Coherence", "Timecrimes"}, gotTitles)

	assert.Equal(t, 1, oracle.fallbackCalls)
	assert.Equal(t, 0, oracle.rerankCalls, "fallback path skips re-ranking")
	assert.Len(t, store.synced, 2)
}

func TestRecommendFallbackEmptyListIsEmptyResult(t *testing.T) {
	// An empty fallback list is a legitimate "nothing matches" answer, not a
	// pipeline failure.
	catalog, ratings := enrichableWorld(nil, nil)
	store := &fakeStore{}
	oracle := &fakeOracle{
		filterReply:   `{}`,
		fallbackReply: `[]`,
	}

	r := newTestRecommender(store, catalog, ratings, oracle)
	results, err := r.RecommendFromPrompt(context.Background(), "a silent film about beekeeping")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, store.synced)
}

func TestRecommendFallbackToleratesExtraKeys(t *testing.T) {
	// Models routinely decorate the requested objects with extra fields; only
	// title and year matter.
	titles := map[int]string{10: "Coherence"}
	catalog, ratings := enrichableWorld(titles, []string{"Netflix"})

	store := &fakeStore{}
	oracle := &fakeOracle{
		filterReply:   `{}`,
		fallbackReply: `[{"title":"Coherence","year":2013,"why":"mindbending"}]`,
	}

	r := newTestRecommender(store, catalog, ratings, oracle)
	results, err := r.RecommendFromPrompt(context.Background(), "mindbending sci-fi")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Coherence", results[0].Title)
}

func TestRecommendFallbackParseFailureIsFatal(t *testing.T) {
	catalog, ratings := enrichableWorld(nil, nil)
	store := &fakeStore{}
	oracle := &fakeOracle{
		filterReply:   `{}`,
		fallbackReply: `I'm sorry, I can't produce JSON right now.`,
	}

	r := newTestRecommender(store, catalog, ratings, oracle)
	_, err := r.RecommendFromPrompt(context.Background(), "anything at all")
	assert.Error(t, err)
}

func TestRecommendFallbackRejectsMalformedList(t *testing.T) {
	catalog, ratings := enrichableWorld(nil, nil)
	oracle := &fakeOracle{
		filterReply:   `{}`,
		fallbackReply: `[{"title":"Missing Year"}]`,
	}

	r := newTestRecommender(&fakeStore{}, catalog, ratings, oracle)
	_, err := r.RecommendFromPrompt(context.Background(), "anything at all")
	assert.Error(t, err)
}

func TestRecommendRerankDegradesToHeadOfList(t *testing.T) {
	// Scenario: re-rank output is prose with no array; the pipeline returns
	// the first five filtered movies in their original order.
	titles := map[int]string{}
	for i := 1; i <= 7; i++ {
		titles[i] = fmt.Sprintf("Movie %d", i)
	}
	catalog, ratings := enrichableWorld(titles, []string{"Netflix"})
	for i := 1; i <= 7; i++ {
		catalog.discover = append(catalog.discover,
			enrichableCandidate(i, fmt.Sprintf("Movie %d", i), "2010-01-01"))
	}

	store := &fakeStore{}
	oracle := &fakeOracle{
		filterReply: `{}`,
		rerankReply: func(string) string { return "These are all wonderful films, enjoy!" },
	}

	r := newTestRecommender(store, catalog, ratings, oracle)
	results, err := r.RecommendFromPrompt(context.Background(), "movies")
	require.NoError(t, err)

	require.Len(t, results, 5)
	for i, movie := range results {
		assert.Equal(t, fmt.Sprintf("Movie %d", i+1), movie.Title, "pre-ranking order preserved")
	}
	assert.Empty(t, store.logs, "degraded runs do not produce a usage record")
}

func TestRecommendOmitsCandidatesWithoutRatingsMatch(t *testing.T) {
	titles := map[int]string{1: "Known"}
	catalog, ratings := enrichableWorld(titles, []string{"Netflix"})
	catalog.discover = []tmdb.Candidate{
		enrichableCandidate(1, "Known", "2010-01-01"),
		enrichableCandidate(2, "Unknown", "2011-01-01"),
	}

	store := &fakeStore{}
	oracle := &fakeOracle{filterReply: `{}`, rerankReply: echoRerank(10)}

	r := newTestRecommender(store, catalog, ratings, oracle)
	results, err := r.RecommendFromPrompt(context.Background(), "movies")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "Known", results[0].Title)
	assert.Len(t, store.synced, 1, "unenrichable candidates are never persisted")
}

func TestRecommendPlatformMentionOverridesOracle(t *testing.T) {
	titles := map[int]string{1: "On Netflix", 2: "On Hulu"}
	catalog, ratings := enrichableWorld(titles, nil)
	catalog.providers[1] = []string{"Netflix"}
	catalog.providers[2] = []string{"Hulu"}
	catalog.discover = []tmdb.Candidate{
		enrichableCandidate(1, "On Netflix", "2010-01-01"),
		enrichableCandidate(2, "On Hulu", "2011-01-01"),
	}

	store := &fakeStore{}
	oracle := &fakeOracle{
		// The oracle claims Hulu; the prompt explicitly says Netflix.
		filterReply: `{"platforms": ["Hulu"]}`,
		rerankReply: echoRerank(10),
	}

	r := newTestRecommender(store, catalog, ratings, oracle)
	results, err := r.RecommendFromPrompt(context.Background(), "something on netflix")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "On Netflix", results[0].Title)
	assert.Len(t, store.synced, 2, "post-filtering does not affect persistence")
}

func TestRecommendYearBounds(t *testing.T) {
	titles := map[int]string{1: "Nineties", 2: "Aughts"}
	catalog, ratings := enrichableWorld(titles, []string{"Netflix"})
	catalog.discover = []tmdb.Candidate{
		enrichableCandidate(1, "Nineties", "1995-06-01"),
		enrichableCandidate(2, "Aughts", "2005-06-01"),
	}

	oracle := &fakeOracle{
		filterReply: `{"primary_release_year.gte": 1990, "primary_release_year.lte": 1999}`,
		rerankReply: echoRerank(10),
	}

	r := newTestRecommender(&fakeStore{}, catalog, ratings, oracle)
	results, err := r.RecommendFromPrompt(context.Background(), "a thriller from the 90s")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "Nineties", results[0].Title)
}

func TestQualityFilter(t *testing.T) {
	complete := tmdb.Candidate{Title: "Good", ReleaseDate: "2000-01-01", PosterPath: "/p.jpg", VoteAverage: 8}

	tests := []struct {
		name      string
		candidate tmdb.Candidate
		kept      bool
	}{
		{"complete", complete, true},
		{"no poster", tmdb.Candidate{Title: "X", ReleaseDate: "2000-01-01", VoteAverage: 9.9}, false},
		{"no title", tmdb.Candidate{ReleaseDate: "2000-01-01", PosterPath: "/p.jpg", VoteAverage: 8}, false},
		{"no release date", tmdb.Candidate{Title: "X", PosterPath: "/p.jpg", VoteAverage: 8}, false},
		{"rating at threshold", tmdb.Candidate{Title: "X", ReleaseDate: "2000-01-01", PosterPath: "/p.jpg", VoteAverage: 5.0}, false},
		{"rating above threshold", tmdb.Candidate{Title: "X", ReleaseDate: "2000-01-01", PosterPath: "/p.jpg", VoteAverage: 5.1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := qualityFilter([]tmdb.Candidate{tt.candidate}, minCatalogRating, 30)
			if tt.kept {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestQualityFilterCap(t *testing.T) {
	var candidates []tmdb.Candidate
	for i := 0; i < 50; i++ {
		candidates = append(candidates, tmdb.Candidate{
			Title:       fmt.Sprintf("Movie %d", i),
			ReleaseDate: "2000-01-01",
			PosterPath:  "/p.jpg",
			VoteAverage: 8,
		})
	}

	got := qualityFilter(candidates, minCatalogRating, 30)
	require.Len(t, got, 30)
	assert.Equal(t, "Movie 0", got[0].Title, "catalog sort order is preserved")
	assert.Equal(t, "Movie 29", got[29].Title)
}

func TestExtractFiltersDegradesOnGarbage(t *testing.T) {
	catalog, ratings := enrichableWorld(nil, nil)
	oracle := &fakeOracle{filterReply: "definitely not json"}

	r := newTestRecommender(&fakeStore{}, catalog, ratings, oracle)
	filters := r.extractFilters(context.Background(), "whatever")
	assert.Equal(t, FilterSet{}, filters)
}

func TestExtractFiltersCoercesTypes(t *testing.T) {
	catalog, ratings := enrichableWorld(nil, nil)
	oracle := &fakeOracle{
		filterReply: `{"with_genres": 53, "primary_release_year": "1999", "with_keywords": " heist ", "platforms": ["HBO Max", "hulu"]}`,
	}

	r := newTestRecommender(&fakeStore{}, catalog, ratings, oracle)
	filters := r.extractFilters(context.Background(), "whatever")

	assert.Equal(t, "53", filters.GenreID)
	assert.Equal(t, 1999, filters.Year)
	assert.Equal(t, "heist", filters.Keywords)
	assert.Equal(t, []string{"Max", "Hulu"}, filters.Platforms)
}

func TestFilterSetYearBounds(t *testing.T) {
	from, to := FilterSet{}.YearBounds()
	assert.Equal(t, 1900, from)
	assert.Equal(t, 2100, to)

	from, to = FilterSet{YearGTE: 1990, YearLTE: 1999}.YearBounds()
	assert.Equal(t, 1990, from)
	assert.Equal(t, 1999, to)
}
