package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/icco/moviematch/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: NewGormLogger(logger),
	})
	require.NoError(t, err)
	require.NoError(t, RunMigrations(gormDB, logger))

	return NewStore(gormDB, logger)
}

func testMovie() *models.Movie {
	return &models.Movie{
		Title:             "Heat",
		Year:              1995,
		Genres:            models.StringList{"Action", "Crime"},
		StreamingServices: models.StringList{"Netflix"},
		IMDbID:            "tt0113277",
		TMDbID:            949,
		IMDbRating:        8.3,
		Metascore:         76,
		RottenTomatoes:    88,
		Plot:              "A group of high-end professional thieves...",
		Director:          "Michael Mann",
		Runtime:           170,
		MainCast:          models.StringList{"Al Pacino", "Robert De Niro"},
		PosterURL:         "https://example.com/heat.jpg",
	}
}

func TestSyncMovieInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	store.SyncMovie(ctx, testMovie())

	var count int64
	require.NoError(t, store.DB().Model(&models.Movie{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Second sync with new platforms must patch, not insert.
	updated := testMovie()
	updated.StreamingServices = models.StringList{"Netflix", "Max"}
	updated.Director = "Someone Else" // must NOT be written on update
	store.SyncMovie(ctx, updated)

	require.NoError(t, store.DB().Model(&models.Movie{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "sync is idempotent on (title, year)")

	got, err := store.GetMovieByTitleYear(ctx, "Heat", 1995)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StringList{"Netflix", "Max"}, got.StreamingServices)
	assert.Equal(t, "Michael Mann", got.Director, "only streaming platforms are patched")
}

func TestSyncMovieDistinguishesYears(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := testMovie()
	store.SyncMovie(ctx, first)

	remake := testMovie()
	remake.Year = 2024
	store.SyncMovie(ctx, remake)

	var count int64
	require.NoError(t, store.DB().Model(&models.Movie{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "same title, different year is a different record")
}

func TestGetMovieByTitleYearMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetMovieByTitleYear(context.Background(), "Nope", 2099)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLandingMovies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	good := testMovie()
	store.SyncMovie(ctx, good)

	lowRated := testMovie()
	lowRated.Title = "Meh"
	lowRated.IMDbRating = 5.0
	store.SyncMovie(ctx, lowRated)

	noStreaming := testMovie()
	noStreaming.Title = "Nowhere"
	noStreaming.StreamingServices = nil
	store.SyncMovie(ctx, noStreaming)

	movies, err := store.LandingMovies(ctx, 3)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "Heat", movies[0].Title)
}

func TestLandingMoviesConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 10; i++ {
		movie := testMovie()
		movie.Title = fmt.Sprintf("Movie %d", i)
		store.SyncMovie(ctx, movie)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			movies, err := store.LandingMovies(ctx, 3)
			assert.NoError(t, err)
			assert.Len(t, movies, 3)
		}()
	}
	wg.Wait()
}

func TestLogPromptAndStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	store.SyncMovie(ctx, testMovie())
	store.LogPrompt(ctx, &models.PromptLog{
		PromptText:     "something scary",
		Filters:        "{}",
		UsedFallback:   false,
		ResponseTimeMs: 100,
	})
	store.LogPrompt(ctx, &models.PromptLog{
		PromptText:     "something weird",
		Filters:        "{}",
		UsedFallback:   true,
		ResponseTimeMs: 300,
	})

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMovies)
	assert.Equal(t, int64(2), stats.TotalPrompts)
	assert.Equal(t, int64(1), stats.FallbackPrompts)
	assert.InDelta(t, 200.0, stats.AverageResponseMs, 0.01)
}
