package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"log/slog"

	"github.com/icco/moviematch/lib/types"
	"github.com/icco/moviematch/models"
	"gorm.io/gorm"
)

// Store wraps the shared movie database. The table is an opportunistic
// mirror, not a source of truth: callers may read, insert or patch records,
// and every write is best-effort.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying gorm handle for health checks and migrations.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// SyncMovie upserts one enriched movie keyed by (title, year). An existing
// record only gets its streaming platforms patched; a missing one is inserted
// whole. Store errors are logged and swallowed; persistence is a side
// effect, never a precondition for answering the user.
//
// Callers must invoke this sequentially per movie: the lookup-then-write pair
// is not atomic, and concurrent syncs of the same key can duplicate inserts.
func (s *Store) SyncMovie(ctx context.Context, movie *models.Movie) {
	var existing models.Movie
	err := s.db.WithContext(ctx).
		Where("title = ? AND year = ?", movie.Title, movie.Year).
		First(&existing).Error

	switch {
	case err == nil:
		update := s.db.WithContext(ctx).
			Model(&models.Movie{}).
			Where("title = ? AND year = ?", movie.Title, movie.Year).
			Update("streaming_services", movie.StreamingServices)
		if update.Error != nil {
			s.logger.Error("Failed to update streaming platforms",
				slog.String("title", movie.Title),
				slog.Int("year", movie.Year),
				slog.Any("error", update.Error))
			return
		}
		s.logger.Debug("Updated streaming platforms",
			slog.String("title", movie.Title),
			slog.Int("year", movie.Year))

	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(movie).Error; err != nil {
			s.logger.Error("Failed to insert movie",
				slog.String("title", movie.Title),
				slog.Int("year", movie.Year),
				slog.Any("error", err))
			return
		}
		s.logger.Debug("Inserted movie",
			slog.String("title", movie.Title),
			slog.Int("year", movie.Year))

	default:
		s.logger.Warn("Failed to check for existing movie",
			slog.String("title", movie.Title),
			slog.Int("year", movie.Year),
			slog.Any("error", err))
	}
}

// GetMovieByTitleYear returns the stored record for a natural key, or nil
// when none exists.
func (s *Store) GetMovieByTitleYear(ctx context.Context, title string, year int) (*models.Movie, error) {
	var movie models.Movie
	err := s.db.WithContext(ctx).
		Where("title = ? AND year = ?", title, year).
		First(&movie).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}
	return &movie, nil
}

// LogPrompt appends one analytics record. Best-effort; failures are logged
// and never reach the caller.
func (s *Store) LogPrompt(ctx context.Context, entry *models.PromptLog) {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Warn("Failed to log prompt usage", slog.Any("error", err))
		return
	}
	s.logger.Debug("Prompt usage logged")
}

// LandingMovies picks up to count random well-rated movies with known
// streaming availability for the landing page.
func (s *Store) LandingMovies(ctx context.Context, count int) ([]models.Movie, error) {
	var movies []models.Movie
	err := s.db.WithContext(ctx).
		Where("imdb_rating > ? AND rotten_tomatoes > ?", 6.5, 70).
		Where("streaming_services IS NOT NULL AND streaming_services != ? AND streaming_services != ?", "", "[]").
		Order("year desc").
		Limit(20).
		Find(&movies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get landing movies: %w", err)
	}

	// Package-level Shuffle is safe under concurrent landing requests.
	rand.Shuffle(len(movies), func(i, j int) {
		movies[i], movies[j] = movies[j], movies[i]
	})
	if len(movies) > count {
		movies = movies[:count]
	}
	return movies, nil
}

// Stats summarizes the store for the stats endpoint.
func (s *Store) Stats(ctx context.Context) (*types.StatsData, error) {
	var stats types.StatsData

	if err := s.db.WithContext(ctx).Model(&models.Movie{}).Count(&stats.TotalMovies).Error; err != nil {
		return nil, fmt.Errorf("failed to count movies: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.PromptLog{}).Count(&stats.TotalPrompts).Error; err != nil {
		return nil, fmt.Errorf("failed to count prompts: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.PromptLog{}).
		Where("used_fallback = ?", true).
		Count(&stats.FallbackPrompts).Error; err != nil {
		return nil, fmt.Errorf("failed to count fallback prompts: %w", err)
	}

	if stats.TotalPrompts > 0 {
		row := s.db.WithContext(ctx).Model(&models.PromptLog{}).
			Select("AVG(response_time_ms)").
			Row()
		if err := row.Scan(&stats.AverageResponseMs); err != nil {
			return nil, fmt.Errorf("failed to compute average response time: %w", err)
		}
	}

	return &stats, nil
}
