package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/icco/moviematch/models"
	"gorm.io/gorm"
)

// tablesToDrop lists tables left behind by earlier schema iterations.
var tablesToDrop = []string{
	"api_usage_logs",
	"prompts",
}

// RunMigrations runs all database migrations
func RunMigrations(db *gorm.DB, logger *slog.Logger) error {
	ctx := context.Background()

	// Enable SQLite optimizations
	if err := enableSQLiteOptimizations(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to enable SQLite optimizations: %w", err)
	}

	if err := db.AutoMigrate(&models.Movie{}, &models.PromptLog{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Drop old tables
	for _, table := range tablesToDrop {
		if err := dropTableIfExists(ctx, db, table, logger); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}

	// Create additional indexes and constraints
	if err := createAdditionalIndexes(ctx, db, logger); err != nil {
		return fmt.Errorf("failed to create additional indexes: %w", err)
	}

	return nil
}

// dropTableIfExists drops a table if it exists
func dropTableIfExists(ctx context.Context, db *gorm.DB, tableName string, logger *slog.Logger) error {
	if err := db.WithContext(ctx).Exec("DROP TABLE IF EXISTS " + tableName).Error; err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	logger.Info("Dropped legacy table if present", slog.String("table", tableName))
	return nil
}

// enableSQLiteOptimizations enables SQLite-specific optimizations
func enableSQLiteOptimizations(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	optimizations := []string{
		"PRAGMA journal_mode=WAL",    // Enable WAL mode for better concurrency
		"PRAGMA synchronous=NORMAL",  // Faster writes while maintaining safety
		"PRAGMA cache_size=1000",     // Increase cache size
		"PRAGMA foreign_keys=ON",     // Enable foreign key constraints
		"PRAGMA temp_store=MEMORY",   // Store temporary tables in memory
		"PRAGMA mmap_size=134217728", // Enable memory-mapped I/O (128MB)
		"PRAGMA optimize",            // Enable query optimization
	}

	for _, pragma := range optimizations {
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			logger.Warn("Failed to execute pragma", slog.String("pragma", pragma), slog.Any("error", err))
		} else {
			logger.Debug("Executed pragma", slog.String("pragma", pragma))
		}
	}

	return nil
}

// createAdditionalIndexes creates additional indexes for performance
func createAdditionalIndexes(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	// The landing query filters on ratings; prompt analytics is scanned by time.
	additionalIndexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_movies_ratings ON movies(imdb_rating, rotten_tomatoes)",
		"CREATE INDEX IF NOT EXISTS idx_movies_year ON movies(year)",
		"CREATE INDEX IF NOT EXISTS idx_prompt_logs_created_at ON prompt_logs(created_at)",
	}

	for _, indexSQL := range additionalIndexes {
		if err := db.WithContext(ctx).Exec(indexSQL).Error; err != nil {
			logger.Warn("Failed to create index", slog.String("sql", indexSQL), slog.Any("error", err))
		} else {
			logger.Debug("Created index", slog.String("sql", indexSQL))
		}
	}

	return nil
}
