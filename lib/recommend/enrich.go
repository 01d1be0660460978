package recommend

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/icco/moviematch/lib/tmdb"
	"github.com/icco/moviematch/models"
	"golang.org/x/sync/errgroup"
)

// TitleYear identifies a movie by its natural key. The fallback path starts
// from these instead of catalog candidates.
type TitleYear struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
}

// qualityFilter keeps catalog candidates complete enough to enrich: a poster,
// a title, a release date, and a vote average above the rating floor. The
// survivors are capped to bound the enrichment fan-out.
func qualityFilter(candidates []tmdb.Candidate, minRating float64, cap int) []tmdb.Candidate {
	kept := make([]tmdb.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.PosterPath == "" || c.Title == "" || c.ReleaseDate == "" {
			continue
		}
		if c.VoteAverage <= minRating {
			continue
		}
		kept = append(kept, c)
		if len(kept) == cap {
			break
		}
	}
	return kept
}

// enrichCandidates fans out enrichment across catalog candidates with bounded
// concurrency. Per-candidate failures drop that candidate and nothing else;
// relative order of survivors follows the catalog sort.
func (r *Recommender) enrichCandidates(ctx context.Context, candidates []tmdb.Candidate) []*models.Movie {
	results := make([]*models.Movie, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.EnrichConcurrency)
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			movie, err := r.enrichOne(gctx, candidate.Title, candidate.Year(), r.catalog.PosterURL(candidate.PosterPath))
			if err != nil {
				r.logger.Warn("Skipping candidate",
					slog.String("title", candidate.Title),
					slog.Any("error", err))
				return nil
			}
			results[i] = movie
			return nil
		})
	}
	// Workers never return errors; per-candidate failures are logged above.
	_ = g.Wait()

	return compact(results)
}

// enrichPairs runs the same enrichment over bare title/year pairs. No catalog
// poster exists yet, so the poster comes from the providers.
func (r *Recommender) enrichPairs(ctx context.Context, pairs []TitleYear) []*models.Movie {
	results := make([]*models.Movie, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.EnrichConcurrency)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			movie, err := r.enrichOne(gctx, pair.Title, pair.Year, "")
			if err != nil {
				r.logger.Warn("Skipping fallback title",
					slog.String("title", pair.Title),
					slog.Any("error", err))
				return nil
			}
			results[i] = movie
			return nil
		})
	}
	_ = g.Wait()

	return compact(results)
}

// enrichOne merges the ratings, metadata and streaming providers into one
// validated movie record. Any missing essential field aborts this candidate.
func (r *Recommender) enrichOne(ctx context.Context, title string, year int, catalogPoster string) (*models.Movie, error) {
	if title == "" || year == 0 {
		return nil, fmt.Errorf("missing title or year")
	}

	ratings, err := r.ratings.GetMovie(ctx, title, year)
	if err != nil {
		return nil, fmt.Errorf("ratings lookup failed: %w", err)
	}

	matches, err := r.catalog.SearchMovie(ctx, title, year)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no catalog match")
	}
	match := matches[0]

	details, err := r.catalog.GetMovieDetails(ctx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("catalog details failed: %w", err)
	}

	platforms, err := r.catalog.GetWatchProviders(ctx, match.ID, r.opts.WatchRegion)
	if err != nil {
		r.logger.Warn("Watch provider lookup failed",
			slog.String("title", title),
			slog.Any("error", err))
		platforms = nil
	}

	if ratings.Plot == "" {
		return nil, fmt.Errorf("no plot available")
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("no streaming platforms")
	}

	// The ratings provider's poster wins when present; the catalog's is the
	// backup.
	poster := ratings.PosterURL
	if poster == "" {
		poster = catalogPoster
	}
	if poster == "" {
		poster = r.catalog.PosterURL(match.PosterPath)
	}
	if poster == "" {
		return nil, fmt.Errorf("no poster available")
	}

	runtime := details.Runtime
	if runtime == 0 {
		runtime = ratings.Runtime
	}

	return &models.Movie{
		Title:             title,
		Year:              year,
		Genres:            details.GenreNames(),
		StreamingServices: platforms,
		IMDbID:            ratings.IMDbID,
		TMDbID:            match.ID,
		IMDbRating:        ratings.IMDbRating,
		Metascore:         ratings.Metascore,
		RottenTomatoes:    ratings.RottenTomatoes,
		Plot:              ratings.Plot,
		Director:          ratings.Director,
		Runtime:           runtime,
		MainCast:          ratings.MainCast,
		PosterURL:         poster,
	}, nil
}

func compact(movies []*models.Movie) []*models.Movie {
	kept := make([]*models.Movie, 0, len(movies))
	for _, m := range movies {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return kept
}
