// Package handlers holds the JSON HTTP surface. Handlers deserialize a
// request, call into the store or the recommendation pipeline, and serialize
// the result; nothing else lives here.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/icco/moviematch/lib/db"
	"github.com/icco/moviematch/lib/recommend"
	"github.com/icco/moviematch/lib/search"
	"github.com/icco/moviematch/lib/validation"
	"github.com/icco/moviematch/models"
)

// landingCount is how many movies the landing page shows.
const landingCount = 3

type recommendRequest struct {
	Prompt string `json:"prompt"`
}

type resultsResponse struct {
	Results []models.Movie `json:"results"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}

// HandleRecommend runs the recommendation pipeline for a free-text prompt.
// Provider hiccups inside the pipeline degrade internally; only a fatal
// pipeline error surfaces, and then as an opaque 502.
func HandleRecommend(r *recommend.Recommender) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body recommendRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			validation.WriteError(w, fmt.Errorf("invalid request body"), http.StatusBadRequest)
			return
		}

		if err := validation.ValidatePrompt(body.Prompt); err != nil {
			validation.WriteError(w, err, http.StatusBadRequest)
			return
		}

		results, err := r.RecommendFromPrompt(req.Context(), body.Prompt)
		if err != nil {
			slog.Error("Recommendation pipeline failed", slog.Any("error", err))
			validation.WriteError(w, fmt.Errorf("recommendation failed"), http.StatusBadGateway)
			return
		}

		if results == nil {
			results = []models.Movie{}
		}
		writeJSON(w, http.StatusOK, resultsResponse{Results: results})
	}
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Results []search.Result `json:"results"`
}

// HandleSearch runs a topic search. Any trouble, including a bad request,
// answers with an empty result list rather than an error status.
func HandleSearch(s *search.Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body searchRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || strings.TrimSpace(body.Query) == "" {
			writeJSON(w, http.StatusOK, searchResponse{Results: []search.Result{}})
			return
		}

		results, err := s.Search(req.Context(), body.Query)
		if err != nil {
			slog.Error("Search failed", slog.Any("error", err))
			results = nil
		}
		if results == nil {
			results = []search.Result{}
		}
		writeJSON(w, http.StatusOK, searchResponse{Results: results})
	}
}

// HandleLanding returns a few random well-rated movies from the store.
func HandleLanding(store *db.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		movies, err := store.LandingMovies(req.Context(), landingCount)
		if err != nil {
			slog.Error("Failed to get landing movies", slog.Any("error", err))
			validation.WriteError(w, fmt.Errorf("failed to load movies"), http.StatusInternalServerError)
			return
		}

		if movies == nil {
			movies = []models.Movie{}
		}
		writeJSON(w, http.StatusOK, resultsResponse{Results: movies})
	}
}

// HandleStats summarizes the store for dashboards.
func HandleStats(store *db.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		stats, err := store.Stats(req.Context())
		if err != nil {
			slog.Error("Failed to get stats", slog.Any("error", err))
			validation.WriteError(w, fmt.Errorf("failed to load stats"), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
