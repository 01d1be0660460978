package types

// StatsData summarizes the shared movie store and the prompt analytics log.
type StatsData struct {
	TotalMovies       int64   `json:"total_movies"`
	TotalPrompts      int64   `json:"total_prompts"`
	FallbackPrompts   int64   `json:"fallback_prompts"`
	AverageResponseMs float64 `json:"average_response_ms"`
}
