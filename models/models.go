package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// StringList stores a []string as a JSON column so SQLite can hold it.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for string list: %T", value)
	}

	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, l)
}

// Movie is a fully enriched movie record. Title and year form the natural
// lookup key; everything else is optional metadata merged from the catalog,
// ratings and streaming providers.
type Movie struct {
	gorm.Model
	Title             string     `gorm:"index:idx_movies_title_year" json:"title"`
	Year              int        `gorm:"index:idx_movies_title_year" json:"year"`
	Genres            StringList `json:"genres"`
	StreamingServices StringList `json:"streaming_services"`
	IMDbID            string     `json:"imdb_id,omitempty"`
	TMDbID            int        `json:"tmdb_id,omitempty"`
	IMDbRating        float64    `gorm:"column:imdb_rating" json:"imdb_rating,omitempty"`
	Metascore         int        `json:"metascore,omitempty"`
	RottenTomatoes    int        `json:"rotten_tomatoes,omitempty"`
	Plot              string     `json:"plot"`
	Director          string     `json:"director,omitempty"`
	Runtime           int        `json:"runtime,omitempty"`
	MainCast          StringList `json:"main_cast"`
	PosterURL         string     `json:"poster_url"`
}

// PromptLog is an append-only analytics record for one recommendation run.
// Nothing reads it back; it exists for offline analysis.
type PromptLog struct {
	gorm.Model
	PromptText     string     `json:"prompt_text"`
	Filters        string     `json:"filters"`
	Platforms      StringList `json:"platforms"`
	TopMovies      string     `json:"top_movies"`
	FinalResponse  string     `json:"final_response"`
	UsedFallback   bool       `json:"used_fallback"`
	ResponseTimeMs int64      `json:"response_time_ms"`
	TokenUsage     int        `json:"token_usage"`
}
