package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"log/slog"

	"golang.org/x/time/rate"
)

// ErrNotFound means OMDb has no record for the requested title and year.
var ErrNotFound = errors.New("no OMDb match for title")

// Client talks to the OMDb API for ratings, plot and credits.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Movie is the cleaned-up OMDb record. Fields OMDb reports as "N/A" are zero
// values here.
type Movie struct {
	IMDbID         string
	IMDbRating     float64
	Metascore      int
	RottenTomatoes int
	Plot           string
	Director       string
	Runtime        int
	MainCast       []string
	PosterURL      string
}

// rawMovie mirrors the OMDb wire format before normalization.
type rawMovie struct {
	Response string `json:"Response"`
	IMDbID   string `json:"imdbID"`
	Rating   string `json:"imdbRating"`
	Metas    string `json:"Metascore"`
	Plot     string `json:"Plot"`
	Director string `json:"Director"`
	Runtime  string `json:"Runtime"`
	Actors   string `json:"Actors"`
	Poster   string `json:"Poster"`
	Ratings  []struct {
		Source string `json:"Source"`
		Value  string `json:"Value"`
	} `json:"Ratings"`
}

var runtimeDigits = regexp.MustCompile(`\d+`)

func NewClient(apiKey string, httpClient *http.Client, ratePerSec int, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    "https://www.omdbapi.com",
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		logger:     logger,
	}
}

// SetBaseURL points the client at a different API root. Used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// GetMovie fetches the OMDb record for a title and year. Returns ErrNotFound
// when OMDb reports no match.
func (c *Client) GetMovie(ctx context.Context, title string, year int) (*Movie, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("t", title)
	if year > 0 {
		params.Set("y", strconv.Itoa(year))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	var raw rawMovie
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !strings.EqualFold(raw.Response, "True") {
		return nil, ErrNotFound
	}

	return normalize(raw), nil
}

// normalize turns the string-typed OMDb payload into a usable record. Every
// "N/A" collapses to the zero value.
func normalize(raw rawMovie) *Movie {
	m := &Movie{
		IMDbID:    cleanField(raw.IMDbID),
		Plot:      cleanField(raw.Plot),
		Director:  cleanField(raw.Director),
		PosterURL: cleanField(raw.Poster),
	}

	if rating := cleanField(raw.Rating); rating != "" {
		if parsed, err := strconv.ParseFloat(rating, 64); err == nil {
			m.IMDbRating = parsed
		}
	}
	if metas := cleanField(raw.Metas); metas != "" {
		if parsed, err := strconv.Atoi(metas); err == nil {
			m.Metascore = parsed
		}
	}

	// The Rotten Tomatoes score lives in the ratings list and is matched by
	// source name.
	for _, r := range raw.Ratings {
		if r.Source != "Rotten Tomatoes" {
			continue
		}
		if parsed, err := strconv.Atoi(strings.TrimSuffix(r.Value, "%")); err == nil {
			m.RottenTomatoes = parsed
		}
		break
	}

	if runtime := cleanField(raw.Runtime); strings.Contains(runtime, "min") {
		if digits := runtimeDigits.FindString(runtime); digits != "" {
			if parsed, err := strconv.Atoi(digits); err == nil {
				m.Runtime = parsed
			}
		}
	}

	if actors := cleanField(raw.Actors); actors != "" {
		for _, name := range strings.Split(actors, ",") {
			m.MainCast = append(m.MainCast, strings.TrimSpace(name))
		}
	}

	return m
}

func cleanField(v string) string {
	if v == "N/A" {
		return ""
	}
	return v
}
