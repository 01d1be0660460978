package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"log/slog"

	"golang.org/x/time/rate"
)

// Client talks to the TMDb HTTP API: discovery, per-title search, details and
// watch-provider lookups. One instance is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Candidate is one raw entry from a discover or search response.
type Candidate struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	PosterPath  string  `json:"poster_path"`
	VoteAverage float64 `json:"vote_average"`
	Popularity  float64 `json:"popularity"`
	GenreIDs    []int   `json:"genre_ids"`
}

// Year parses the release year out of the candidate's release date. Returns 0
// when the date is missing or malformed.
func (c Candidate) Year() int {
	if len(c.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(c.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

type candidatePage struct {
	Results []Candidate `json:"results"`
}

// Keyword is one entry from a keyword search response.
type Keyword struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type keywordPage struct {
	Results []Keyword `json:"results"`
}

// MovieDetails holds the per-title metadata the pipeline needs.
type MovieDetails struct {
	ID     int `json:"id"`
	Genres []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Runtime int `json:"runtime"`
}

// GenreNames flattens the details genre objects into names.
func (d MovieDetails) GenreNames() []string {
	names := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		names = append(names, g.Name)
	}
	return names
}

type providerResponse struct {
	Results map[string]struct {
		Flatrate []struct {
			ProviderName string `json:"provider_name"`
		} `json:"flatrate"`
	} `json:"results"`
}

// DiscoverQuery captures the catalog filters extracted from a prompt.
type DiscoverQuery struct {
	GenreID  string
	Year     int
	YearGTE  int
	YearLTE  int
	Keywords string
	Page     int
}

func NewClient(apiKey string, httpClient *http.Client, ratePerSec int, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    "https://api.themoviedb.org/3",
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		logger:     logger,
	}
}

// SetBaseURL points the client at a different API root. Used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	params.Set("api_key", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Discover runs one page of a discover query: popularity-descending, adult
// content excluded, with whatever genre/year/keyword filters are set.
func (c *Client) Discover(ctx context.Context, q DiscoverQuery) ([]Candidate, error) {
	params := url.Values{}
	params.Set("sort_by", "popularity.desc")
	params.Set("include_adult", "false")
	if q.GenreID != "" {
		params.Set("with_genres", q.GenreID)
	}
	if q.Year > 0 {
		params.Set("primary_release_year", strconv.Itoa(q.Year))
	}
	if q.Keywords != "" {
		params.Set("with_keywords", q.Keywords)
	}
	// Year-range bounds translate to the catalog's native date-range params.
	if q.YearGTE > 0 {
		params.Set("primary_release_date.gte", fmt.Sprintf("%d-01-01", q.YearGTE))
	}
	if q.YearLTE > 0 {
		params.Set("primary_release_date.lte", fmt.Sprintf("%d-12-31", q.YearLTE))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}

	var page candidatePage
	if err := c.get(ctx, "/discover/movie", params, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// DiscoverPages fetches pages 1..pages of the same query and concatenates the
// results. A failing page is logged and treated as empty; partial results are
// better than none.
func (c *Client) DiscoverPages(ctx context.Context, q DiscoverQuery, pages int) []Candidate {
	var all []Candidate
	for page := 1; page <= pages; page++ {
		q.Page = page
		results, err := c.Discover(ctx, q)
		if err != nil {
			c.logger.Warn("Discover page failed",
				slog.Int("page", page),
				slog.Any("error", err))
			continue
		}
		all = append(all, results...)
	}
	return all
}

// SearchMovie looks up a title by name and release year.
func (c *Client) SearchMovie(ctx context.Context, title string, year int) ([]Candidate, error) {
	params := url.Values{}
	params.Set("query", title)
	if year > 0 {
		params.Set("year", strconv.Itoa(year))
	}

	var page candidatePage
	if err := c.get(ctx, "/search/movie", params, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// SearchKeyword looks up TMDb keyword ids matching a free-text topic.
func (c *Client) SearchKeyword(ctx context.Context, query string) ([]Keyword, error) {
	params := url.Values{}
	params.Set("query", query)

	var page keywordPage
	if err := c.get(ctx, "/search/keyword", params, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// GetMovieDetails fetches genre names and runtime for a known TMDb id.
func (c *Client) GetMovieDetails(ctx context.Context, id int) (*MovieDetails, error) {
	var details MovieDetails
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", id), url.Values{}, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// GetWatchProviders returns the subscription-inclusion platform names for a
// title in one region. Rental and purchase offers are ignored.
func (c *Client) GetWatchProviders(ctx context.Context, id int, region string) ([]string, error) {
	var resp providerResponse
	if err := c.get(ctx, fmt.Sprintf("/movie/%d/watch/providers", id), url.Values{}, &resp); err != nil {
		return nil, err
	}

	regional, ok := resp.Results[region]
	if !ok {
		return nil, nil
	}

	names := make([]string, 0, len(regional.Flatrate))
	for _, offer := range regional.Flatrate {
		names = append(names, offer.ProviderName)
	}
	return names, nil
}

// PosterURL converts a poster path into a full image URL.
func (c *Client) PosterURL(posterPath string) string {
	if posterPath == "" {
		return ""
	}
	return fmt.Sprintf("https://image.tmdb.org/t/p/w500%s", posterPath)
}
