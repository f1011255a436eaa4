// Package geocodeclient performs forward geocoding against the Mapbox places API.
package geocodeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jakechorley/helpboard/pkg/core/geo"
)

const (
	DefaultBaseURL = "https://api.mapbox.com"
	resultLimit    = 5
	cacheTTL       = 5 * time.Minute
)

var ErrEmptyQuery = errors.New("geocode query is empty")

// Place is a single geocoding match
type Place struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Center geo.Point `json:"center"`
	BBox   []float64 `json:"bbox,omitempty"`
}

type cacheEntry struct {
	places  []Place
	expires time.Time
}

// Client wraps the Mapbox geocoding endpoint with a short-lived cache
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewClient creates a geocoding client. An empty baseURL uses Mapbox.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
	}
}

type featureCollection struct {
	Features []struct {
		ID        string    `json:"id"`
		PlaceName string    `json:"place_name"`
		Center    []float64 `json:"center"`
		BBox      []float64 `json:"bbox"`
	} `json:"features"`
}

// Forward looks up places matching a free-text query
func (c *Client) Forward(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	cacheKey := strings.ToLower(query)

	c.mu.Lock()
	if entry, ok := c.cache[cacheKey]; ok {
		if c.now().Before(entry.expires) {
			c.mu.Unlock()
			return entry.places, nil
		}
		delete(c.cache, cacheKey)
	}
	c.mu.Unlock()

	endpoint := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?access_token=%s&limit=%d",
		c.baseURL, url.PathEscape(query), url.QueryEscape(c.token), resultLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call geocode endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("geocode request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}

	places := make([]Place, 0, len(fc.Features))
	for _, f := range fc.Features {
		if len(f.Center) != 2 {
			continue
		}
		places = append(places, Place{
			ID:     f.ID,
			Name:   f.PlaceName,
			Center: geo.Point{Lat: f.Center[1], Lng: f.Center[0]},
			BBox:   f.BBox,
		})
	}

	c.mu.Lock()
	now := c.now()
	c.sweep(now)
	c.cache[cacheKey] = cacheEntry{places: places, expires: now.Add(cacheTTL)}
	c.mu.Unlock()

	return places, nil
}

// sweep drops expired entries; c.mu must be held
func (c *Client) sweep(now time.Time) {
	for key, entry := range c.cache {
		if !now.Before(entry.expires) {
			delete(c.cache, key)
		}
	}
}
