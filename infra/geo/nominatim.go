// Package geo provides the OpenStreetMap Nominatim geocoder and a SQLite
// cache for resolved addresses.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	coregeo "github.com/kilianp07/erbalance/core/geo"
	"github.com/kilianp07/erbalance/core/model"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"
	DefaultUserAgent    = "erbalance-dispatch/1.0"
)

// Config defines geocoder settings.
type Config struct {
	Provider       string `json:"provider"`
	URL            string `json:"url"`
	UserAgent      string `json:"user_agent"`
	CityHint       string `json:"city_hint"`
	CachePath      string `json:"cache_path"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "nominatim"
	}
	if c.URL == "" {
		c.URL = DefaultNominatimURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.CityHint == "" {
		c.CityHint = "Mumbai, India"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate checks the provider name.
func (c Config) Validate() error {
	switch c.Provider {
	case "nominatim", "none":
		return nil
	default:
		return fmt.Errorf("unknown geo provider %q", c.Provider)
	}
}

// Nominatim resolves addresses with the Nominatim search API.
type Nominatim struct {
	client    *http.Client
	baseURL   string
	userAgent string
	cityHint  string
}

// NewNominatim creates a client from cfg.
func NewNominatim(cfg Config) *Nominatim {
	cfg.SetDefaults()
	return &Nominatim{
		client:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		baseURL:   cfg.URL,
		userAgent: cfg.UserAgent,
		cityHint:  cfg.CityHint,
	}
}

// Query returns the search string sent upstream: the address with the city
// hint appended unless the address already names the city.
func (n *Nominatim) Query(address string) string {
	address = strings.TrimSpace(address)
	if n.cityHint == "" {
		return address
	}
	city := strings.TrimSpace(strings.SplitN(n.cityHint, ",", 2)[0])
	if strings.Contains(strings.ToLower(address), strings.ToLower(city)) {
		return address
	}
	return address + ", " + n.cityHint
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve implements core/geo.Resolver.
func (n *Nominatim) Resolve(ctx context.Context, address string) (model.Coordinates, error) {
	if strings.TrimSpace(address) == "" {
		return model.Coordinates{}, coregeo.ErrNotFound
	}
	q := url.Values{}
	q.Set("q", n.Query(address))
	q.Set("format", "json")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("nominatim: create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("nominatim: search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Coordinates{}, fmt.Errorf("nominatim: status %d: %s", resp.StatusCode, string(body))
	}
	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return model.Coordinates{}, fmt.Errorf("nominatim: decode: %w", err)
	}
	if len(results) == 0 {
		return model.Coordinates{}, fmt.Errorf("%w: %q", coregeo.ErrNotFound, address)
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("nominatim: bad lat %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("nominatim: bad lon %q: %w", results[0].Lon, err)
	}
	return model.Coordinates{Lat: lat, Lon: lon}, nil
}
