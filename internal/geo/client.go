// Package geo turns a pair of place names into scraper queries spread
// along the driving route between them.
package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kleinsuche/kleinsuche/internal/cache"
)

// Coordinate is a lon/lat pair in GeoJSON axis order.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// ErrGeocode reports that neither provider could resolve a place name.
var ErrGeocode = errors.New("geo: place could not be geocoded")

// ErrMissingAPIKey reports an unset routing provider credential. It is
// checked before any network call so misconfiguration fails fast.
var ErrMissingAPIKey = errors.New("geo: routing api key not configured")

// Config holds provider endpoints and credentials.
type Config struct {
	NominatimURL   string  `mapstructure:"nominatim_url"`
	PhotonURL      string  `mapstructure:"photon_url"`
	ORSURL         string  `mapstructure:"ors_url"`
	ORSAPIKey      string  `mapstructure:"ors_api_key"`
	StepKm         float64 `mapstructure:"step_km"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
}

// Client calls the geocoding and routing providers. Nominatim is the
// primary geocoder with Photon as fallback; openrouteservice provides
// driving routes. Provider responses are cached on disk when a cache
// store is supplied.
type Client struct {
	cfg    Config
	http   *http.Client
	cache  *cache.Store
	logger *zap.Logger
}

// NewClient builds a provider client. cacheStore may be nil to disable
// response caching.
func NewClient(cfg Config, cacheStore *cache.Store, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		cache:  cacheStore,
		logger: logger,
	}
}

// Geocode resolves a place name to a coordinate, trying Nominatim first
// and Photon when Nominatim fails or returns nothing.
func (c *Client) Geocode(ctx context.Context, place string) (Coordinate, error) {
	if coord, err := c.geocodeNominatim(ctx, place); err == nil {
		return coord, nil
	} else {
		c.logger.Debug("nominatim geocode failed", zap.String("place", place), zap.Error(err))
	}
	if coord, err := c.geocodePhoton(ctx, place); err == nil {
		return coord, nil
	} else {
		c.logger.Debug("photon geocode failed", zap.String("place", place), zap.Error(err))
	}
	return Coordinate{}, fmt.Errorf("%w: %q", ErrGeocode, place)
}

// ReverseGeocode resolves a coordinate to a postal code. An empty string
// with a nil error means the providers answered but know no postal code
// for that point.
func (c *Client) ReverseGeocode(ctx context.Context, coord Coordinate) (string, error) {
	postal, err := c.reverseNominatim(ctx, coord)
	if err == nil {
		return postal, nil
	}
	c.logger.Debug("nominatim reverse failed", zap.Error(err))
	return c.reversePhoton(ctx, coord)
}

// Route requests a driving route between two coordinates from
// openrouteservice and returns the ordered polyline.
func (c *Client) Route(ctx context.Context, from, to Coordinate) ([]Coordinate, error) {
	if c.cfg.ORSAPIKey == "" {
		return nil, ErrMissingAPIKey
	}
	body, err := json.Marshal(map[string]any{
		"coordinates": [][]float64{{from.Lon, from.Lat}, {to.Lon, to.Lat}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode route request: %w", err)
	}

	endpoint := c.cfg.ORSURL + "/v2/directions/driving-car/geojson"
	data, err := c.doRequest(ctx, http.MethodPost, endpoint, body, map[string]string{
		"Authorization": c.cfg.ORSAPIKey,
		"Content-Type":  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("routing request: %w", err)
	}

	var payload struct {
		Features []struct {
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode route response: %w", err)
	}
	if len(payload.Features) == 0 {
		return nil, fmt.Errorf("routing provider returned no route")
	}
	coords := make([]Coordinate, 0, len(payload.Features[0].Geometry.Coordinates))
	for _, pair := range payload.Features[0].Geometry.Coordinates {
		if len(pair) < 2 {
			continue
		}
		coords = append(coords, Coordinate{Lon: pair[0], Lat: pair[1]})
	}
	return coords, nil
}

// ProxyORS forwards a GET request to the routing provider with the API
// key injected, returning the raw response body.
func (c *Client) ProxyORS(ctx context.Context, subpath string, query url.Values) ([]byte, error) {
	if c.cfg.ORSAPIKey == "" {
		return nil, ErrMissingAPIKey
	}
	endpoint := c.cfg.ORSURL + "/" + strings.TrimPrefix(subpath, "/")
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	return c.doRequest(ctx, http.MethodGet, endpoint, nil, map[string]string{
		"Authorization": c.cfg.ORSAPIKey,
	})
}

func (c *Client) geocodeNominatim(ctx context.Context, place string) (Coordinate, error) {
	params := url.Values{"q": {place}, "format": {"json"}, "limit": {"1"}}
	data, err := c.cachedGet(ctx, "nominatim",
		map[string]string{"op": "search", "q": place},
		c.cfg.NominatimURL+"/search?"+params.Encode())
	if err != nil {
		return Coordinate{}, err
	}
	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return Coordinate{}, fmt.Errorf("decode nominatim response: %w", err)
	}
	if len(results) == 0 {
		return Coordinate{}, fmt.Errorf("nominatim: no result for %q", place)
	}
	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return Coordinate{}, fmt.Errorf("nominatim: unparsable coordinates for %q", place)
	}
	return Coordinate{Lon: lon, Lat: lat}, nil
}

func (c *Client) geocodePhoton(ctx context.Context, place string) (Coordinate, error) {
	params := url.Values{"q": {place}, "limit": {"1"}}
	data, err := c.doRequest(ctx, http.MethodGet, c.cfg.PhotonURL+"/api?"+params.Encode(), nil, nil)
	if err != nil {
		return Coordinate{}, err
	}
	var payload struct {
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Coordinate{}, fmt.Errorf("decode photon response: %w", err)
	}
	if len(payload.Features) == 0 || len(payload.Features[0].Geometry.Coordinates) < 2 {
		return Coordinate{}, fmt.Errorf("photon: no result for %q", place)
	}
	coords := payload.Features[0].Geometry.Coordinates
	return Coordinate{Lon: coords[0], Lat: coords[1]}, nil
}

func (c *Client) reverseNominatim(ctx context.Context, coord Coordinate) (string, error) {
	lat := strconv.FormatFloat(coord.Lat, 'f', -1, 64)
	lon := strconv.FormatFloat(coord.Lon, 'f', -1, 64)
	params := url.Values{"lat": {lat}, "lon": {lon}, "format": {"json"}}
	data, err := c.cachedGet(ctx, "nominatim",
		map[string]string{"op": "reverse", "lat": lat, "lon": lon},
		c.cfg.NominatimURL+"/reverse?"+params.Encode())
	if err != nil {
		return "", err
	}
	var payload struct {
		Address struct {
			Postcode string `json:"postcode"`
		} `json:"address"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode nominatim reverse response: %w", err)
	}
	return payload.Address.Postcode, nil
}

func (c *Client) reversePhoton(ctx context.Context, coord Coordinate) (string, error) {
	params := url.Values{
		"lat": {strconv.FormatFloat(coord.Lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(coord.Lon, 'f', -1, 64)},
	}
	data, err := c.doRequest(ctx, http.MethodGet, c.cfg.PhotonURL+"/reverse?"+params.Encode(), nil, nil)
	if err != nil {
		return "", err
	}
	var payload struct {
		Features []struct {
			Properties struct {
				Postcode string `json:"postcode"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode photon reverse response: %w", err)
	}
	if len(payload.Features) == 0 {
		return "", nil
	}
	return payload.Features[0].Properties.Postcode, nil
}

// cachedGet serves a GET from the disk cache when possible and writes
// through on success.
func (c *Client) cachedGet(ctx context.Context, prefix string, params map[string]string, requestURL string) ([]byte, error) {
	key := ""
	if c.cache != nil {
		key = cache.Key(params)
		if data, ok := c.cache.Get(prefix, key); ok {
			return data, nil
		}
	}
	data, err := c.doRequest(ctx, http.MethodGet, requestURL, nil, nil)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Put(prefix, key, data)
	}
	return data, nil
}

func (c *Client) doRequest(ctx context.Context, method, requestURL string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncate(data, 200))
	}
	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
