package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kleinsuche/kleinsuche/internal/cache"
	"github.com/kleinsuche/kleinsuche/internal/geo"
	"github.com/kleinsuche/kleinsuche/internal/listing"
	"github.com/kleinsuche/kleinsuche/internal/scraper"
)

// The upstream scraper supports at most 20 result pages.
const maxPageCount = 20

const maxDetailBodyBytes = 5 << 20

type searchResponse struct {
	Data []listing.Listing `json:"data"`
}

func (s *Server) handleInserate(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r.URL.Query())
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	key := cache.Key(searchCacheParams(req))
	if data, ok := s.cacheStore.Get("inserate", key); ok {
		writeRawJSON(w, data)
		return
	}

	// Identical concurrent misses share one scrape.
	v, err, _ := s.flight.Do("inserate:"+key, func() (any, error) {
		ads, err := s.searcher.Search(r.Context(), req)
		if err != nil {
			return nil, err
		}
		if ads == nil {
			ads = []listing.Listing{}
		}
		payload, err := json.Marshal(searchResponse{Data: ads})
		if err != nil {
			return nil, fmt.Errorf("encode response: %w", err)
		}
		s.cacheStore.Put("inserate", key, payload)
		s.stats.RecordSearch(len(ads))
		return payload, nil
	})
	if err != nil {
		if errors.Is(err, scraper.ErrUnavailable) {
			writeError(s.logger, w, http.StatusServiceUnavailable, "scraper not ready")
			return
		}
		writeError(s.logger, w, http.StatusBadGateway, err.Error())
		return
	}
	writeRawJSON(w, v.([]byte))
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		writeError(s.logger, w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	req.Header.Set("User-Agent", s.cfg.Scraper.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		writeError(s.logger, w, http.StatusBadGateway, err.Error())
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		writeError(s.logger, w, http.StatusBadGateway,
			fmt.Sprintf("detail page returned %d", resp.StatusCode))
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDetailBodyBytes))
	if err != nil {
		writeError(s.logger, w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(s.logger, w, http.StatusOK, listing.Extract(string(body)))
}

func (s *Server) handleORS(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Geo.ORSAPIKey == "" {
		writeError(s.logger, w, http.StatusInternalServerError, "routing api key not configured")
		return
	}

	subpath := chi.URLParam(r, "*")
	params := map[string]string{"path": subpath}
	for k, vals := range r.URL.Query() {
		params["q:"+k] = strings.Join(vals, ",")
	}
	key := cache.Key(params)
	if data, ok := s.cacheStore.Get("ors", key); ok {
		writeRawJSON(w, data)
		return
	}

	data, err := s.ors.ProxyORS(r.Context(), subpath, r.URL.Query())
	if err != nil {
		writeError(s.logger, w, http.StatusBadGateway, err.Error())
		return
	}
	s.cacheStore.Put("ors", key, data)
	writeRawJSON(w, data)
}

func (s *Server) handleRouteSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	if from == "" || to == "" {
		writeError(s.logger, w, http.StatusBadRequest, "from and to are required")
		return
	}
	// Checked before any provider call so misconfiguration fails fast.
	if s.cfg.Geo.ORSAPIKey == "" {
		writeError(s.logger, w, http.StatusInternalServerError, "routing api key not configured")
		return
	}

	stepKm := s.cfg.Geo.StepKm
	if raw := q.Get("step_km"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			writeError(s.logger, w, http.StatusBadRequest, "step_km must be a positive number")
			return
		}
		stepKm = parsed
	}

	filters, err := parseSearchRequest(q)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.routeSearch.Search(r.Context(), geo.SearchRequest{
		From:       from,
		To:         to,
		StepMeters: stepKm * 1000,
		Filters:    filters,
	})
	if err != nil {
		writeError(s.logger, w, http.StatusBadGateway, err.Error())
		return
	}

	s.stats.RecordSearch(len(result.Listings))
	writeJSON(s.logger, w, http.StatusOK, result)
}

// parseSearchRequest maps query parameters onto the scraper's fixed
// filter struct.
func parseSearchRequest(q url.Values) (scraper.SearchRequest, error) {
	req := scraper.SearchRequest{
		Query:     strings.TrimSpace(q.Get("query")),
		Location:  strings.TrimSpace(q.Get("location")),
		Radius:    10,
		PageCount: 1,
	}

	if raw := q.Get("radius"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return scraper.SearchRequest{}, fmt.Errorf("radius must be a non-negative integer")
		}
		req.Radius = v
	}
	for name, dst := range map[string]**int{
		"category_id": &req.CategoryID,
		"min_price":   &req.MinPrice,
		"max_price":   &req.MaxPrice,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return scraper.SearchRequest{}, fmt.Errorf("%s must be an integer", name)
		}
		val := v
		*dst = &val
	}
	if raw := q.Get("page_count"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return scraper.SearchRequest{}, fmt.Errorf("page_count must be a positive integer")
		}
		if v > maxPageCount {
			v = maxPageCount
		}
		req.PageCount = v
	}
	return req, nil
}

// searchCacheParams canonicalizes a parsed request into the parameter
// mapping fed to the cache key, so logically identical requests share an
// entry regardless of how the query string was spelled.
func searchCacheParams(req scraper.SearchRequest) map[string]string {
	params := map[string]string{
		"query":      req.Query,
		"location":   req.Location,
		"radius":     strconv.Itoa(req.Radius),
		"page_count": strconv.Itoa(req.PageCount),
	}
	if req.CategoryID != nil {
		params["category_id"] = strconv.Itoa(*req.CategoryID)
	}
	if req.MinPrice != nil {
		params["min_price"] = strconv.Itoa(*req.MinPrice)
	}
	if req.MaxPrice != nil {
		params["max_price"] = strconv.Itoa(*req.MaxPrice)
	}
	return params
}

func writeRawJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
