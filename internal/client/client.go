package client

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
	"time"

	"github.com/mlavoie/climate-station-service/internal/models"
	"github.com/mlavoie/climate-station-service/internal/observability"
)

// StationClient is the interface to the upstream climate API.
type StationClient interface {
	FetchStations(ctx context.Context, provinces ...string) ([]models.Station, error)
	FetchDailyObservations(ctx context.Context, climateID string, day time.Time) (models.Table, error)
}

var (
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrBadResponse     = errors.New("bad response")
)

const (
	// DefaultBaseURL is the public GeoMet OGC-API endpoint.
	DefaultBaseURL = "https://api.weather.gc.ca"

	stationsPath     = "/collections/climate-stations/items"
	observationsPath = "/collections/climate-daily/items"

	// The API serves station pages of at most 500 features. A full page
	// means there may be more; the first short page ends the scan. This
	// mirrors the upstream paging contract and can stop early if the
	// server ever returns a short non-final page.
	pageSize = 500

	// coordDivisor converts the API's fixed-point coordinates to degrees.
	coordDivisor = 10_000_000
)

// GeoMetClient fetches station metadata and daily observations from the
// GeoMet OGC-API. Every call is a fresh round trip; nothing is cached and
// nothing is retried.
type GeoMetClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewGeoMetClient returns a client for the given base URL (DefaultBaseURL
// when empty). timeout bounds each individual HTTP request.
func NewGeoMetClient(baseURL string, timeout time.Duration) (*GeoMetClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &GeoMetClient{
		baseURL: baseURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// featureCollection is the shape shared by both collections: a features
// array whose entries carry a properties object. Properties stay raw here
// because the two collections decode them differently.
type featureCollection struct {
	Features []struct {
		Properties json.RawMessage `json:"properties"`
	} `json:"features"`
}

// stationProperties is the subset of climate-stations properties the
// service consumes. Coordinates arrive as fixed-point integers, dates as
// "YYYY-MM-DD HH:MM:SS" strings.
type stationProperties struct {
	StnID             int64           `json:"STN_ID"`
	StationName       string          `json:"STATION_NAME"`
	Province          string          `json:"ENG_PROV_NAME"`
	ClimateIdentifier json.RawMessage `json:"CLIMATE_IDENTIFIER"`
	Latitude          float64         `json:"LATITUDE"`
	Longitude         float64         `json:"LONGITUDE"`
	FirstDate         string          `json:"FIRST_DATE"`
	LastDate          string          `json:"LAST_DATE"`
	DlyFirstDate      string          `json:"DLY_FIRST_DATE"`
	DlyLastDate       string          `json:"DLY_LAST_DATE"`
}

// FetchStations builds the full station catalog for the given provinces.
// Pages of 500 are requested per province until the first short page;
// records accumulate in request order across provinces, without
// deduplication. Any transport or decode failure aborts the whole fetch.
func (c *GeoMetClient) FetchStations(ctx context.Context, provinces ...string) ([]models.Station, error) {
	var all []models.Station
	for _, province := range provinces {
		startIndex := 1
		for {
			page, err := c.fetchStationPage(ctx, province, startIndex)
			if err != nil {
				return nil, fmt.Errorf("fetch stations for %s: %w", province, err)
			}
			all = append(all, page...)
			if len(page) < pageSize {
				break
			}
			startIndex += pageSize
		}
	}
	return all, nil
}

func (c *GeoMetClient) fetchStationPage(ctx context.Context, province string, startIndex int) ([]models.Station, error) {
	params := url.Values{}
	params.Set("f", "json")
	params.Set("ENG_PROV_NAME", province)
	params.Set("startindex", strconv.Itoa(startIndex))

	var fc featureCollection
	if err := c.getJSON(ctx, stationsPath, params, &fc); err != nil {
		return nil, err
	}
	observability.StationPagesFetchedTotal.Inc()

	stations := make([]models.Station, 0, len(fc.Features))
	for i, feature := range fc.Features {
		var props stationProperties
		if err := json.Unmarshal(feature.Properties, &props); err != nil {
			return nil, fmt.Errorf("%w: station properties at offset %d: %v", ErrBadResponse, startIndex+i, err)
		}
		station, err := props.toStation()
		if err != nil {
			return nil, fmt.Errorf("%w: station at offset %d: %v", ErrBadResponse, startIndex+i, err)
		}
		stations = append(stations, station)
	}
	return stations, nil
}

func (p stationProperties) toStation() (models.Station, error) {
	firstDate, err := parseStationDate(p.FirstDate)
	if err != nil {
		return models.Station{}, fmt.Errorf("FIRST_DATE: %w", err)
	}
	lastDate, err := parseStationDate(p.LastDate)
	if err != nil {
		return models.Station{}, fmt.Errorf("LAST_DATE: %w", err)
	}
	dlyFirst, err := parseStationDate(p.DlyFirstDate)
	if err != nil {
		return models.Station{}, fmt.Errorf("DLY_FIRST_DATE: %w", err)
	}
	dlyLast, err := parseStationDate(p.DlyLastDate)
	if err != nil {
		return models.Station{}, fmt.Errorf("DLY_LAST_DATE: %w", err)
	}
	return models.Station{
		StationID:         p.StnID,
		StationName:       p.StationName,
		Province:          p.Province,
		ClimateIdentifier: rawScalarString(p.ClimateIdentifier),
		Latitude:          p.Latitude / coordDivisor,
		Longitude:         p.Longitude / coordDivisor,
		FirstDate:         firstDate,
		LastDate:          lastDate,
		DailyFirstDate:    dlyFirst,
		DailyLastDate:     dlyLast,
	}, nil
}

// rawScalarString renders a raw JSON scalar as its string value. Climate
// identifiers are strings upstream but appear as bare numbers in some
// older records.
func rawScalarString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}

var stationDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// parseStationDate parses an upstream date field. Empty values yield the
// zero time, which the eligibility filter treats as an unusable bound.
func parseStationDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range stationDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse date %q: %w", s, lastErr)
}

// FetchDailyObservations queries the climate-daily collection for one
// station on one calendar day. The returned table preserves the server's
// row order and takes its column order from the first row's JSON keys;
// property values are carried as-is, not schema-validated.
func (c *GeoMetClient) FetchDailyObservations(ctx context.Context, climateID string, day time.Time) (models.Table, error) {
	params := url.Values{}
	params.Set("f", "json")
	params.Set("CLIMATE_IDENTIFIER", climateID)
	params.Set("LOCAL_DAY", strconv.Itoa(day.Day()))
	params.Set("LOCAL_MONTH", strconv.Itoa(int(day.Month())))
	params.Set("LOCAL_YEAR", strconv.Itoa(day.Year()))

	var fc featureCollection
	if err := c.getJSON(ctx, observationsPath, params, &fc); err != nil {
		return models.Table{}, fmt.Errorf("fetch observations for %s: %w", climateID, err)
	}

	var table models.Table
	for i, feature := range fc.Features {
		if i == 0 {
			columns, err := propertyOrder(feature.Properties)
			if err != nil {
				return models.Table{}, fmt.Errorf("%w: observation columns: %v", ErrBadResponse, err)
			}
			table.Columns = columns
		}
		var row map[string]any
		if err := json.Unmarshal(feature.Properties, &row); err != nil {
			return models.Table{}, fmt.Errorf("%w: observation row %d: %v", ErrBadResponse, i, err)
		}
		for name := range row {
			table.AddColumn(name)
		}
		table.AppendRow(row)
	}
	return table, nil
}

// propertyOrder returns the top-level key order of a JSON object. Go maps
// lose JSON key order, but the tabular output keeps the upstream column
// order, so the keys are scanned from the raw bytes.
func propertyOrder(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", tok)
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// getJSON performs one GET against the API and decodes the body into out.
// There is no retry: a failed call fails the whole operation.
func (c *GeoMetClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	start := time.Now()

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reqURL, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	reqURL.Path = path
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(path, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(path, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(path, status).Inc()
	observability.UpstreamDuration.WithLabelValues(path, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: parse response: %v", ErrBadResponse, err)
	}
	return nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
