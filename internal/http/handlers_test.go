package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mlavoie/climate-station-service/internal/client"
	"github.com/mlavoie/climate-station-service/internal/models"
	"github.com/mlavoie/climate-station-service/internal/service"
)

// fakeClient serves a fixed catalog and fixed observation rows, or fails
// with stationsErr/obsErr when set.
type fakeClient struct {
	stations    []models.Station
	stationsErr error
	obs         models.Table
	obsErr      error
}

func (f *fakeClient) FetchStations(ctx context.Context, provinces ...string) ([]models.Station, error) {
	if f.stationsErr != nil {
		return nil, f.stationsErr
	}
	return f.stations, nil
}

func (f *fakeClient) FetchDailyObservations(ctx context.Context, climateID string, day time.Time) (models.Table, error) {
	if f.obsErr != nil {
		return models.Table{}, f.obsErr
	}
	return f.obs, nil
}

func testStations() []models.Station {
	return []models.Station{
		{
			StationID:         4333,
			StationName:       "OTTAWA CDA",
			Province:          "ONTARIO",
			ClimateIdentifier: "6105976",
			Latitude:          45.3833,
			Longitude:         -75.7167,
			FirstDate:         time.Date(1889, 1, 1, 0, 0, 0, 0, time.UTC),
			LastDate:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func testObservations() models.Table {
	t := models.NewTable("STATION_NAME", "LOCAL_DATE", "LOCAL_DAY", "LOCAL_MONTH", "LOCAL_YEAR", "ID", "PROVINCE_CODE", "MEAN_TEMPERATURE")
	t.AppendRow(map[string]any{
		"STATION_NAME":     "OTTAWA CDA",
		"LOCAL_DATE":       "2000-06-15 00:00:00",
		"LOCAL_DAY":        15,
		"LOCAL_MONTH":      6,
		"LOCAL_YEAR":       2000,
		"ID":               "6105976.2000.6.15",
		"PROVINCE_CODE":    "ON",
		"MEAN_TEMPERATURE": 18.5,
	})
	return t
}

func newTestHandler(fc *fakeClient) *Handler {
	svc := service.NewWeatherService(fc, nil, 0)
	return NewHandler(svc, []string{"Ontario"}, zap.NewNop(), nil)
}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode error envelope: %v (body %s)", err, body)
	}
	return resp.Error.Code
}

func TestGetDailyWeather_InvalidParams(t *testing.T) {
	h := newTestHandler(&fakeClient{stations: testStations()})

	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{"missing lat", "lon=-75.7&date=2000-06-15", "INVALID_COORDINATES"},
		{"non-numeric lon", "lat=45.4&lon=west&date=2000-06-15", "INVALID_COORDINATES"},
		{"lat out of range", "lat=95&lon=-75.7&date=2000-06-15", "INVALID_COORDINATES"},
		{"missing date", "lat=45.4&lon=-75.7", "INVALID_DATE"},
		{"malformed date", "lat=45.4&lon=-75.7&date=June+15", "INVALID_DATE"},
		{"impossible date", "lat=45.4&lon=-75.7&date=2000-02-30", "INVALID_DATE"},
		{"bad province", "lat=45.4&lon=-75.7&date=2000-06-15&province=On%3Btario", "INVALID_PROVINCE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/weather?"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.GetDailyWeather(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := decodeErrorCode(t, rec.Body.Bytes()); got != tt.wantCode {
				t.Errorf("error code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestGetDailyWeather_Success(t *testing.T) {
	h := newTestHandler(&fakeClient{stations: testStations(), obs: testObservations()})

	req := httptest.NewRequest(http.MethodGet, "/weather?lat=45.4&lon=-75.7&date=2000-06-15", nil)
	rec := httptest.NewRecorder()
	h.GetDailyWeather(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}

	var table models.Table
	if err := json.Unmarshal(rec.Body.Bytes(), &table); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	wantColumns := []string{"STATION_NAME", "STN_ID", "DISTANCE_WEATHER_STATION_KM", "MEAN_TEMPERATURE"}
	if len(table.Columns) != len(wantColumns) {
		t.Fatalf("columns = %v, want %v", table.Columns, wantColumns)
	}
	for i, c := range wantColumns {
		if table.Columns[i] != c {
			t.Errorf("columns[%d] = %s, want %s", i, table.Columns[i], c)
		}
	}
	if len(table.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(table.Rows))
	}
	if got := table.Rows[0]["MEAN_TEMPERATURE"]; got != 18.5 {
		t.Errorf("MEAN_TEMPERATURE = %v, want 18.5", got)
	}
}

func TestGetDailyWeather_NoEligibleStation(t *testing.T) {
	h := newTestHandler(&fakeClient{stations: testStations()})

	req := httptest.NewRequest(http.MethodGet, "/weather?lat=45.4&lon=-75.7&date=1850-06-15", nil)
	rec := httptest.NewRecorder()
	h.GetDailyWeather(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if got := decodeErrorCode(t, rec.Body.Bytes()); got != "NO_ELIGIBLE_STATION" {
		t.Errorf("error code = %s, want NO_ELIGIBLE_STATION", got)
	}
}

func TestGetDailyWeather_UpstreamFailure(t *testing.T) {
	h := newTestHandler(&fakeClient{stationsErr: client.ErrUpstreamFailure})

	req := httptest.NewRequest(http.MethodGet, "/weather?lat=45.4&lon=-75.7&date=2000-06-15", nil)
	rec := httptest.NewRecorder()
	h.GetDailyWeather(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if got := decodeErrorCode(t, rec.Body.Bytes()); got != "UPSTREAM_UNAVAILABLE" {
		t.Errorf("error code = %s, want UPSTREAM_UNAVAILABLE", got)
	}
}

func TestGetNearestStation_Success(t *testing.T) {
	h := newTestHandler(&fakeClient{stations: testStations()})

	req := httptest.NewRequest(http.MethodGet, "/stations/nearest?lat=45.3833&lon=-75.7167&date=2000-06-15", nil)
	rec := httptest.NewRecorder()
	h.GetNearestStation(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var nearest models.StationDistance
	if err := json.Unmarshal(rec.Body.Bytes(), &nearest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if nearest.StationName != "OTTAWA CDA" {
		t.Errorf("stationName = %s, want OTTAWA CDA", nearest.StationName)
	}
	if nearest.ClimateIdentifier != "6105976" {
		t.Errorf("climateIdentifier = %s, want 6105976", nearest.ClimateIdentifier)
	}
	if nearest.DistanceKm > 0.1 {
		t.Errorf("distanceKm = %f, want ~0 for the exact coordinates", nearest.DistanceKm)
	}
}

func TestGetNearestStation_NoEligibleStation(t *testing.T) {
	h := newTestHandler(&fakeClient{stations: testStations()})

	req := httptest.NewRequest(http.MethodGet, "/stations/nearest?lat=45.4&lon=-75.7&date=2030-01-01", nil)
	rec := httptest.NewRecorder()
	h.GetNearestStation(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if got := decodeErrorCode(t, rec.Body.Bytes()); got != "NO_ELIGIBLE_STATION" {
		t.Errorf("error code = %s, want NO_ELIGIBLE_STATION", got)
	}
}

func TestGetStations(t *testing.T) {
	h := newTestHandler(&fakeClient{stations: testStations()})

	req := httptest.NewRequest(http.MethodGet, "/stations?province=Ontario", nil)
	rec := httptest.NewRecorder()
	h.GetStations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Stations []models.Station `json:"stations"`
		Count    int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Stations) != 1 {
		t.Fatalf("count = %d, stations = %d, want 1/1", resp.Count, len(resp.Stations))
	}
	if resp.Stations[0].StationID != 4333 {
		t.Errorf("stnId = %d, want 4333", resp.Stations[0].StationID)
	}
}

func TestGetStations_InvalidProvince(t *testing.T) {
	h := newTestHandler(&fakeClient{stations: testStations()})

	req := httptest.NewRequest(http.MethodGet, "/stations?province=%3Bdrop", nil)
	rec := httptest.NewRecorder()
	h.GetStations(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := decodeErrorCode(t, rec.Body.Bytes()); got != "INVALID_PROVINCE" {
		t.Errorf("error code = %s, want INVALID_PROVINCE", got)
	}
}

func TestGetStations_EmptyCatalog(t *testing.T) {
	h := newTestHandler(&fakeClient{})

	req := httptest.NewRequest(http.MethodGet, "/stations", nil)
	rec := httptest.NewRecorder()
	h.GetStations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Stations []models.Station `json:"stations"`
		Count    int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Stations == nil {
		t.Error("stations = null, want empty array")
	}
	if resp.Count != 0 {
		t.Errorf("count = %d, want 0", resp.Count)
	}
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		ping       func() error
		wantStatus int
		wantHealth string
	}{
		{"no cache check", nil, http.StatusOK, "healthy"},
		{"cache healthy", func() error { return nil }, http.StatusOK, "healthy"},
		{"cache down", func() error { return context.DeadlineExceeded }, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := service.NewWeatherService(&fakeClient{}, nil, 0)
			h := NewHandler(svc, []string{"Ontario"}, zap.NewNop(), tt.ping)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			h.GetHealth(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp struct {
				Status  string `json:"status"`
				Service string `json:"service"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantHealth {
				t.Errorf("health = %s, want %s", resp.Status, tt.wantHealth)
			}
			if resp.Service != "climate-station-service" {
				t.Errorf("service = %s, want climate-station-service", resp.Service)
			}
		})
	}
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	ctx := context.WithValue(req.Context(), "correlation_id", "test-corr-id")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	writeError(rec, req, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")

	var resp struct {
		Error struct {
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.RequestID != "test-corr-id" {
		t.Errorf("requestId = %s, want test-corr-id", resp.Error.RequestID)
	}
}
