package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mlavoie/climate-station-service/internal/catalog"
	"github.com/mlavoie/climate-station-service/internal/models"
	"github.com/mlavoie/climate-station-service/internal/service"
	"github.com/mlavoie/climate-station-service/internal/validation"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService   *service.WeatherService
	defaultProvinces []string
	logger           *zap.Logger
	// cachePing, when set, is called by the health check. Used when the
	// catalog cache backend is memcached.
	cachePing func() error
}

// NewHandler returns a new Handler. defaultProvinces is used when a
// request names no province.
func NewHandler(weatherService *service.WeatherService, defaultProvinces []string, logger *zap.Logger, cachePing func() error) *Handler {
	return &Handler{
		weatherService:   weatherService,
		defaultProvinces: defaultProvinces,
		logger:           logger,
		cachePing:        cachePing,
	}
}

// lookupQuery is the validated parameter set shared by the weather and
// nearest-station endpoints.
type lookupQuery struct {
	lat       float64
	lon       float64
	day       time.Time
	provinces []string
}

func (h *Handler) parseLookupQuery(r *http.Request) (lookupQuery, string, string) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	if err != nil {
		return lookupQuery{}, "INVALID_COORDINATES", "lat must be a number"
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lon")), 64)
	if err != nil {
		return lookupQuery{}, "INVALID_COORDINATES", "lon must be a number"
	}
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		return lookupQuery{}, "INVALID_COORDINATES", err.Error()
	}

	day, err := validation.ParseDate(q.Get("date"))
	if err != nil {
		return lookupQuery{}, "INVALID_DATE", "date must be YYYY-MM-DD"
	}

	provinces := q["province"]
	if len(provinces) == 0 {
		provinces = h.defaultProvinces
	}
	validated := make([]string, 0, len(provinces))
	for _, p := range provinces {
		v, err := validation.ValidateProvince(p)
		if err != nil {
			return lookupQuery{}, "INVALID_PROVINCE", err.Error()
		}
		validated = append(validated, v)
	}

	return lookupQuery{lat: lat, lon: lon, day: day, provinces: validated}, "", ""
}

// GetDailyWeather handles GET /weather?lat=&lon=&date=&province=.
func (h *Handler) GetDailyWeather(w http.ResponseWriter, r *http.Request) {
	query, code, msg := h.parseLookupQuery(r)
	if code != "" {
		writeError(w, r, http.StatusBadRequest, code, msg)
		return
	}

	result, err := h.weatherService.GetDailyWeather(r.Context(), query.lat, query.lon, query.day, query.provinces...)
	if err != nil {
		if errors.Is(err, catalog.ErrNoEligibleStation) {
			writeError(w, r, http.StatusNotFound, "NO_ELIGIBLE_STATION", "no station covers the requested date")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetNearestStation handles GET /stations/nearest?lat=&lon=&date=&province=.
func (h *Handler) GetNearestStation(w http.ResponseWriter, r *http.Request) {
	query, code, msg := h.parseLookupQuery(r)
	if code != "" {
		writeError(w, r, http.StatusBadRequest, code, msg)
		return
	}

	nearest, err := h.weatherService.NearestStation(r.Context(), query.lat, query.lon, query.day, query.provinces...)
	if err != nil {
		if errors.Is(err, catalog.ErrNoEligibleStation) {
			writeError(w, r, http.StatusNotFound, "NO_ELIGIBLE_STATION", "no station covers the requested date")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nearest)
}

// GetStations handles GET /stations?province=. Returns the full catalog
// for the named provinces, in fetch order.
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	provinces := r.URL.Query()["province"]
	if len(provinces) == 0 {
		provinces = h.defaultProvinces
	}
	validated := make([]string, 0, len(provinces))
	for _, p := range provinces {
		v, err := validation.ValidateProvince(p)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_PROVINCE", err.Error())
			return
		}
		validated = append(validated, v)
	}

	stations, err := h.weatherService.GetCatalog(r.Context(), validated...)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if stations == nil {
		stations = []models.Station{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stations": stations,
		"count":    len(stations),
	})
}

// GetHealth handles GET /health. The upstream API is not probed on every
// health check; only local dependencies are.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	if h.cachePing != nil {
		if err := h.cachePing(); err == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	resp := map[string]any{
		"status":    status,
		"service":   "climate-station-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 503 Service Unavailable error response for upstream failures.
// Logs the underlying error at DEBUG level if logger is available in request context.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch climate data")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
