package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mlavoie/climate-station-service/internal/cache"
	"github.com/mlavoie/climate-station-service/internal/catalog"
	"github.com/mlavoie/climate-station-service/internal/client"
	"github.com/mlavoie/climate-station-service/internal/models"
	"github.com/mlavoie/climate-station-service/internal/observability"
)

// Columns the original observation rows carry that are redundant in the
// lookup result: the caller already knows the date, and the station
// context is re-attached explicitly.
var droppedObservationColumns = []string{
	"LOCAL_DATE",
	"LOCAL_DAY",
	"LOCAL_MONTH",
	"LOCAL_YEAR",
	"ID",
	"PROVINCE_CODE",
}

// Result column names used by the fallback record and the reshaped table.
const (
	ColStationName       = "STATION_NAME"
	ColStationID         = "STN_ID"
	ColClimateIdentifier = "CLIMATE_IDENTIFIER"
	ColDistanceKm        = "DISTANCE_WEATHER_STATION_KM"
)

// WeatherService orchestrates the catalog fetch, nearest-station
// resolution and daily observation lookup. The catalog cache is
// cache-aside and optional; every upstream fetch is fresh.
type WeatherService struct {
	client client.StationClient
	cache  cache.Cache
	ttl    time.Duration
}

// NewWeatherService creates a WeatherService. cache may be nil or ttl
// zero to disable catalog caching entirely.
func NewWeatherService(client client.StationClient, cache cache.Cache, ttl time.Duration) *WeatherService {
	return &WeatherService{
		client: client,
		cache:  cache,
		ttl:    ttl,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetCatalog returns the station catalog for the given provinces, from
// cache when enabled and fresh from the API otherwise. The returned slice
// keeps request order across provinces.
func (s *WeatherService) GetCatalog(ctx context.Context, provinces ...string) ([]models.Station, error) {
	key := catalogKey(provinces)
	logger := loggerFromContext(ctx)

	if s.cache != nil && s.ttl > 0 {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			observability.CacheErrorsTotal.WithLabelValues("get", string(client.CategorizeError(err))).Inc()
			if logger != nil {
				logger.Warn("catalog cache get failed", zap.String("key", key), zap.Error(err))
			}
		} else if ok {
			observability.CacheHitsTotal.WithLabelValues("catalog").Inc()
			if logger != nil {
				logger.Debug("catalog cache hit", zap.String("key", key), zap.Int("stations", len(cached)))
			}
			return cached, nil
		}
	}

	stations, err := s.client.FetchStations(ctx, provinces...)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog for %s: %w", key, err)
	}
	if logger != nil {
		logger.Debug("catalog fetched", zap.String("key", key), zap.Int("stations", len(stations)))
	}

	if s.cache != nil && s.ttl > 0 {
		if setErr := s.cache.Set(ctx, key, stations, s.ttl); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set", string(client.CategorizeError(setErr))).Inc()
			if logger != nil {
				logger.Warn("catalog cache set failed", zap.String("key", key), zap.Error(setErr))
			}
		}
	}
	return stations, nil
}

// NearestStation resolves the nearest eligible station to the point for
// the given day, over the catalog of the given provinces.
func (s *WeatherService) NearestStation(ctx context.Context, lat, lon float64, day time.Time, provinces ...string) (models.StationDistance, error) {
	stations, err := s.GetCatalog(ctx, provinces...)
	if err != nil {
		return models.StationDistance{}, err
	}
	return catalog.Catalog(stations).Nearest(lat, lon, day)
}

// GetDailyWeather returns the daily observations recorded by the station
// nearest to (lat, lon) on day. When the station has no rows for that
// date, a single-row fallback record identifies the station instead.
func (s *WeatherService) GetDailyWeather(ctx context.Context, lat, lon float64, day time.Time, provinces ...string) (models.Table, error) {
	start := time.Now()
	logger := loggerFromContext(ctx)
	for _, p := range provinces {
		observability.RecordWeatherQuery(p)
	}

	nearest, err := s.NearestStation(ctx, lat, lon, day, provinces...)
	if err != nil {
		return models.Table{}, err
	}

	table, err := s.client.FetchDailyObservations(ctx, nearest.ClimateIdentifier, day)
	if err != nil {
		return models.Table{}, err
	}

	if len(table.Rows) == 0 {
		observability.ObservationFallbackTotal.Inc()
		if logger != nil {
			logger.Debug("no observations for date, serving fallback",
				zap.String("climate_identifier", nearest.ClimateIdentifier),
				zap.Time("date", day))
		}
		return fallbackRecord(nearest), nil
	}

	table.Drop(droppedObservationColumns...)
	table.InsertConst(1, ColDistanceKm, nearest.DistanceKm)
	table.InsertConst(1, ColStationID, nearest.StationID)

	if logger != nil {
		logger.Debug("daily weather served",
			zap.String("climate_identifier", nearest.ClimateIdentifier),
			zap.Float64("distance_km", nearest.DistanceKm),
			zap.Int("rows", len(table.Rows)),
			zap.Duration("duration", time.Since(start)))
	}
	return table, nil
}

// fallbackRecord builds the station-only result used when the nearest
// station has no observation rows for the requested date.
func fallbackRecord(st models.StationDistance) models.Table {
	t := models.NewTable(ColStationName, ColStationID, ColClimateIdentifier, ColDistanceKm)
	t.AppendRow(map[string]any{
		ColStationName:       st.StationName,
		ColStationID:         st.StationID,
		ColClimateIdentifier: st.ClimateIdentifier,
		ColDistanceKm:        st.DistanceKm,
	})
	return t
}

// catalogKey normalizes a province list into a cache key. Order is kept:
// the catalog's record order depends on request order.
func catalogKey(provinces []string) string {
	normalized := make([]string, len(provinces))
	for i, p := range provinces {
		normalized[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(normalized, ",")
}
