//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/mlavoie/climate-station-service/internal/cache"
	"github.com/mlavoie/climate-station-service/internal/client"
	"github.com/mlavoie/climate-station-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIURL        string
	Province      string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test unless INTEGRATION_WEATHER_API=1: the tests hit the public
// api.weather.gc.ca and a catalog scan is many requests.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	if os.Getenv("INTEGRATION_WEATHER_API") == "" {
		t.Skip("INTEGRATION_WEATHER_API not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultBaseURL
	}

	province := os.Getenv("INTEGRATION_PROVINCE")
	if province == "" {
		// Prince Edward Island has the smallest catalog; keeps the scan short.
		province = "Prince Edward Island"
	}

	cacheBackend := os.Getenv("INTEGRATION_CACHE_BACKEND")
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIURL:        apiURL,
		Province:      province,
		CacheBackend:  cacheBackend,
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationService creates a fully configured service for integration tests.
// Returns weather service, cache instance, and cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, cache.Cache, func()) {
	geoMetClient, err := client.NewGeoMetClient(cfg.APIURL, 30*time.Second)
	if err != nil {
		t.Fatalf("NewGeoMetClient() error = %v", err)
	}

	var catalogCache cache.Cache
	var cleanup func()

	if cfg.CacheBackend == "memcached" {
		memcachedCache, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil {
			catalogCache = memcachedCache
			cleanup = func() { memcachedCache.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
			catalogCache = cache.NewInMemoryCache()
			cleanup = func() {}
		}
	} else {
		catalogCache = cache.NewInMemoryCache()
		cleanup = func() {}
	}

	weatherService := service.NewWeatherService(geoMetClient, catalogCache, 30*time.Minute)

	return weatherService, catalogCache, cleanup
}

// SetupIntegrationClient creates a GeoMet client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.StationClient {
	geoMetClient, err := client.NewGeoMetClient(cfg.APIURL, 30*time.Second)
	if err != nil {
		t.Fatalf("NewGeoMetClient() error = %v", err)
	}
	return geoMetClient
}
