package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mlavoie/climate-station-service/internal/models"
	"github.com/mlavoie/climate-station-service/internal/observability"
)

// CatalogFetcher is implemented by the service layer to fetch (and cache)
// the station catalog for a set of provinces. Used by CatalogWarmer to
// avoid a circular dependency on the service package.
type CatalogFetcher interface {
	GetCatalog(ctx context.Context, provinces ...string) ([]models.Station, error)
}

// CatalogWarmer warms the cache by prefetching station catalogs for a
// list of provinces. Each province is warmed under its own key so that
// single-province lookups hit.
type CatalogWarmer struct {
	fetcher CatalogFetcher
	logger  *zap.Logger
}

// NewCatalogWarmer creates a CatalogWarmer that uses the given fetcher and logger.
func NewCatalogWarmer(fetcher CatalogFetcher, logger *zap.Logger) *CatalogWarmer {
	return &CatalogWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches the catalog for each province concurrently, populating the
// cache via the fetcher. Returns an error if any province failed (aggregated).
func (w *CatalogWarmer) Warm(ctx context.Context, provinces []string) error {
	start := time.Now()
	observability.CatalogWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming catalog cache", zap.Int("provinces", len(provinces)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(provinces))
	for _, province := range provinces {
		province := province
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.fetcher.GetCatalog(ctx, province)
			if err != nil {
				errCh <- fmt.Errorf("warm %s: %w", province, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CatalogWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("catalog warming complete", zap.Int("provinces", len(provinces)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CatalogWarmingErrorsTotal.Inc()
		return fmt.Errorf("catalog warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CatalogWarmer) WarmPeriodic(ctx context.Context, provinces []string, interval time.Duration) error {
	if err := w.Warm(ctx, provinces); err != nil && w.logger != nil {
		w.logger.Warn("initial catalog warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, provinces); err != nil && w.logger != nil {
				w.logger.Warn("periodic catalog warm failed", zap.Error(err))
			}
		}
	}
}
