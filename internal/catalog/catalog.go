package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/umahmood/haversine"

	"github.com/mlavoie/climate-station-service/internal/models"
	"github.com/mlavoie/climate-station-service/internal/observability"
)

// ErrNoEligibleStation is returned when no station's observation range
// strictly contains the query date.
var ErrNoEligibleStation = errors.New("no eligible station for date")

// Catalog is an ordered sequence of stations, in fetch request order.
// It holds no state beyond the records themselves.
type Catalog []models.Station

// Eligible reports whether the station's overall observation range
// strictly contains day. A station whose range merely touches the day at
// a boundary is excluded, as is one with a missing bound.
func Eligible(s models.Station, day time.Time) bool {
	if s.FirstDate.IsZero() || s.LastDate.IsZero() {
		return false
	}
	return s.FirstDate.Before(day) && s.LastDate.After(day)
}

// Nearest returns the station closest to (lat, lon) among those eligible
// for day, with its great-circle distance in kilometers. Ties keep the
// first station in catalog order. Returns ErrNoEligibleStation when the
// eligible set is empty.
func (c Catalog) Nearest(lat, lon float64, day time.Time) (models.StationDistance, error) {
	start := time.Now()
	defer func() {
		observability.NearestResolutionDuration.Observe(time.Since(start).Seconds())
	}()

	point := haversine.Coord{Lat: lat, Lon: lon}
	var best models.StationDistance
	found := false
	for _, s := range c {
		if !Eligible(s, day) {
			continue
		}
		_, km := haversine.Distance(point, haversine.Coord{Lat: s.Latitude, Lon: s.Longitude})
		if !found || km < best.DistanceKm {
			best = models.StationDistance{Station: s, DistanceKm: km}
			found = true
		}
	}
	if !found {
		observability.NoEligibleStationTotal.Inc()
		return models.StationDistance{}, fmt.Errorf("%w: %s", ErrNoEligibleStation, day.Format("2006-01-02"))
	}
	return best, nil
}
