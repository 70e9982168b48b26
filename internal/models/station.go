package models

import "time"

// Station is one weather station from the climate-stations collection.
// Coordinates are in degrees (already rescaled from the API's fixed-point
// encoding). Immutable once built.
type Station struct {
	StationID         int64     `json:"stnId"`
	StationName       string    `json:"stationName"`
	Province          string    `json:"province"`
	ClimateIdentifier string    `json:"climateIdentifier"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	FirstDate         time.Time `json:"firstDate"`
	LastDate          time.Time `json:"lastDate"`
	DailyFirstDate    time.Time `json:"dlyFirstDate"`
	DailyLastDate     time.Time `json:"dlyLastDate"`
}

// StationDistance is a station plus its computed great-circle distance
// from a query point. Derived per query, never stored.
type StationDistance struct {
	Station
	DistanceKm float64 `json:"distanceKm"`
}
