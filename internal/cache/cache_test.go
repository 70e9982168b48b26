package cache

import (
	"context"
	"testing"
	"time"

	"github.com/mlavoie/climate-station-service/internal/models"
)

func testCatalog() []models.Station {
	return []models.Station{
		{StationID: 1, StationName: "STATION 1", ClimateIdentifier: "6100001", Latitude: 45.5, Longitude: -75.7},
		{StationID: 2, StationName: "STATION 2", ClimateIdentifier: "6100002", Latitude: 43.7, Longitude: -79.4},
	}
}

func TestInMemoryCache_SetAndGet(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "ontario", testCatalog(), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "ontario")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if len(got) != 2 || got[0].StationID != 1 || got[1].StationID != 2 {
		t.Errorf("Get() = %+v, want the stored catalog in order", got)
	}
}

func TestInMemoryCache_Miss(t *testing.T) {
	c := NewInMemoryCache()

	got, ok, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false on miss")
	}
	if got != nil {
		t.Errorf("Get() = %v, want nil on miss", got)
	}
}

func TestInMemoryCache_Expiration(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "ontario", testCatalog(), 10*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	_, ok, err := c.Get(ctx, "ontario")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false after TTL expiry")
	}
}

func TestInMemoryCache_Overwrite(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	_ = c.Set(ctx, "ontario", testCatalog(), time.Minute)
	_ = c.Set(ctx, "ontario", testCatalog()[:1], time.Minute)

	got, ok, _ := c.Get(ctx, "ontario")
	if !ok || len(got) != 1 {
		t.Errorf("Get() after overwrite = %d stations, want 1", len(got))
	}
}
