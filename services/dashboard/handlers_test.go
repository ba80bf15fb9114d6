package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterries/AutoAnalyse/internal/store"
)

func price(v float64) *float64 { return &v }
func mileage(v int64) *int64   { return &v }

func seededServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	now := time.Now()
	listings := []store.Listing{
		{
			ListingID: "a", Make: "bmw", Model: "3er", Title: "BMW 320d",
			Price: price(20000), Mileage: mileage(50000),
			FirstRegistration: "06-2020", Power: "100 kW (136 PS)",
			FuelType:    store.FuelDiesel,
			ScrapedDate: now.Format(time.RFC3339), ScrapedTimestamp: now.Unix(),
			IsActive: true,
		},
		{
			ListingID: "b", Make: "bmw", Model: "3er", Title: "BMW 330e",
			Price: price(30000), Mileage: mileage(70000),
			FirstRegistration: "06-2018", Power: "180 kW (245 PS)",
			FuelType:    store.FuelHybrid,
			ScrapedDate: now.Format(time.RFC3339), ScrapedTimestamp: now.Unix(),
			IsActive: true,
		},
		{
			ListingID: "c", Make: "bmw", Model: "3er", Title: "BMW 318i",
			Price: price(25000), Mileage: mileage(60000),
			FirstRegistration: "06-2019", Power: "140 kW (190 PS)",
			FuelType:    store.FuelPetrol,
			ScrapedDate: now.Format(time.RFC3339), ScrapedTimestamp: now.Unix(),
			IsActive: true,
		},
	}
	_, _, err = st.InsertListings(context.Background(), "bmw", "3er", listings)
	require.NoError(t, err)

	_, err = st.InsertPriceChanges(context.Background(), "bmw", "3er", []store.PriceChange{
		{ListingID: "a", Make: "bmw", Model: "3er", Title: "BMW 320d",
			PriceOld: 21000, PriceNew: 20000, PriceDifference: -1000,
			PriceChangePercent: -4.76, ChangeType: store.ChangeDecrease,
			ChangeDate: "2026-08-30T10:00:00Z", ChangeTimestamp: 2000},
		{ListingID: "b", Make: "bmw", Model: "3er", Title: "BMW 330e",
			PriceOld: 29000, PriceNew: 30000, PriceDifference: 1000,
			PriceChangePercent: 3.45, ChangeType: store.ChangeIncrease,
			ChangeDate: "2026-08-29T10:00:00Z", ChangeTimestamp: 1000},
	})
	require.NoError(t, err)

	server := httptest.NewServer(NewServer(":0", NewHandlers(st)).Handler())
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, url string, dest interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if dest != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
	}
	return resp.StatusCode
}

func TestGetMakesModels(t *testing.T) {
	server := seededServer(t)

	var models []store.VehicleModel
	code := getJSON(t, server.URL+"/api/makes-models", &models)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, models, 1)
	assert.Equal(t, "bmw", models[0].Make)
	assert.Equal(t, "3er", models[0].Model)
	assert.Equal(t, 3, models[0].Count)
}

func TestGetVehicles(t *testing.T) {
	server := seededServer(t)

	var resp VehiclesResponse
	code := getJSON(t, server.URL+"/api/vehicles/bmw/3er", &resp)
	assert.Equal(t, http.StatusOK, code)

	assert.Equal(t, 3, resp.MarketAnalysis.TotalVehicles)
	assert.Equal(t, 25000.0, resp.MarketAnalysis.PriceStats.Median)

	require.Len(t, resp.Vehicles, 3)
	// Sorted best score first
	assert.GreaterOrEqual(t, resp.Vehicles[0].Score.TotalScore, resp.Vehicles[1].Score.TotalScore)
	assert.GreaterOrEqual(t, resp.Vehicles[1].Score.TotalScore, resp.Vehicles[2].Score.TotalScore)
	assert.Equal(t, "a", resp.Vehicles[0].ListingID)
}

func TestGetVehiclesUnknownModel(t *testing.T) {
	server := seededServer(t)

	var resp VehiclesResponse
	code := getJSON(t, server.URL+"/api/vehicles/audi/a4", &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Vehicles)
	assert.True(t, resp.MarketAnalysis.Empty())
}

func TestGetAnalysis(t *testing.T) {
	server := seededServer(t)

	var market struct {
		TotalVehicles int `json:"total_vehicles"`
		PriceStats    struct {
			Min    float64 `json:"min"`
			Max    float64 `json:"max"`
			Median float64 `json:"median"`
		} `json:"price_stats"`
	}
	code := getJSON(t, server.URL+"/api/analysis/bmw/3er", &market)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, market.TotalVehicles)
	assert.Equal(t, 20000.0, market.PriceStats.Min)
	assert.Equal(t, 30000.0, market.PriceStats.Max)
	assert.Equal(t, 25000.0, market.PriceStats.Median)
}

func TestGetStats(t *testing.T) {
	server := seededServer(t)

	var stats store.Statistics
	code := getJSON(t, server.URL+"/api/stats/bmw/3er", &stats)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, stats.Listings.TotalListings)
	assert.Equal(t, 2, stats.PriceChanges.TotalChanges)
	assert.Equal(t, 1, stats.PriceChanges.PriceDrops)
	assert.Equal(t, 1, stats.PriceChanges.PriceIncreases)
}

func TestGetPriceHistory(t *testing.T) {
	server := seededServer(t)

	var history []store.PriceChange
	code := getJSON(t, server.URL+"/api/price-history/bmw/3er", &history)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, history, 2)
	assert.Equal(t, "a", history[0].ListingID)

	code = getJSON(t, server.URL+"/api/price-history/bmw/3er?limit=1", &history)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, history, 1)

	code = getJSON(t, server.URL+"/api/price-history/bmw/3er?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = getJSON(t, server.URL+"/api/price-history/bmw/3er?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// Unknown models yield an empty array rather than null
	history = nil
	code = getJSON(t, server.URL+"/api/price-history/audi/a4", &history)
	assert.Equal(t, http.StatusOK, code)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}
