package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterries/AutoAnalyse/config"
	"github.com/masterries/AutoAnalyse/internal/scraper"
	"github.com/masterries/AutoAnalyse/internal/store"
	"github.com/masterries/AutoAnalyse/services/dashboard"
	"github.com/masterries/AutoAnalyse/services/runner"
)

// integrationPage mimics one AutoScout result page.
const integrationPage = `<!DOCTYPE html>
<html>
<body>
	<article class="cldt-summary-full-item" data-guid="int-1"
		data-price="21000" data-mileage="65000" data-fuel-type="d"
		data-first-registration="06-2019" data-seller-type="d">
		<a class="ListItem_title__x" href="/offres/int-1">BMW 320d</a>
		<span data-testid="VehicleDetails-speedometer">140 kW (190 CH)</span>
	</article>
	<article class="cldt-summary-full-item" data-guid="int-2"
		data-price="25000" data-mileage="40000" data-fuel-type="b"
		data-first-registration="06-2021" data-seller-type="p">
		<a class="ListItem_title__x" href="/offres/int-2">BMW 330i</a>
		<span data-testid="VehicleDetails-speedometer">190 kW (258 CH)</span>
	</article>
</body>
</html>`

// TestScrapeToAPI drives a full cycle: scrape a fake site, persist the
// snapshot, then read it back through the dashboard API.
func TestScrapeToAPI(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, integrationPage)
	}))
	defer site.Close()

	dir := t.TempDir()
	cfg := config.Config{
		DataDir:        dir,
		DBPath:         filepath.Join(dir, "test.db"),
		BaseURL:        site.URL + "/lst/%s/%s?sort=standard",
		RequestTimeout: 5 * time.Second,
		MaxPagesCap:    50,
	}

	st, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	defer st.Close()

	r := runner.New(st, scraper.NewFetcher(cfg.RequestTimeout), nil, cfg)
	result := r.RunModel(context.Background(), runner.ModelRef{Make: "bmw", Model: "3er"},
		scraper.Options{MaxPages: 1, StopOnEmpty: true})

	require.Equal(t, runner.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.TotalListings)
	assert.Equal(t, 2, result.NewListings)

	api := httptest.NewServer(dashboard.NewServer(":0", dashboard.NewHandlers(st)).Handler())
	defer api.Close()

	resp, err := http.Get(api.URL + "/api/vehicles/bmw/3er")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var vehicles dashboard.VehiclesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&vehicles))
	require.Len(t, vehicles.Vehicles, 2)
	assert.Equal(t, 2, vehicles.MarketAnalysis.TotalVehicles)
	for _, v := range vehicles.Vehicles {
		require.NotNil(t, v.Score.Breakdown)
	}

	assert.FileExists(t, filepath.Join(dir, "bmw_3er_listings.csv"))
}

func TestReadModelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.csv")
	content := "make,model\nbmw,3er\n\naudi, a4 \nbroken\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	refs, err := readModelFile(path)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, runner.ModelRef{Make: "bmw", Model: "3er"}, refs[0])
	assert.Equal(t, runner.ModelRef{Make: "audi", Model: "a4"}, refs[1])
}

func TestReadModelFileMissing(t *testing.T) {
	_, err := readModelFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
