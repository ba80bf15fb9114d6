// Package analysis derives read-only market statistics and per-vehicle
// scores from the stored snapshot.
package analysis

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/masterries/AutoAnalyse/internal/store"
)

var powerPattern = regexp.MustCompile(`(\d+)\s*kW\s*\((\d+)\s*(?:PS|CH)\)`)

// Vehicle is a listing enriched with the derived fields the analysis needs.
// Nil derived fields exclude the vehicle from "complete" market analysis.
type Vehicle struct {
	store.Listing
	Age          *float64 `json:"age"`
	PowerKW      *int     `json:"power_kw"`
	PowerPS      *int     `json:"power_ps"`
	PowerDisplay string   `json:"power_display,omitempty"`
}

// DimensionStats holds the aggregates for one analysis dimension.
type DimensionStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
}

// MarketAnalysis aggregates all vehicles of one (make, model) cohort that
// carry price, mileage, age and power.
type MarketAnalysis struct {
	TotalVehicles int            `json:"total_vehicles"`
	PriceStats    DimensionStats `json:"price_stats"`
	MileageStats  DimensionStats `json:"mileage_stats"`
	AgeStats      DimensionStats `json:"age_stats"`
	PowerStats    DimensionStats `json:"power_stats"`
}

// Empty reports whether the analysis covers no vehicles.
func (m MarketAnalysis) Empty() bool {
	return m.TotalVehicles == 0
}

// ScoreBreakdown holds the per-dimension normalized scores.
type ScoreBreakdown struct {
	PriceScore   float64 `json:"price_score"`
	MileageScore float64 `json:"mileage_score"`
	AgeScore     float64 `json:"age_score"`
	PowerScore   float64 `json:"power_score"`
}

// Score is a weighted composite of per-dimension scores relative to the
// cohort medians.
type Score struct {
	TotalScore float64         `json:"total_score"`
	Breakdown  *ScoreBreakdown `json:"breakdown,omitempty"`
}

// ParsePower parses a power label like "150 kW (204 PS)" into its kW and PS
// components. Text that does not match yields (nil, nil).
func ParsePower(text string) (*int, *int) {
	m := powerPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}
	kw, err1 := strconv.Atoi(m[1])
	ps, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	return &kw, &ps
}

// Age derives the vehicle age in years from a first registration string in
// "MM-YYYY" format, rounded to one decimal. Unparsable input yields nil.
func Age(firstRegistration string, now time.Time) *float64 {
	parts := strings.Split(firstRegistration, "-")
	if len(parts) != 2 {
		return nil
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return nil
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}

	regDate := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	if regDate.After(now) {
		return nil
	}
	years := now.Sub(regDate).Hours() / 24 / 365.25
	rounded := math.Round(years*10) / 10
	return &rounded
}

// NewVehicle enriches a listing with its derived age and power fields.
func NewVehicle(l store.Listing) Vehicle {
	kw, ps := ParsePower(l.Power)
	return Vehicle{
		Listing:      l,
		Age:          Age(l.FirstRegistration, time.Now()),
		PowerKW:      kw,
		PowerPS:      ps,
		PowerDisplay: l.Power,
	}
}

// complete reports whether the vehicle carries all four analysis dimensions.
func (v Vehicle) complete() bool {
	return v.Price != nil && v.Mileage != nil && v.Age != nil && v.PowerPS != nil
}

// Market computes the market analysis over the complete vehicles of a
// cohort. An empty or all-incomplete cohort yields an empty analysis.
func Market(vehicles []Vehicle) MarketAnalysis {
	var prices, mileages, ages, powers []float64
	for _, v := range vehicles {
		if !v.complete() {
			continue
		}
		prices = append(prices, *v.Price)
		mileages = append(mileages, float64(*v.Mileage))
		ages = append(ages, *v.Age)
		powers = append(powers, float64(*v.PowerPS))
	}

	if len(prices) == 0 {
		return MarketAnalysis{}
	}

	return MarketAnalysis{
		TotalVehicles: len(prices),
		PriceStats:    dimensionStats(prices),
		MileageStats:  dimensionStats(mileages),
		AgeStats:      dimensionStats(ages),
		PowerStats:    dimensionStats(powers),
	}
}

// VehicleScore computes the weighted composite score of one vehicle against
// its cohort. Price, mileage and age score lower as they exceed the cohort
// median; power scores above 50 as it exceeds the median. A vehicle missing
// any dimension, or an empty analysis, scores 0 with no breakdown.
func VehicleScore(v Vehicle, market MarketAnalysis) Score {
	if market.Empty() || !v.complete() {
		return Score{}
	}

	priceScore := clampLow(100 - (*v.Price-market.PriceStats.Median)/market.PriceStats.Median*100)
	mileageScore := clampLow(100 - (float64(*v.Mileage)-market.MileageStats.Median)/market.MileageStats.Median*100)
	ageScore := clampLow(100 - (*v.Age-market.AgeStats.Median)/market.AgeStats.Median*100)
	powerScore := clampHigh(50 + (float64(*v.PowerPS)-market.PowerStats.Median)/market.PowerStats.Median*50)

	total := priceScore*0.35 + mileageScore*0.25 + ageScore*0.25 + powerScore*0.15

	return Score{
		TotalScore: round1(total),
		Breakdown: &ScoreBreakdown{
			PriceScore:   round1(priceScore),
			MileageScore: round1(mileageScore),
			AgeScore:     round1(ageScore),
			PowerScore:   round1(powerScore),
		},
	}
}

func dimensionStats(values []float64) DimensionStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return DimensionStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: median(sorted),
		Mean:   math.Round(sum/float64(len(sorted))*100) / 100,
	}
}

// median expects a sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func clampLow(v float64) float64 {
	return math.Max(0, v)
}

func clampHigh(v float64) float64 {
	return math.Min(100, v)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
