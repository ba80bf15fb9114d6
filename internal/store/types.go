package store

// Change types recorded in the price history ledger.
const (
	ChangeDecrease = "DECREASE"
	ChangeIncrease = "INCREASE"
)

// Fuel type names produced by the extractor.
const (
	FuelDiesel   = "Diesel"
	FuelPetrol   = "Petrol"
	FuelElectric = "Electric"
	FuelHybrid   = "Hybrid"
	FuelLPG      = "LPG"
	FuelCNG      = "CNG"
)

// Seller type names produced by the extractor.
const (
	SellerPrivate = "Private"
	SellerDealer  = "Dealer"
)

// Transmission names produced by the extractor.
const (
	TransmissionAutomatic = "Automatic"
	TransmissionManual    = "Manual"
)

// Listing is one observed vehicle offer. A listing is identified by its
// external site id together with make and model; re-observing the same id
// updates the row in place.
type Listing struct {
	ID                int64    `json:"id,omitempty"`
	ListingID         string   `json:"listing_id"`
	Make              string   `json:"make"`
	Model             string   `json:"model"`
	Title             string   `json:"title"`
	URL               string   `json:"url,omitempty"`
	Price             *float64 `json:"price"`
	Mileage           *int64   `json:"mileage"`
	FuelType          string   `json:"fuel_type,omitempty"`
	FirstRegistration string   `json:"first_registration,omitempty"`
	Power             string   `json:"power,omitempty"`
	Transmission      string   `json:"transmission,omitempty"`
	SellerType        string   `json:"seller_type,omitempty"`
	Location          string   `json:"location,omitempty"`
	ScrapedDate       string   `json:"scraped_date"`
	ScrapedTimestamp  int64    `json:"scraped_timestamp"`
	IsActive          bool     `json:"is_active"`
}

// PriceChange is an immutable record of one detected price transition.
type PriceChange struct {
	ID                 int64   `json:"id,omitempty"`
	ListingID          string  `json:"listing_id"`
	Make               string  `json:"make"`
	Model              string  `json:"model"`
	Title              string  `json:"title"`
	PriceOld           float64 `json:"price_old"`
	PriceNew           float64 `json:"price_new"`
	PriceDifference    float64 `json:"price_difference"`
	PriceChangePercent float64 `json:"price_change_percent"`
	ChangeType         string  `json:"change_type"`
	ChangeDate         string  `json:"change_date"`
	ChangeTimestamp    int64   `json:"change_timestamp"`
	LastSeen           string  `json:"last_seen,omitempty"`
}

// Metadata summarizes the most recent scraping run for one (make, model).
// Exactly one row per key; each run replaces the prior one.
type Metadata struct {
	Make                string `json:"make"`
	Model               string `json:"model"`
	LastScrapeDate      string `json:"last_scrape_date"`
	LastScrapeTimestamp int64  `json:"last_scrape_timestamp"`
	TotalListings       int    `json:"total_listings"`
	NewListings         int    `json:"new_listings"`
	PriceChanges        int    `json:"price_changes"`
	ScraperVersion      string `json:"scraper_version"`
	Status              string `json:"status"`
	ErrorMessage        string `json:"error_message,omitempty"`
}

// VehicleModel is one distinct (make, model) pair with its active listing count.
type VehicleModel struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Count int    `json:"count"`
}

// ListingStats holds price and mileage aggregates over active listings.
type ListingStats struct {
	TotalListings int     `json:"total_listings"`
	AvgPrice      float64 `json:"avg_price"`
	MinPrice      float64 `json:"min_price"`
	MaxPrice      float64 `json:"max_price"`
	AvgMileage    float64 `json:"avg_mileage"`
}

// PriceChangeStats holds aggregates over the price history ledger.
type PriceChangeStats struct {
	TotalChanges   int     `json:"total_changes"`
	PriceDrops     int     `json:"price_drops"`
	PriceIncreases int     `json:"price_increases"`
	AvgChange      float64 `json:"avg_change"`
}

// Statistics bundles the aggregates for one (make, model), or for the whole
// database when make and model are empty.
type Statistics struct {
	Listings     ListingStats     `json:"listings"`
	FuelTypes    map[string]int   `json:"fuel_types"`
	SellerTypes  map[string]int   `json:"seller_types"`
	PriceChanges PriceChangeStats `json:"price_changes"`
	GeneratedAt  string           `json:"generated_at"`
}
