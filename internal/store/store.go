package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/masterries/AutoAnalyse/logger"
	"github.com/masterries/AutoAnalyse/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id TEXT NOT NULL,
	make TEXT NOT NULL,
	model TEXT NOT NULL,
	title TEXT,
	url TEXT,
	price REAL,
	mileage INTEGER,
	fuel_type TEXT,
	first_registration TEXT,
	power TEXT,
	transmission TEXT,
	seller_type TEXT,
	location TEXT,
	scraped_date TEXT NOT NULL,
	scraped_timestamp INTEGER NOT NULL,
	is_active BOOLEAN DEFAULT 1,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(listing_id, make, model)
);

CREATE TABLE IF NOT EXISTS price_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id TEXT NOT NULL,
	make TEXT NOT NULL,
	model TEXT NOT NULL,
	title TEXT,
	price_old REAL NOT NULL,
	price_new REAL NOT NULL,
	price_difference REAL NOT NULL,
	price_change_percent REAL NOT NULL,
	change_type TEXT NOT NULL,
	change_date TEXT NOT NULL,
	change_timestamp INTEGER NOT NULL,
	last_seen TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scraping_metadata (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	make TEXT NOT NULL,
	model TEXT NOT NULL,
	last_scrape_date TEXT NOT NULL,
	last_scrape_timestamp INTEGER NOT NULL,
	total_listings INTEGER DEFAULT 0,
	new_listings INTEGER DEFAULT 0,
	price_changes INTEGER DEFAULT 0,
	scraper_version TEXT,
	status TEXT DEFAULT 'success',
	error_message TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(make, model)
);

CREATE INDEX IF NOT EXISTS idx_listings_make_model ON listings(make, model);
CREATE INDEX IF NOT EXISTS idx_listings_listing_id ON listings(listing_id);
CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price);
CREATE INDEX IF NOT EXISTS idx_listings_scraped_date ON listings(scraped_date);
CREATE INDEX IF NOT EXISTS idx_price_history_listing_id ON price_history(listing_id);
CREATE INDEX IF NOT EXISTS idx_price_history_change_date ON price_history(change_date);
`

// Store owns the durable state: current listings, the append-only price
// history ledger and per-model scraping metadata. All other components go
// through it, never through the database directly.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open opens (creating if necessary) the SQLite database at path and ensures
// the schema exists. Intermediate directories are created automatically.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.NewPersistence(path, "create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewPersistence(path, "open database", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent statements.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewPersistence(path, "initialize schema", err)
	}

	log := logger.ForStore()
	log.Info().Str("path", path).Msg("Database initialized")

	return &Store{db: db, log: log}, nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertListings upserts a batch of listings for one (make, model) inside a
// single transaction. An existing (listing_id, make, model) row has its
// mutable fields refreshed and is reactivated; anything else is inserted.
// Both counts are returned so callers can report "new" and "updated"
// separately.
func (s *Store) InsertListings(ctx context.Context, carMake, carModel string, listings []Listing) (inserted, updated int, err error) {
	if len(listings) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, errors.NewPersistence(carMake+" "+carModel, "begin transaction", err)
	}
	defer tx.Rollback()

	for _, l := range listings {
		var existingID int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM listings
			WHERE listing_id = ? AND make = ? AND model = ?
		`, l.ListingID, carMake, carModel).Scan(&existingID)

		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO listings (
					listing_id, make, model, title, url, price, mileage, fuel_type,
					first_registration, power, transmission, seller_type, location,
					scraped_date, scraped_timestamp
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, l.ListingID, carMake, carModel, nullStr(l.Title), nullStr(l.URL),
				nullFloat(l.Price), nullInt(l.Mileage), nullStr(l.FuelType),
				nullStr(l.FirstRegistration), nullStr(l.Power), nullStr(l.Transmission),
				nullStr(l.SellerType), nullStr(l.Location), l.ScrapedDate, l.ScrapedTimestamp)
			if err != nil {
				return 0, 0, errors.NewPersistence(carMake+" "+carModel, "insert listing "+l.ListingID, err)
			}
			inserted++
		case err != nil:
			return 0, 0, errors.NewPersistence(carMake+" "+carModel, "lookup listing "+l.ListingID, err)
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE listings SET
					title = ?, url = ?, price = ?, mileage = ?, fuel_type = ?,
					first_registration = ?, power = ?, transmission = ?, seller_type = ?,
					location = ?, scraped_date = ?, scraped_timestamp = ?,
					is_active = 1, updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, nullStr(l.Title), nullStr(l.URL), nullFloat(l.Price), nullInt(l.Mileage),
				nullStr(l.FuelType), nullStr(l.FirstRegistration), nullStr(l.Power),
				nullStr(l.Transmission), nullStr(l.SellerType), nullStr(l.Location),
				l.ScrapedDate, l.ScrapedTimestamp, existingID)
			if err != nil {
				return 0, 0, errors.NewPersistence(carMake+" "+carModel, "update listing "+l.ListingID, err)
			}
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, errors.NewPersistence(carMake+" "+carModel, "commit listings", err)
	}

	s.log.Info().
		Str("make", carMake).
		Str("model", carModel).
		Int("inserted", inserted).
		Int("updated", updated).
		Msg("Listings saved")

	return inserted, updated, nil
}

// ActiveListings returns the active listings for one (make, model), most
// recently scraped first.
func (s *Store) ActiveListings(ctx context.Context, carMake, carModel string) ([]Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, make, model, title, url, price, mileage, fuel_type,
			first_registration, power, transmission, seller_type, location,
			scraped_date, scraped_timestamp, is_active
		FROM listings
		WHERE make = ? AND model = ? AND is_active = 1
		ORDER BY scraped_timestamp DESC
	`, carMake, carModel)
	if err != nil {
		return nil, errors.NewPersistence(carMake+" "+carModel, "query active listings", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// ListingsByPrice returns the active listings for one (make, model) sorted
// ascending by price, listings without a price last.
func (s *Store) ListingsByPrice(ctx context.Context, carMake, carModel string) ([]Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, make, model, title, url, price, mileage, fuel_type,
			first_registration, power, transmission, seller_type, location,
			scraped_date, scraped_timestamp, is_active
		FROM listings
		WHERE make = ? AND model = ? AND is_active = 1
		ORDER BY price IS NULL, price ASC
	`, carMake, carModel)
	if err != nil {
		return nil, errors.NewPersistence(carMake+" "+carModel, "query listings by price", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

func scanListings(rows *sql.Rows) ([]Listing, error) {
	var listings []Listing
	for rows.Next() {
		var (
			l        Listing
			title    sql.NullString
			url      sql.NullString
			price    sql.NullFloat64
			mileage  sql.NullInt64
			fuel     sql.NullString
			firstReg sql.NullString
			power    sql.NullString
			trans    sql.NullString
			seller   sql.NullString
			location sql.NullString
		)
		if err := rows.Scan(
			&l.ID, &l.ListingID, &l.Make, &l.Model, &title, &url, &price, &mileage,
			&fuel, &firstReg, &power, &trans, &seller, &location,
			&l.ScrapedDate, &l.ScrapedTimestamp, &l.IsActive,
		); err != nil {
			return nil, errors.NewPersistence("", "scan listing row", err)
		}
		l.Title = title.String
		l.URL = url.String
		if price.Valid {
			v := price.Float64
			l.Price = &v
		}
		if mileage.Valid {
			v := mileage.Int64
			l.Mileage = &v
		}
		l.FuelType = fuel.String
		l.FirstRegistration = firstReg.String
		l.Power = power.String
		l.Transmission = trans.String
		l.SellerType = seller.String
		l.Location = location.String
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// MarkListingsInactive deactivates every active listing for (make, model)
// whose id is missing from currentIDs. An empty id set deactivates all of
// them, so callers must not pass the result of a failed scrape here.
// The operation is idempotent.
func (s *Store) MarkListingsInactive(ctx context.Context, carMake, carModel string, currentIDs []string) (int64, error) {
	var (
		res sql.Result
		err error
	)

	if len(currentIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(currentIDs)), ",")

		args := make([]interface{}, 0, len(currentIDs)+2)
		args = append(args, carMake, carModel)
		for _, id := range currentIDs {
			args = append(args, id)
		}

		res, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			UPDATE listings
			SET is_active = 0, updated_at = CURRENT_TIMESTAMP
			WHERE make = ? AND model = ? AND is_active = 1 AND listing_id NOT IN (%s)
		`, placeholders), args...)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE listings
			SET is_active = 0, updated_at = CURRENT_TIMESTAMP
			WHERE make = ? AND model = ? AND is_active = 1
		`, carMake, carModel)
	}
	if err != nil {
		return 0, errors.NewPersistence(carMake+" "+carModel, "mark listings inactive", err)
	}

	affected, _ := res.RowsAffected()
	if affected > 0 {
		s.log.Info().
			Str("make", carMake).
			Str("model", carModel).
			Int64("count", affected).
			Msg("Listings marked inactive")
	}

	return affected, nil
}

// InsertPriceChanges appends a batch of price change events to the ledger
// inside a single transaction. Ledger rows are never updated or deleted.
func (s *Store) InsertPriceChanges(ctx context.Context, carMake, carModel string, changes []PriceChange) (int, error) {
	if len(changes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewPersistence(carMake+" "+carModel, "begin transaction", err)
	}
	defer tx.Rollback()

	for _, c := range changes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO price_history (
				listing_id, make, model, title, price_old, price_new,
				price_difference, price_change_percent, change_type,
				change_date, change_timestamp, last_seen
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ListingID, carMake, carModel, nullStr(c.Title), c.PriceOld, c.PriceNew,
			c.PriceDifference, c.PriceChangePercent, c.ChangeType,
			c.ChangeDate, c.ChangeTimestamp, nullStr(c.LastSeen))
		if err != nil {
			return 0, errors.NewPersistence(carMake+" "+carModel, "insert price change "+c.ListingID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewPersistence(carMake+" "+carModel, "commit price changes", err)
	}

	s.log.Info().
		Str("make", carMake).
		Str("model", carModel).
		Int("count", len(changes)).
		Msg("Price changes saved")

	return len(changes), nil
}

// PriceHistory returns the price change ledger for one (make, model), newest
// first. A limit of 0 means no limit.
func (s *Store) PriceHistory(ctx context.Context, carMake, carModel string, limit int) ([]PriceChange, error) {
	query := `
		SELECT id, listing_id, make, model, title, price_old, price_new,
			price_difference, price_change_percent, change_type,
			change_date, change_timestamp, last_seen
		FROM price_history
		WHERE make = ? AND model = ?
		ORDER BY change_timestamp DESC
	`
	args := []interface{}{carMake, carModel}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistence(carMake+" "+carModel, "query price history", err)
	}
	defer rows.Close()

	var changes []PriceChange
	for rows.Next() {
		var (
			c        PriceChange
			title    sql.NullString
			lastSeen sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.ListingID, &c.Make, &c.Model, &title, &c.PriceOld, &c.PriceNew,
			&c.PriceDifference, &c.PriceChangePercent, &c.ChangeType,
			&c.ChangeDate, &c.ChangeTimestamp, &lastSeen,
		); err != nil {
			return nil, errors.NewPersistence(carMake+" "+carModel, "scan price change row", err)
		}
		c.Title = title.String
		c.LastSeen = lastSeen.String
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// UpsertMetadata replaces the metadata row for (make, model) with the given
// run summary.
func (s *Store) UpsertMetadata(ctx context.Context, meta Metadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scraping_metadata (
			make, model, last_scrape_date, last_scrape_timestamp,
			total_listings, new_listings, price_changes,
			scraper_version, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(make, model) DO UPDATE SET
			last_scrape_date = excluded.last_scrape_date,
			last_scrape_timestamp = excluded.last_scrape_timestamp,
			total_listings = excluded.total_listings,
			new_listings = excluded.new_listings,
			price_changes = excluded.price_changes,
			scraper_version = excluded.scraper_version,
			status = excluded.status,
			error_message = excluded.error_message
	`, meta.Make, meta.Model, meta.LastScrapeDate, meta.LastScrapeTimestamp,
		meta.TotalListings, meta.NewListings, meta.PriceChanges,
		meta.ScraperVersion, meta.Status, nullStr(meta.ErrorMessage))
	if err != nil {
		return errors.NewPersistence(meta.Make+" "+meta.Model, "upsert metadata", err)
	}

	s.log.Info().
		Str("make", meta.Make).
		Str("model", meta.Model).
		Str("status", meta.Status).
		Msg("Metadata updated")

	return nil
}

// Meta returns the metadata row for (make, model), or nil if none exists.
func (s *Store) Meta(ctx context.Context, carMake, carModel string) (*Metadata, error) {
	var (
		m       Metadata
		version sql.NullString
		errMsg  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT make, model, last_scrape_date, last_scrape_timestamp,
			total_listings, new_listings, price_changes,
			scraper_version, status, error_message
		FROM scraping_metadata
		WHERE make = ? AND model = ?
	`, carMake, carModel).Scan(
		&m.Make, &m.Model, &m.LastScrapeDate, &m.LastScrapeTimestamp,
		&m.TotalListings, &m.NewListings, &m.PriceChanges,
		&version, &m.Status, &errMsg,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPersistence(carMake+" "+carModel, "query metadata", err)
	}
	m.ScraperVersion = version.String
	m.ErrorMessage = errMsg.String
	return &m, nil
}

// VehicleModels returns all distinct (make, model) pairs with their active
// listing counts.
func (s *Store) VehicleModels(ctx context.Context) ([]VehicleModel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT make, model, COUNT(*) as count
		FROM listings
		WHERE is_active = 1
		GROUP BY make, model
		ORDER BY make, model
	`)
	if err != nil {
		return nil, errors.NewPersistence("", "query vehicle models", err)
	}
	defer rows.Close()

	var models []VehicleModel
	for rows.Next() {
		var m VehicleModel
		if err := rows.Scan(&m.Make, &m.Model, &m.Count); err != nil {
			return nil, errors.NewPersistence("", "scan vehicle model row", err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// Statistics aggregates active listing and price history data. Empty make and
// model aggregate over the whole database; make alone restricts to a brand.
func (s *Store) Statistics(ctx context.Context, carMake, carModel string) (Statistics, error) {
	stats := Statistics{
		FuelTypes:   make(map[string]int),
		SellerTypes: make(map[string]int),
		GeneratedAt: time.Now().Format(time.RFC3339),
	}

	where := "WHERE is_active = 1"
	var params []interface{}
	switch {
	case carMake != "" && carModel != "":
		where += " AND make = ? AND model = ?"
		params = append(params, carMake, carModel)
	case carMake != "":
		where += " AND make = ?"
		params = append(params, carMake)
	}

	var (
		avgPrice   sql.NullFloat64
		minPrice   sql.NullFloat64
		maxPrice   sql.NullFloat64
		avgMileage sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*), AVG(price), MIN(price), MAX(price), AVG(mileage)
		FROM listings %s AND price IS NOT NULL
	`, where), params...).Scan(&stats.Listings.TotalListings, &avgPrice, &minPrice, &maxPrice, &avgMileage)
	if err != nil {
		return stats, errors.NewPersistence(carMake+" "+carModel, "query listing statistics", err)
	}
	stats.Listings.AvgPrice = avgPrice.Float64
	stats.Listings.MinPrice = minPrice.Float64
	stats.Listings.MaxPrice = maxPrice.Float64
	stats.Listings.AvgMileage = avgMileage.Float64

	if err := s.countBy(ctx, fmt.Sprintf(`
		SELECT fuel_type, COUNT(*) FROM listings %s AND fuel_type IS NOT NULL
		GROUP BY fuel_type ORDER BY COUNT(*) DESC
	`, where), params, stats.FuelTypes); err != nil {
		return stats, err
	}

	if err := s.countBy(ctx, fmt.Sprintf(`
		SELECT seller_type, COUNT(*) FROM listings %s AND seller_type IS NOT NULL
		GROUP BY seller_type
	`, where), params, stats.SellerTypes); err != nil {
		return stats, err
	}

	historyWhere := "WHERE 1=1"
	switch {
	case carMake != "" && carModel != "":
		historyWhere += " AND make = ? AND model = ?"
	case carMake != "":
		historyWhere += " AND make = ?"
	}

	var (
		drops     sql.NullInt64
		increases sql.NullInt64
		avgChange sql.NullFloat64
	)
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*),
			SUM(CASE WHEN price_difference < 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN price_difference > 0 THEN 1 ELSE 0 END),
			AVG(price_difference)
		FROM price_history %s
	`, historyWhere), params...).Scan(&stats.PriceChanges.TotalChanges, &drops, &increases, &avgChange)
	if err != nil {
		return stats, errors.NewPersistence(carMake+" "+carModel, "query price change statistics", err)
	}
	stats.PriceChanges.PriceDrops = int(drops.Int64)
	stats.PriceChanges.PriceIncreases = int(increases.Int64)
	stats.PriceChanges.AvgChange = avgChange.Float64

	return stats, nil
}

func (s *Store) countBy(ctx context.Context, query string, params []interface{}, dest map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return errors.NewPersistence("", "query group counts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return errors.NewPersistence("", "scan group count row", err)
		}
		dest[key] = count
	}
	return rows.Err()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
