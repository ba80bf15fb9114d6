package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/masterries/AutoAnalyse/pkg/errors"
)

var listingHeader = []string{
	"listing_id", "make", "model", "title", "url", "price", "mileage",
	"fuel_type", "first_registration", "power", "transmission",
	"seller_type", "location", "scraped_date", "scraped_timestamp", "is_active",
}

var priceHistoryHeader = []string{
	"listing_id", "make", "model", "title", "price_old", "price_new",
	"price_difference", "price_change_percent", "change_type",
	"change_date", "change_timestamp", "last_seen",
}

// ExportCSV writes the current active listings and the full price history for
// one (make, model) to <dir>/<make>_<model>_listings.csv and
// <dir>/<make>_<model>_price_history.csv. Files are only written when there
// is data to export.
func (s *Store) ExportCSV(ctx context.Context, carMake, carModel, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewPersistence(carMake+" "+carModel, "create export dir", err)
	}

	listings, err := s.ActiveListings(ctx, carMake, carModel)
	if err != nil {
		return err
	}
	if len(listings) > 0 {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s_listings.csv", carMake, carModel))
		if err := writeListingsCSV(path, listings); err != nil {
			return err
		}
		s.log.Info().Str("path", path).Int("rows", len(listings)).Msg("Listings exported")
	}

	history, err := s.PriceHistory(ctx, carMake, carModel, 0)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s_price_history.csv", carMake, carModel))
		if err := writePriceHistoryCSV(path, history); err != nil {
			return err
		}
		s.log.Info().Str("path", path).Int("rows", len(history)).Msg("Price history exported")
	}

	return nil
}

func writeListingsCSV(path string, listings []Listing) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewPersistence(path, "create csv file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(listingHeader); err != nil {
		return errors.NewPersistence(path, "write csv header", err)
	}

	for _, l := range listings {
		row := []string{
			l.ListingID,
			l.Make,
			l.Model,
			l.Title,
			l.URL,
			floatField(l.Price),
			intField(l.Mileage),
			l.FuelType,
			l.FirstRegistration,
			l.Power,
			l.Transmission,
			l.SellerType,
			l.Location,
			l.ScrapedDate,
			strconv.FormatInt(l.ScrapedTimestamp, 10),
			strconv.FormatBool(l.IsActive),
		}
		if err := w.Write(row); err != nil {
			return errors.NewPersistence(path, "write csv row", err)
		}
	}

	w.Flush()
	return w.Error()
}

func writePriceHistoryCSV(path string, history []PriceChange) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewPersistence(path, "create csv file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(priceHistoryHeader); err != nil {
		return errors.NewPersistence(path, "write csv header", err)
	}

	for _, c := range history {
		row := []string{
			c.ListingID,
			c.Make,
			c.Model,
			c.Title,
			strconv.FormatFloat(c.PriceOld, 'f', -1, 64),
			strconv.FormatFloat(c.PriceNew, 'f', -1, 64),
			strconv.FormatFloat(c.PriceDifference, 'f', -1, 64),
			strconv.FormatFloat(c.PriceChangePercent, 'f', 2, 64),
			c.ChangeType,
			c.ChangeDate,
			strconv.FormatInt(c.ChangeTimestamp, 10),
			c.LastSeen,
		}
		if err := w.Write(row); err != nil {
			return errors.NewPersistence(path, "write csv row", err)
		}
	}

	w.Flush()
	return w.Error()
}

func floatField(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func intField(i *int64) string {
	if i == nil {
		return ""
	}
	return strconv.FormatInt(*i, 10)
}
