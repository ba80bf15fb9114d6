// Package reconcile compares a freshly scraped snapshot against the
// previously stored one and turns price differences into ledger events.
package reconcile

import (
	"time"

	"github.com/masterries/AutoAnalyse/internal/store"
	"github.com/masterries/AutoAnalyse/logger"
)

// DetectPriceChanges inner-joins the two snapshots on listing id and emits
// one PriceChangeEvent per matched pair whose prices are both valid and
// differ. Listings present on only one side produce no event; a pair with a
// missing or zero price on either side is skipped with a warning.
func DetectPriceChanges(current, previous []store.Listing) []store.PriceChange {
	if len(current) == 0 || len(previous) == 0 {
		return nil
	}

	log := logger.ForReconciler()

	old := make(map[string]store.Listing, len(previous))
	for _, l := range previous {
		old[l.ListingID] = l
	}

	now := time.Now()
	var changes []store.PriceChange

	for _, cur := range current {
		prev, ok := old[cur.ListingID]
		if !ok {
			continue
		}
		if cur.Price == nil || prev.Price == nil {
			log.Warn().
				Str("listing_id", cur.ListingID).
				Msg("Missing price on one side, skipping pair")
			continue
		}

		priceNew, priceOld := *cur.Price, *prev.Price
		if priceNew == priceOld {
			continue
		}
		if priceOld == 0 || priceNew == 0 {
			log.Warn().
				Str("listing_id", cur.ListingID).
				Float64("price_old", priceOld).
				Float64("price_new", priceNew).
				Msg("Zero price, skipping pair")
			continue
		}

		changeType := store.ChangeIncrease
		if priceNew < priceOld {
			changeType = store.ChangeDecrease
		}

		change := store.PriceChange{
			ListingID:          cur.ListingID,
			Make:               cur.Make,
			Model:              cur.Model,
			Title:              cur.Title,
			PriceOld:           priceOld,
			PriceNew:           priceNew,
			PriceDifference:    priceNew - priceOld,
			PriceChangePercent: (priceNew - priceOld) / priceOld * 100,
			ChangeType:         changeType,
			ChangeDate:         now.Format(time.RFC3339),
			ChangeTimestamp:    now.Unix(),
			LastSeen:           prev.ScrapedDate,
		}
		changes = append(changes, change)

		log.Info().
			Str("listing_id", cur.ListingID).
			Str("change_type", changeType).
			Float64("price_old", priceOld).
			Float64("price_new", priceNew).
			Float64("percent", change.PriceChangePercent).
			Msg("Price change detected")
	}

	return changes
}
