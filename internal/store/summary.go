package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/masterries/AutoAnalyse/pkg/errors"
)

// WriteMultiModelSummary writes a cross-model text report to
// <dir>/logs/multi_model/multi_model_summary_<date>_<time>.txt covering every
// tracked (make, model): batch totals, models with new listings, models with
// price changes today and a per-model detail list. Returns the path of the
// written file.
func (s *Store) WriteMultiModelSummary(ctx context.Context, dir string) (string, error) {
	now := time.Now()
	summaryDir := filepath.Join(dir, "logs", "multi_model")
	if err := os.MkdirAll(summaryDir, 0755); err != nil {
		return "", errors.NewPersistence(summaryDir, "create summary dir", err)
	}

	path := filepath.Join(summaryDir, fmt.Sprintf("multi_model_summary_%s_%s.txt",
		now.Format("2006-01-02"), now.Format("15-04-05")))

	rows, err := s.db.QueryContext(ctx, `
		SELECT make, model, last_scrape_date, total_listings, new_listings, price_changes, status
		FROM scraping_metadata
		ORDER BY last_scrape_date DESC, make, model`)
	if err != nil {
		return "", errors.NewPersistence("summary", "query metadata", err)
	}
	defer rows.Close()

	var metas []Metadata
	for rows.Next() {
		var m Metadata
		if err := rows.Scan(&m.Make, &m.Model, &m.LastScrapeDate, &m.TotalListings,
			&m.NewListings, &m.PriceChanges, &m.Status); err != nil {
			return "", errors.NewPersistence("summary", "scan metadata", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return "", errors.NewPersistence("summary", "iterate metadata", err)
	}

	var b strings.Builder
	b.WriteString("AutoScout24 Multi-Model Update Summary\n")
	b.WriteString("======================================\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString("AutoScout24 Luxembourg Scraper v2.0\n\n")

	if len(metas) == 0 {
		b.WriteString("No scraping data available.\n")
		if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
			return "", errors.NewPersistence(path, "write summary file", err)
		}
		return path, nil
	}

	var totalListings, totalNew, totalChanges int
	for _, m := range metas {
		totalListings += m.TotalListings
		totalNew += m.NewListings
		totalChanges += m.PriceChanges
	}

	b.WriteString("OVERVIEW\n")
	b.WriteString("========\n")
	fmt.Fprintf(&b, "Models tracked:      %d\n", len(metas))
	fmt.Fprintf(&b, "Active listings:     %d\n", totalListings)
	fmt.Fprintf(&b, "New listings today:  %d\n", totalNew)
	fmt.Fprintf(&b, "Price changes today: %d\n\n", totalChanges)

	s.writeNewListingsSection(&b, metas)
	if err := s.writePriceChangeSection(ctx, &b, metas, now); err != nil {
		return "", err
	}
	if err := s.writeModelDetailSection(ctx, &b, metas); err != nil {
		return "", err
	}
	if err := s.writeTopDealsSection(ctx, &b); err != nil {
		return "", err
	}

	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.Format("2006-01-02 15:04:05"))

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", errors.NewPersistence(path, "write summary file", err)
	}

	s.log.Info().Str("path", path).Int("models", len(metas)).Msg("Multi-model summary written")
	return path, nil
}

func (s *Store) writeNewListingsSection(b *strings.Builder, metas []Metadata) {
	var withNew []Metadata
	for _, m := range metas {
		if m.NewListings > 0 {
			withNew = append(withNew, m)
		}
	}

	if len(withNew) == 0 {
		b.WriteString("MODELS WITH NEW LISTINGS\n")
		b.WriteString("========================\n")
		b.WriteString("No new listings found.\n\n")
		return
	}

	fmt.Fprintf(b, "MODELS WITH NEW LISTINGS (%d)\n", len(withNew))
	b.WriteString(strings.Repeat("=", 50) + "\n")
	for _, m := range withNew {
		fmt.Fprintf(b, "* %s %s\n", strings.ToUpper(m.Make), strings.ToUpper(m.Model))
		fmt.Fprintf(b, "  %d new of %d listings", m.NewListings, m.TotalListings)
		if m.PriceChanges > 0 {
			fmt.Fprintf(b, " | %d price changes", m.PriceChanges)
		}
		fmt.Fprintf(b, "\n  Last update: %s\n\n", m.LastScrapeDate)
	}
}

func (s *Store) writePriceChangeSection(ctx context.Context, b *strings.Builder, metas []Metadata, now time.Time) error {
	var withChanges []Metadata
	for _, m := range metas {
		if m.PriceChanges > 0 {
			withChanges = append(withChanges, m)
		}
	}

	if len(withChanges) == 0 {
		b.WriteString("MODELS WITH PRICE CHANGES\n")
		b.WriteString("=========================\n")
		b.WriteString("No price changes today.\n\n")
		return nil
	}

	fmt.Fprintf(b, "MODELS WITH PRICE CHANGES (%d)\n", len(withChanges))
	b.WriteString(strings.Repeat("=", 50) + "\n")

	today := now.Format("2006-01-02")
	for _, m := range withChanges {
		fmt.Fprintf(b, "* %s %s: %d changes\n", strings.ToUpper(m.Make), strings.ToUpper(m.Model), m.PriceChanges)

		rows, err := s.db.QueryContext(ctx, `
			SELECT change_type, COUNT(*), AVG(price_difference)
			FROM price_history
			WHERE make = ? AND model = ? AND substr(change_date, 1, 10) = ?
			GROUP BY change_type`, m.Make, m.Model, today)
		if err != nil {
			return errors.NewPersistence("summary", "query price change detail", err)
		}
		for rows.Next() {
			var changeType string
			var count int
			var avgDiff float64
			if err := rows.Scan(&changeType, &count, &avgDiff); err != nil {
				rows.Close()
				return errors.NewPersistence("summary", "scan price change detail", err)
			}
			label := "increased"
			if changeType == ChangeDecrease {
				label = "decreased"
			}
			fmt.Fprintf(b, "  %dx %s (avg %.0f EUR)\n", count, label, abs(avgDiff))
		}
		if err := rows.Close(); err != nil {
			return errors.NewPersistence("summary", "close price change detail", err)
		}
		b.WriteString("\n")
	}
	return nil
}

func (s *Store) writeModelDetailSection(ctx context.Context, b *strings.Builder, metas []Metadata) error {
	b.WriteString("ALL TRACKED MODELS\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")

	for _, m := range metas {
		marker := "[ok]"
		if m.Status != "success" {
			marker = "[failed]"
		}
		fmt.Fprintf(b, "%s %s %s\n", marker, strings.ToUpper(m.Make), strings.ToUpper(m.Model))
		fmt.Fprintf(b, "   Listings: %d (%d new)", m.TotalListings, m.NewListings)
		if m.PriceChanges > 0 {
			fmt.Fprintf(b, " | %d price changes", m.PriceChanges)
		}
		fmt.Fprintf(b, "\n   Last update: %s\n", m.LastScrapeDate)

		var avg, min, max float64
		var count int
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(AVG(price), 0), COALESCE(MIN(price), 0), COALESCE(MAX(price), 0), COUNT(*)
			FROM listings
			WHERE make = ? AND model = ? AND is_active = 1 AND price IS NOT NULL`,
			m.Make, m.Model).Scan(&avg, &min, &max, &count)
		if err != nil {
			return errors.NewPersistence("summary", "query model price stats", err)
		}
		if count > 0 {
			fmt.Fprintf(b, "   Prices: avg %.0f EUR | %.0f - %.0f EUR\n", avg, min, max)
		}
		b.WriteString("\n")
	}
	return nil
}

func (s *Store) writeTopDealsSection(ctx context.Context, b *strings.Builder) error {
	b.WriteString("TOP 10 CHEAPEST LISTINGS (all models)\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")

	rows, err := s.db.QueryContext(ctx, `
		SELECT make, model, COALESCE(title, ''), price
		FROM listings
		WHERE is_active = 1 AND price IS NOT NULL AND price > 0
		ORDER BY price ASC
		LIMIT 10`)
	if err != nil {
		return errors.NewPersistence("summary", "query top deals", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var carMake, carModel, title string
		var price float64
		if err := rows.Scan(&carMake, &carModel, &title, &price); err != nil {
			return errors.NewPersistence("summary", "scan top deal", err)
		}
		i++
		if len(title) > 50 {
			title = title[:50] + "..."
		}
		fmt.Fprintf(b, "%2d. %8.0f EUR - %s %s\n", i, price, strings.ToUpper(carMake), strings.ToUpper(carModel))
		fmt.Fprintf(b, "    %s\n\n", title)
	}
	if err := rows.Err(); err != nil {
		return errors.NewPersistence("summary", "iterate top deals", err)
	}
	b.WriteString("\n")
	return nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
