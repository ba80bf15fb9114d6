// Package runner orchestrates complete scraping runs: scrape, reconcile
// against the stored snapshot, persist, and summarize.
package runner

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/masterries/AutoAnalyse/config"
	"github.com/masterries/AutoAnalyse/internal/reconcile"
	"github.com/masterries/AutoAnalyse/internal/scraper"
	"github.com/masterries/AutoAnalyse/internal/store"
	"github.com/masterries/AutoAnalyse/logger"
	"github.com/masterries/AutoAnalyse/pkg/errors"
	"github.com/masterries/AutoAnalyse/services/publisher"
)

const scraperVersion = "2.0"

// Run statuses recorded in metadata and results.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusError   = "error"
)

// ModelRef names one vehicle model to scrape.
type ModelRef struct {
	Make  string
	Model string
}

// Result summarizes one model's run. NewListings and UpdatedListings are
// reported separately; metadata records the new count.
type Result struct {
	Make            string `json:"make"`
	Model           string `json:"model"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
	PagesScraped    int    `json:"pages_scraped"`
	TotalListings   int    `json:"total_listings"`
	NewListings     int    `json:"new_listings"`
	UpdatedListings int    `json:"updated_listings"`
	PriceChanges    int    `json:"price_changes"`
	Inactivated     int    `json:"inactivated"`

	// fatal marks failures no later model can recover from, like a broken
	// database.
	fatal bool
}

// Runner wires the scraper, reconciler, store and optional publisher into
// complete runs. It is single-threaded; models are scraped one at a time.
type Runner struct {
	store   *store.Store
	fetcher *scraper.Fetcher
	pub     publisher.Publisher
	cfg     config.Config
	log     *logger.Logger
}

// New creates a runner. pub may be nil when no event stream is configured.
func New(st *store.Store, fetcher *scraper.Fetcher, pub publisher.Publisher, cfg config.Config) *Runner {
	return &Runner{
		store:   st,
		fetcher: fetcher,
		pub:     pub,
		cfg:     cfg,
		log:     logger.ForRunner(),
	}
}

// RunModel executes one complete run for a (make, model): load the previous
// snapshot, scrape, detect price changes, persist, and update metadata.
// An empty scrape result is treated as "no update occurred": nothing is
// reconciled or deactivated, so a transient fetch failure cannot wipe the
// known inventory. Errors never propagate; they are recorded in the result
// and in the metadata row.
func (r *Runner) RunModel(ctx context.Context, ref ModelRef, opts scraper.Options) Result {
	result := Result{Make: ref.Make, Model: ref.Model, Status: StatusSuccess}
	start := time.Now()

	r.log.Info().Str("make", ref.Make).Str("model", ref.Model).Msg("Run started")

	previous, err := r.store.ActiveListings(ctx, ref.Make, ref.Model)
	if err != nil {
		return r.fail(ctx, result, err)
	}

	scr := scraper.New(ref.Make, ref.Model, r.cfg.BaseURL, r.fetcher)
	scraped, err := scr.Scrape(ctx, opts)
	if err != nil {
		return r.fail(ctx, result, err)
	}
	result.PagesScraped = scraped.PagesScraped
	result.TotalListings = len(scraped.Listings)

	if len(scraped.Listings) == 0 {
		r.log.Warn().Str("make", ref.Make).Str("model", ref.Model).Msg("Empty scrape result, skipping reconciliation")
		result.Status = StatusEmpty
		r.writeMetadata(ctx, result)
		return result
	}

	changes := reconcile.DetectPriceChanges(scraped.Listings, previous)
	result.PriceChanges = len(changes)

	inserted, updated, err := r.store.InsertListings(ctx, ref.Make, ref.Model, scraped.Listings)
	if err != nil {
		return r.fail(ctx, result, err)
	}
	result.NewListings = inserted
	result.UpdatedListings = updated

	if _, err := r.store.InsertPriceChanges(ctx, ref.Make, ref.Model, changes); err != nil {
		return r.fail(ctx, result, err)
	}

	currentIDs := make([]string, 0, len(scraped.Listings))
	for _, l := range scraped.Listings {
		currentIDs = append(currentIDs, l.ListingID)
	}
	inactivated, err := r.store.MarkListingsInactive(ctx, ref.Make, ref.Model, currentIDs)
	if err != nil {
		return r.fail(ctx, result, err)
	}
	result.Inactivated = int(inactivated)

	r.writeMetadata(ctx, result)

	if err := r.store.ExportCSV(ctx, ref.Make, ref.Model, r.cfg.DataDir); err != nil {
		r.log.Error().Err(err).Msg("CSV export failed")
	}

	r.publishChanges(changes)

	r.log.Info().
		Str("make", ref.Make).
		Str("model", ref.Model).
		Int("listings", result.TotalListings).
		Int("new", result.NewListings).
		Int("updated", result.UpdatedListings).
		Int("price_changes", result.PriceChanges).
		Int("inactivated", result.Inactivated).
		Dur("duration", time.Since(start)).
		Msg("Run finished")

	return result
}

// RunModels scrapes a list of models sequentially. Each model's failure is
// recorded in its result entry and the batch proceeds to the next model,
// except for fatal failures (broken storage), which abort the batch. A pause
// between models keeps the load on the site low. A cross-model summary report
// is written when the batch ends.
func (r *Runner) RunModels(ctx context.Context, refs []ModelRef, opts scraper.Options) []Result {
	results := make([]Result, 0, len(refs))

	pause := 2 * opts.BaseDelay
	if pause < 5*time.Second {
		pause = 5 * time.Second
	}

	for i, ref := range refs {
		if i > 0 {
			r.log.Info().Dur("pause", pause).Msg("Pausing before next model")
			select {
			case <-ctx.Done():
				return results
			case <-time.After(pause):
			}
		}
		result := r.RunModel(ctx, ref, opts)
		results = append(results, result)
		if result.fatal {
			r.log.Error().Str("make", ref.Make).Str("model", ref.Model).Msg("Fatal failure, aborting batch")
			break
		}
	}

	if path, err := r.store.WriteMultiModelSummary(ctx, r.cfg.DataDir); err != nil {
		r.log.Error().Err(err).Msg("Summary report failed")
	} else {
		r.log.Info().Str("path", path).Msg("Summary report written")
	}

	return results
}

// fail records an error outcome in the result and metadata.
func (r *Runner) fail(ctx context.Context, result Result, err error) Result {
	r.log.Error().Err(err).Str("make", result.Make).Str("model", result.Model).Msg("Run failed")
	result.Status = StatusError
	result.Error = err.Error()

	var scrapeErr *errors.ScrapeError
	if stderrors.As(err, &scrapeErr) && scrapeErr.IsFatal() {
		result.fatal = true
	}

	r.writeMetadata(ctx, result)
	return result
}

func (r *Runner) writeMetadata(ctx context.Context, result Result) {
	now := time.Now()
	meta := store.Metadata{
		Make:                result.Make,
		Model:               result.Model,
		LastScrapeDate:      now.Format(time.RFC3339),
		LastScrapeTimestamp: now.Unix(),
		TotalListings:       result.TotalListings,
		NewListings:         result.NewListings,
		PriceChanges:        result.PriceChanges,
		ScraperVersion:      scraperVersion,
		Status:              result.Status,
		ErrorMessage:        result.Error,
	}
	if err := r.store.UpsertMetadata(ctx, meta); err != nil {
		r.log.Error().Err(err).Msg("Metadata update failed")
	}
}

func (r *Runner) publishChanges(changes []store.PriceChange) {
	if r.pub == nil || len(changes) == 0 {
		return
	}

	log := logger.ForPublisher()
	for _, change := range changes {
		if err := r.pub.PublishChange(change); err != nil {
			log.Error().Err(err).Str("listing_id", change.ListingID).Msg("Publish failed")
		}
	}
	if err := r.pub.TrimStreams(); err != nil {
		log.Error().Err(err).Msg("Stream trimming failed")
	}
}
