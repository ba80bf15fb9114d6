package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/masterries/AutoAnalyse/internal/store"
	"github.com/masterries/AutoAnalyse/logger"
	"github.com/masterries/AutoAnalyse/pkg/errors"
)

// Options configures one scrape run.
type Options struct {
	// MaxPages limits the page count; 0 means auto-detect from the first
	// page, bounded by MaxPagesCap.
	MaxPages      int
	MaxPagesCap   int
	BaseDelay     time.Duration
	StopOnEmpty   bool
	AdaptiveDelay bool
}

// Result is the outcome of one scrape run.
type Result struct {
	Listings     []store.Listing
	PagesScraped int
}

// Scraper fetches and extracts all result pages for one (make, model),
// sequentially, with adaptive pacing between requests.
type Scraper struct {
	carMake   string
	carModel  string
	urlFormat string
	fetcher   *Fetcher
	extractor *Extractor
	log       *logger.Logger
}

// New creates a scraper for one (make, model). urlFormat is the listing URL
// template with two %s verbs for make and model.
func New(carMake, carModel, urlFormat string, fetcher *Fetcher) *Scraper {
	firstURL := fmt.Sprintf(urlFormat, carMake, carModel)
	return &Scraper{
		carMake:   carMake,
		carModel:  carModel,
		urlFormat: urlFormat,
		fetcher:   fetcher,
		extractor: NewExtractor(carMake, carModel, firstURL),
		log:       logger.ForScraper(carMake, carModel),
	}
}

// pageURL returns the URL for one result page. Page 1 is the bare listing
// URL; later pages append the page parameter.
func (s *Scraper) pageURL(page int) string {
	base := fmt.Sprintf(s.urlFormat, s.carMake, s.carModel)
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%s&page=%d", base, page)
}

// Scrape runs the page loop. It stops at the page limit, when a page yields
// no new listings (with StopOnEmpty), or when a page yields no listings at
// all. A transport failure on page 1 aborts the run; later failures are
// logged, back off the delay and continue. Listing ids already seen in this
// run are not re-counted when they reappear on a later page.
func (s *Scraper) Scrape(ctx context.Context, opts Options) (Result, error) {
	var result Result
	seen := make(map[string]bool)
	delay := newDelayController(opts.BaseDelay, opts.AdaptiveDelay)

	s.log.Info().
		Int("max_pages", opts.MaxPages).
		Bool("stop_on_empty", opts.StopOnEmpty).
		Bool("adaptive_delay", opts.AdaptiveDelay).
		Msg("Starting scrape")

	// Page 1 also determines the page count when auto-detecting.
	body, responseTime, err := s.fetcher.Fetch(ctx, s.pageURL(1))
	if err != nil {
		return Result{}, errors.NewTransport(s.carMake+" "+s.carModel, "first page failed", err)
	}
	delay.start(responseTime)

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Result{}, errors.NewExtraction(s.carMake+" "+s.carModel, "parse first page", err)
	}

	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = totalPages(doc, opts.MaxPagesCap)
		s.log.Info().Int("pages", maxPages).Msg("Auto-detected page count")
	}

	newOnPage := s.merge(s.extractor.ExtractListings(doc), seen, &result.Listings)
	result.PagesScraped = 1
	s.log.Info().Int("page", 1).Int("new_listings", newOnPage).Msg("Page scraped")

	if newOnPage == 0 {
		s.log.Warn().Msg("First page contains no listings")
		return result, nil
	}

	for page := 2; page <= maxPages; page++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay.delay()):
		}

		body, responseTime, err := s.fetcher.Fetch(ctx, s.pageURL(page))
		if err != nil {
			s.log.Error().Err(err).Int("page", page).Msg("Page fetch failed, continuing")
			delay.failure()
			continue
		}
		delay.observe(responseTime)

		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			s.log.Error().Err(err).Int("page", page).Msg("Page parse failed, continuing")
			continue
		}

		extracted := s.extractor.ExtractListings(doc)
		newOnPage := s.merge(extracted, seen, &result.Listings)
		result.PagesScraped = page
		s.log.Info().Int("page", page).Int("new_listings", newOnPage).Msg("Page scraped")

		if len(extracted) == 0 {
			s.log.Info().Int("page", page).Msg("Empty page, stopping")
			break
		}
		if newOnPage == 0 && opts.StopOnEmpty {
			s.log.Info().Int("page", page).Msg("No new listings, stopping")
			break
		}
	}

	s.log.Info().
		Int("listings", len(result.Listings)).
		Int("pages", result.PagesScraped).
		Msg("Scrape finished")

	return result, nil
}

// merge appends listings not yet seen in this run and returns how many were
// new on the page.
func (s *Scraper) merge(extracted []store.Listing, seen map[string]bool, into *[]store.Listing) int {
	count := 0
	for _, listing := range extracted {
		if seen[listing.ListingID] {
			continue
		}
		seen[listing.ListingID] = true
		*into = append(*into, listing)
		count++
	}
	return count
}
