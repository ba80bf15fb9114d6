package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/masterries/AutoAnalyse/internal/store"
	"github.com/masterries/AutoAnalyse/logger"
	"github.com/masterries/AutoAnalyse/pkg/errors"
)

// listingSelector matches one result container per vehicle offer.
const listingSelector = "article.cldt-summary-full-item"

var powerPattern = regexp.MustCompile(`(\d+)\s*kW\s*\((\d+)\s*(?:CH|PS)\)`)

var fuelTypes = map[string]string{
	"d": store.FuelDiesel,
	"b": store.FuelPetrol,
	"e": store.FuelElectric,
	"h": store.FuelHybrid,
	"l": store.FuelLPG,
	"c": store.FuelCNG,
}

var sellerTypes = map[string]string{
	"p": store.SellerPrivate,
	"d": store.SellerDealer,
}

// Extractor turns one parsed result page into structured listing records.
// It is a pure transform; per-listing failures are logged and skipped.
type Extractor struct {
	carMake  string
	carModel string
	siteURL  string
	log      *logger.Logger
}

// NewExtractor creates an extractor for one (make, model). Relative listing
// links are resolved against siteURL.
func NewExtractor(carMake, carModel, siteURL string) *Extractor {
	return &Extractor{
		carMake:  carMake,
		carModel: carModel,
		siteURL:  siteURL,
		log:      logger.ForScraper(carMake, carModel),
	}
}

// ExtractListings extracts every valid listing from a result page document.
// A listing is valid when it carries an identifier and a title; everything
// else is optional.
func (e *Extractor) ExtractListings(doc *goquery.Document) []store.Listing {
	var listings []store.Listing

	doc.Find(listingSelector).Each(func(i int, s *goquery.Selection) {
		listing, err := e.extractListing(s)
		if err != nil {
			e.log.Warn().Err(err).Int("index", i).Msg("Skipping listing")
			return
		}
		if listing != nil {
			listings = append(listings, *listing)
		}
	})

	return listings
}

// extractListing extracts one listing from its container element. A nil
// listing with nil error means the container lacked required fields.
func (e *Extractor) extractListing(s *goquery.Selection) (*store.Listing, error) {
	listingID, ok := s.Attr("data-guid")
	if !ok || listingID == "" {
		listingID, _ = s.Attr("id")
	}
	if listingID == "" {
		return nil, errors.NewExtraction(e.carMake+" "+e.carModel, "listing without identifier", nil)
	}

	now := time.Now()
	listing := &store.Listing{
		ListingID:        listingID,
		Make:             e.carMake,
		Model:            e.carModel,
		ScrapedDate:      now.Format(time.RFC3339),
		ScrapedTimestamp: now.Unix(),
		IsActive:         true,
	}

	// Scalar fields live in data-* attributes on the container.
	if raw, ok := s.Attr("data-price"); ok && raw != "" {
		if price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			listing.Price = &price
		} else {
			qerr := errors.NewDataQuality(e.carMake+" "+e.carModel, "unparsable price "+raw)
			e.log.Warn().Err(qerr).Str("listing_id", listingID).Msg("Storing null price")
		}
	}
	if raw, ok := s.Attr("data-mileage"); ok && raw != "" {
		if mileage, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			listing.Mileage = &mileage
		} else {
			qerr := errors.NewDataQuality(e.carMake+" "+e.carModel, "unparsable mileage "+raw)
			e.log.Warn().Err(qerr).Str("listing_id", listingID).Msg("Storing null mileage")
		}
	}
	listing.FuelType = fuelTypeName(attrOrEmpty(s, "data-fuel-type"))
	listing.FirstRegistration = attrOrEmpty(s, "data-first-registration")
	listing.SellerType = sellerTypeName(attrOrEmpty(s, "data-seller-type"))

	// Title and URL come from the title anchor.
	titleLink := s.Find("a[class*='title']").First()
	if titleLink.Length() > 0 {
		listing.Title = strings.TrimSpace(titleLink.Text())
		if href, ok := titleLink.Attr("href"); ok {
			listing.URL = e.resolveURL(strings.TrimSpace(href))
		}
	}
	if listing.Title == "" {
		return nil, errors.NewExtraction(e.carMake+" "+e.carModel, "listing "+listingID+" without title", nil)
	}

	if powerText := s.Find("span[data-testid='VehicleDetails-speedometer']").First().Text(); powerText != "" {
		listing.Power = formatPower(powerText)
	}

	if transText := s.Find("span[data-testid='VehicleDetails-transmission']").First().Text(); transText != "" {
		listing.Transmission = transmissionName(strings.TrimSpace(transText))
	}

	if location := s.Find("span[class*='SellerInfo']").First().Text(); location != "" {
		listing.Location = strings.TrimSpace(location)
	}

	return listing, nil
}

func (e *Extractor) resolveURL(href string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(e.siteURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func attrOrEmpty(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

// fuelTypeName maps a site fuel code to its name. Unknown codes pass through
// unchanged.
func fuelTypeName(code string) string {
	if name, ok := fuelTypes[code]; ok {
		return name
	}
	return code
}

// sellerTypeName maps a site seller code to its name. Unknown codes pass
// through unchanged.
func sellerTypeName(code string) string {
	if name, ok := sellerTypes[code]; ok {
		return name
	}
	return code
}

// transmissionName normalizes the French transmission label. Text that is
// neither automatic nor manual passes through raw.
func transmissionName(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "automatique"):
		return store.TransmissionAutomatic
	case strings.Contains(lower, "manuelle"):
		return store.TransmissionManual
	default:
		return text
	}
}

// formatPower normalizes a power label like "150 kW (204 CH)" to
// "150 kW (204 PS)". Text that does not match the pattern yields "".
func formatPower(text string) string {
	m := powerPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s kW (%s PS)", m[1], m[2])
}
