package scraper

import (
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const resultsPerPage = 20

var (
	pageParamPattern  = regexp.MustCompile(`page=(\d+)`)
	pageOfPattern     = regexp.MustCompile(`(?i)(?:Seite|Page)\s+\d+\s+(?:von|of)\s+(\d+)`)
	totalCountPattern = regexp.MustCompile(`(?i)(\d+)\s+(?:Treffer|results)`)
)

// totalPages determines how many result pages exist, from the first page.
// Detection order: maximum page number linked from the pagination nav, a
// "Page X of Y" label, then an estimate from the stated result count at
// ~20 results per page. Estimates and the final answer are capped; when no
// signal is found a single page is assumed.
func totalPages(doc *goquery.Document, limit int) int {
	pages := 1

	doc.Find("nav[class*='pagination'] a, div[class*='pagination'] a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if m := pageParamPattern.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > pages {
				pages = n
			}
		}
	})

	if pages == 1 {
		if m := pageOfPattern.FindStringSubmatch(doc.Text()); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 1 {
				pages = n
			}
		}
	}

	if pages == 1 {
		if m := totalCountPattern.FindStringSubmatch(doc.Text()); m != nil {
			if total, err := strconv.Atoi(m[1]); err == nil && total > 0 {
				pages = (total + resultsPerPage - 1) / resultsPerPage
			}
		}
	}

	if pages > limit {
		pages = limit
	}
	if pages < 1 {
		pages = 1
	}
	return pages
}

// delayController implements response-time-adaptive pacing between page
// requests.
type delayController struct {
	base     time.Duration
	current  time.Duration
	adaptive bool
}

func newDelayController(base time.Duration, adaptive bool) *delayController {
	return &delayController{base: base, current: base, adaptive: adaptive}
}

// start seeds the delay from the first response: the larger of the base
// delay and twice the measured response time.
func (d *delayController) start(responseTime time.Duration) {
	if !d.adaptive {
		return
	}
	d.current = d.base
	if doubled := 2 * responseTime; doubled > d.current {
		d.current = doubled
	}
}

// observe nudges the delay after each later response: up when the server is
// slow, down when it is fast.
func (d *delayController) observe(responseTime time.Duration) {
	if !d.adaptive {
		return
	}
	switch {
	case responseTime > 3*time.Second:
		d.current = time.Duration(float64(d.current) * 1.2)
		if d.current > 10*time.Second {
			d.current = 10 * time.Second
		}
	case responseTime < time.Second:
		d.current = time.Duration(float64(d.current) * 0.9)
		if d.current < d.base {
			d.current = d.base
		}
	}
}

// failure backs off after a failed request.
func (d *delayController) failure() {
	d.current = time.Duration(float64(d.current) * 1.5)
	if d.current > 15*time.Second {
		d.current = 15 * time.Second
	}
}

func (d *delayController) delay() time.Duration {
	return d.current
}
