package scraper

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestTotalPagesFromNavLinks(t *testing.T) {
	doc := docFromHTML(t, `<html><body>
		<nav class="listpage-pagination">
			<a href="/lst/bmw/3er?page=2">2</a>
			<a href="/lst/bmw/3er?page=3">3</a>
			<a href="/lst/bmw/3er?page=7">7</a>
		</nav>
		<span>Seite 1 von 99</span>
	</body></html>`)

	// Nav links win over the page label
	assert.Equal(t, 7, totalPages(doc, 50))
}

func TestTotalPagesFromPageLabel(t *testing.T) {
	doc := docFromHTML(t, `<html><body><span>Seite 1 von 12</span></body></html>`)
	assert.Equal(t, 12, totalPages(doc, 50))

	doc = docFromHTML(t, `<html><body><span>Page 1 of 4</span></body></html>`)
	assert.Equal(t, 4, totalPages(doc, 50))
}

func TestTotalPagesFromResultCount(t *testing.T) {
	// 95 results at 20 per page rounds up to 5 pages
	doc := docFromHTML(t, `<html><body><h1>95 Treffer</h1></body></html>`)
	assert.Equal(t, 5, totalPages(doc, 50))

	doc = docFromHTML(t, `<html><body><h1>40 results</h1></body></html>`)
	assert.Equal(t, 2, totalPages(doc, 50))
}

func TestTotalPagesDefaultsToOne(t *testing.T) {
	doc := docFromHTML(t, `<html><body><p>nothing useful</p></body></html>`)
	assert.Equal(t, 1, totalPages(doc, 50))
}

func TestTotalPagesCapped(t *testing.T) {
	doc := docFromHTML(t, `<html><body><span>Seite 1 von 200</span></body></html>`)
	assert.Equal(t, 50, totalPages(doc, 50))

	doc = docFromHTML(t, `<html><body><h1>2000 Treffer</h1></body></html>`)
	assert.Equal(t, 10, totalPages(doc, 10))
}

func TestDelayControllerStart(t *testing.T) {
	d := newDelayController(2*time.Second, true)

	// Fast first response keeps the base delay
	d.start(500 * time.Millisecond)
	assert.Equal(t, 2*time.Second, d.delay())

	// Slow first response doubles the response time
	d.start(3 * time.Second)
	assert.Equal(t, 6*time.Second, d.delay())
}

func TestDelayControllerObserve(t *testing.T) {
	d := newDelayController(2*time.Second, true)
	d.start(time.Second)

	// Slow responses grow the delay by 20%, capped at 10s
	d.observe(4 * time.Second)
	assert.Equal(t, time.Duration(2.4*float64(time.Second)), d.delay())

	for i := 0; i < 20; i++ {
		d.observe(4 * time.Second)
	}
	assert.Equal(t, 10*time.Second, d.delay())

	// Fast responses shrink the delay by 10%, floored at the base
	for i := 0; i < 40; i++ {
		d.observe(200 * time.Millisecond)
	}
	assert.Equal(t, 2*time.Second, d.delay())

	// Responses between 1s and 3s leave the delay alone
	d.observe(2 * time.Second)
	assert.Equal(t, 2*time.Second, d.delay())
}

func TestDelayControllerFailure(t *testing.T) {
	d := newDelayController(2*time.Second, true)

	d.failure()
	assert.Equal(t, 3*time.Second, d.delay())

	for i := 0; i < 10; i++ {
		d.failure()
	}
	assert.Equal(t, 15*time.Second, d.delay())
}

func TestDelayControllerNonAdaptive(t *testing.T) {
	d := newDelayController(2*time.Second, false)

	d.start(10 * time.Second)
	d.observe(10 * time.Second)
	assert.Equal(t, 2*time.Second, d.delay())

	// Failure backoff applies even without adaptive pacing
	d.failure()
	assert.Equal(t, 3*time.Second, d.delay())
}
