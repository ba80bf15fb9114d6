// Package publisher pushes detected price change events to downstream
// consumers. Publishing is optional; runs work fine without a publisher.
package publisher

import "github.com/masterries/AutoAnalyse/internal/store"

// Publisher represents a service for publishing price change events
type Publisher interface {
	// PublishChange publishes one price change event
	PublishChange(change store.PriceChange) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}
