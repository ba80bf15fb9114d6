package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeTransport represents network errors while fetching pages
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeExtraction represents single-listing HTML extraction errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypePersistence represents storage write errors
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeDataQuality represents unparsable field values
	ErrorTypeDataQuality ErrorType = "data_quality"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// ScrapeError represents a scraper-specific error
type ScrapeError struct {
	Type    ErrorType
	Scope   string // usually "make model", or a page URL
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Scope, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Scope, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the error should abort the current model's run.
// Only persistence failures do; everything else is logged and skipped.
func (e *ScrapeError) IsFatal() bool {
	return e.Type == ErrorTypePersistence || e.Type == ErrorTypeConfiguration
}

// New creates a new ScrapeError
func New(errType ErrorType, scope, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		Scope:   scope,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewTransport creates a new transport error
func NewTransport(scope, message string, err error) *ScrapeError {
	return New(ErrorTypeTransport, scope, message, err)
}

// NewExtraction creates a new extraction error
func NewExtraction(scope, message string, err error) *ScrapeError {
	return New(ErrorTypeExtraction, scope, message, err)
}

// NewPersistence creates a new persistence error
func NewPersistence(scope, message string, err error) *ScrapeError {
	return New(ErrorTypePersistence, scope, message, err)
}

// NewDataQuality creates a new data quality error
func NewDataQuality(scope, message string) *ScrapeError {
	return New(ErrorTypeDataQuality, scope, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}
