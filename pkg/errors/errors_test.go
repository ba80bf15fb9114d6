package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrapeError(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewTransport("bmw 3er", "first page failed", cause)

	assert.Equal(t, ErrorTypeTransport, err.Type)
	assert.Contains(t, err.Error(), "transport")
	assert.Contains(t, err.Error(), "bmw 3er")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, stderrors.Is(err, cause))
	assert.False(t, err.Time.IsZero())

	// Without a cause the message stands alone
	bare := NewDataQuality("bmw 3er", "unparsable price")
	assert.NotContains(t, bare.Error(), "<nil>")
	assert.Nil(t, bare.Unwrap())
}

func TestIsFatal(t *testing.T) {
	assert.True(t, NewPersistence("db", "write failed", nil).IsFatal())
	assert.True(t, NewConfiguration("bad config", nil).IsFatal())
	assert.False(t, NewTransport("bmw 3er", "timeout", nil).IsFatal())
	assert.False(t, NewExtraction("bmw 3er", "no title", nil).IsFatal())
	assert.False(t, NewDataQuality("bmw 3er", "bad mileage").IsFatal())
}
