package publisher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterries/AutoAnalyse/internal/store"
)

func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	publisher := NewRedisPublisher(ctx, "localhost:6379", 0, "test_pricechanges", 1, 100)
	defer publisher.Close()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   0,
	})
	defer client.Close()

	// Test if Redis is available
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}
	defer client.Del(ctx, "test_pricechanges:0")

	change := store.PriceChange{
		ListingID:          "abc-123",
		Make:               "bmw",
		Model:              "3er",
		Title:              "BMW 320d",
		PriceOld:           21000,
		PriceNew:           20000,
		PriceDifference:    -1000,
		PriceChangePercent: -4.76,
		ChangeType:         store.ChangeDecrease,
		ChangeDate:         "2026-08-30T10:00:00Z",
		ChangeTimestamp:    1000,
	}

	require.NoError(t, publisher.PublishChange(change))

	// With a single stream the event must land on stream 0
	messages, err := client.XRange(ctx, "test_pricechanges:0", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)

	raw, ok := messages[0].Values["bmw_3er"].(string)
	require.True(t, ok)

	var decoded store.PriceChange
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, "abc-123", decoded.ListingID)
	assert.Equal(t, 21000.0, decoded.PriceOld)
	assert.Equal(t, 20000.0, decoded.PriceNew)
	assert.Equal(t, store.ChangeDecrease, decoded.ChangeType)
}

func TestRedisPublisherTrim(t *testing.T) {
	ctx := context.Background()
	publisher := NewRedisPublisher(ctx, "localhost:6379", 0, "test_trim", 1, 5)
	defer publisher.Close()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 0})
	defer client.Close()

	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}
	defer client.Del(ctx, "test_trim:0")

	for i := 0; i < 20; i++ {
		require.NoError(t, publisher.PublishChange(store.PriceChange{
			ListingID: "x", Make: "bmw", Model: "3er",
			PriceOld: float64(20000 + i), PriceNew: float64(20001 + i),
			ChangeType: store.ChangeIncrease,
		}))
	}

	require.NoError(t, publisher.TrimStreams())

	length, err := client.XLen(ctx, "test_trim:0").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, length, int64(5))
}
