package nordpool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-automation/haven-hub/internal/adapters"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02", value, marketTZ)
	require.NoError(t, err)
	return parsed
}

func hourlyPrices(start time.Time, prices ...float64) []PriceRecord {
	records := make([]PriceRecord, 0, len(prices))
	for i, p := range prices {
		records = append(records, PriceRecord{
			Start: start.Add(time.Duration(i) * time.Hour),
			End:   start.Add(time.Duration(i+1) * time.Hour),
			Price: p,
		})
	}
	return records
}

func TestPriceBookCurrentAndStats(t *testing.T) {
	book := newPriceBook()
	start := day(t, "2026-08-31")
	book.SetToday(start, hourlyPrices(start, 40, 55, 30.5))

	current, ok := book.Current(start.Add(90 * time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 55, current.Price, 0.001)

	_, ok = book.Current(start.Add(5 * time.Hour))
	assert.False(t, ok)

	min, max, avg, ok := book.Stats()
	require.True(t, ok)
	assert.InDelta(t, 30.5, min, 0.001)
	assert.InDelta(t, 55, max, 0.001)
	assert.InDelta(t, (40+55+30.5)/3, avg, 0.001)
}

func TestPriceBookRollover(t *testing.T) {
	book := newPriceBook()
	today := day(t, "2026-08-31")
	tomorrow := day(t, "2026-09-01")
	book.SetToday(today, hourlyPrices(today, 40, 55))
	book.SetTomorrow(hourlyPrices(tomorrow, 60, 70))

	// Same day: nothing moves
	assert.False(t, book.Rollover(today.Add(23*time.Hour)))
	assert.True(t, book.HasTomorrow())

	// Past midnight: tomorrow becomes today
	assert.True(t, book.Rollover(tomorrow.Add(10*time.Minute)))
	assert.False(t, book.HasTomorrow())

	current, ok := book.Current(tomorrow.Add(30 * time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 60, current.Price, 0.001)

	// Rollover is idempotent within the day
	assert.False(t, book.Rollover(tomorrow.Add(2*time.Hour)))
}

func TestPriceBookKeepsTableOnFailedFetch(t *testing.T) {
	book := newPriceBook()
	today := day(t, "2026-08-31")
	book.SetToday(today, hourlyPrices(today, 40))

	// A failed fetch never touches the book, so yesterday's data survives
	_, _, _, ok := book.Stats()
	assert.True(t, ok)
	current, ok := book.Current(today.Add(30 * time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 40, current.Price, 0.001)
}

func TestGetDayAheadPricesParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NO1", r.URL.Query().Get("deliveryArea"))
		assert.Equal(t, "EUR", r.URL.Query().Get("currency"))
		w.Write([]byte(`{"multiAreaEntries": [
			{"deliveryStart": "2026-08-31T00:00:00Z", "deliveryEnd": "2026-08-31T01:00:00Z", "entryPerArea": {"NO1": 38.21}},
			{"deliveryStart": "2026-08-31T01:00:00Z", "deliveryEnd": "2026-08-31T02:00:00Z", "entryPerArea": {"NO1": 35.04}}
		]}`))
	}))
	t.Cleanup(server.Close)

	c := NewClient()
	c.baseURL = server.URL

	records, err := c.GetDayAheadPrices(context.Background(), "NO1", "EUR", day(t, "2026-08-31"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.InDelta(t, 38.21, records[0].Price, 0.001)
	assert.Equal(t, time.Hour, records[0].End.Sub(records[0].Start))
}

func TestGetDayAheadPricesNotPublished(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	c := NewClient()
	c.baseURL = server.URL

	_, err := c.GetDayAheadPrices(context.Background(), "NO1", "EUR", day(t, "2026-09-01"))
	assert.ErrorIs(t, err, ErrNoPrices)
}

// A failed publish-time fetch must heal on the next hourly rotation instead
// of leaving tomorrow's table empty until the next day's auction.
func TestRotateRetriesFailedTomorrowFetch(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"multiAreaEntries": [
			{"deliveryStart": "2026-09-01T00:00:00Z", "deliveryEnd": "2026-09-01T01:00:00Z", "entryPerArea": {"NO1": 42.5}}
		]}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient()
	client.baseURL = server.URL

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	book := newPriceBook()
	today := day(t, "2026-08-31")
	book.SetToday(today, hourlyPrices(today, 40, 55))

	adapter := &Adapter{
		BaseAdapter: adapters.NewBaseAdapter("entry-1", types.SourceNordpool, "Nord Pool NO1", "1.0"),
		client:      client,
		book:        book,
		logger:      log.WithField("domain", domain),
		area:        "NO1",
		currency:    "EUR",
	}

	// The auction-time fetch fails
	adapter.fetchTomorrow(context.Background())
	assert.False(t, book.HasTomorrow())

	// A rotation before publish time does not retry
	adapter.rotate(context.Background(), today.Add(10*time.Hour))
	assert.False(t, book.HasTomorrow())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// The first rotation past publish time retries and fills the table
	adapter.rotate(context.Background(), today.Add(14*time.Hour))
	assert.True(t, book.HasTomorrow())
}

func TestBuildSensorAvailability(t *testing.T) {
	book := newPriceBook()
	adapter := &Adapter{
		BaseAdapter: adapters.NewBaseAdapter("entry-1", types.SourceNordpool, "Nord Pool NO1", "1.0"),
		book:        book,
	}

	// Empty book: the sensor exists but reports no price
	sensor := adapter.buildSensor("entry-1", "NO1", "EUR").(*types.HavenSensorEntity)
	assert.Equal(t, "sensor.nordpool_no1_current_price", sensor.GetID())
	assert.False(t, sensor.IsAvailable())
	assert.Nil(t, sensor.NumericValue)

	// Table covering the current hour: price present
	now := time.Now().In(marketTZ)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, marketTZ)
	prices := make([]float64, 24)
	for i := range prices {
		prices[i] = float64(30 + i)
	}
	book.SetToday(start, hourlyPrices(start, prices...))

	sensor = adapter.buildSensor("entry-1", "NO1", "EUR").(*types.HavenSensorEntity)
	assert.True(t, sensor.IsAvailable())
	require.NotNil(t, sensor.NumericValue)
	assert.InDelta(t, float64(30+now.Hour()), *sensor.NumericValue, 0.001)
	assert.Equal(t, "EUR/MWh", sensor.Unit)
}
