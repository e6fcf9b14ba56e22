package nordpool

import (
	"math"
	"sync"
	"time"
)

// priceBook holds the known price tables for one area. A fetch failure
// leaves the last good tables in place; prices only go stale when the
// clock moves past the hours they cover.
type priceBook struct {
	mu       sync.Mutex
	today    []PriceRecord
	tomorrow []PriceRecord
	day      time.Time
}

func newPriceBook() *priceBook {
	return &priceBook{}
}

func (b *priceBook) SetToday(day time.Time, records []PriceRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.day = truncateToDay(day)
	b.today = records
}

func (b *priceBook) SetTomorrow(records []PriceRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tomorrow = records
}

// Rollover shifts tomorrow's table into today once the date advances.
// Returns true when a shift happened so the caller can schedule a fetch
// for the new tomorrow.
func (b *priceBook) Rollover(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	today := truncateToDay(now)
	if !b.day.IsZero() && !today.After(b.day) {
		return false
	}
	b.day = today
	b.today = b.tomorrow
	b.tomorrow = nil
	return true
}

// Current returns the price record covering the given instant
func (b *priceBook) Current(now time.Time) (PriceRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.today {
		if !now.Before(r.Start) && now.Before(r.End) {
			return r, true
		}
	}
	// The book may not have rolled over yet right after midnight
	for _, r := range b.tomorrow {
		if !now.Before(r.Start) && now.Before(r.End) {
			return r, true
		}
	}
	return PriceRecord{}, false
}

// Stats returns min, max and average over today's table
func (b *priceBook) Stats() (min, max, avg float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.today) == 0 {
		return 0, 0, 0, false
	}
	min = math.MaxFloat64
	max = -math.MaxFloat64
	var sum float64
	for _, r := range b.today {
		if r.Price < min {
			min = r.Price
		}
		if r.Price > max {
			max = r.Price
		}
		sum += r.Price
	}
	return min, max, sum / float64(len(b.today)), true
}

// Tables returns copies of both price tables
func (b *priceBook) Tables() (today, tomorrow []PriceRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	today = append([]PriceRecord(nil), b.today...)
	tomorrow = append([]PriceRecord(nil), b.tomorrow...)
	return today, tomorrow
}

// HasTomorrow reports whether tomorrow's table is already loaded
func (b *priceBook) HasTomorrow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tomorrow) > 0
}

func truncateToDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
