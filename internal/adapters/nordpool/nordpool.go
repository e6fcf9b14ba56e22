package nordpool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/adapters"
	"github.com/haven-automation/haven-hub/internal/core/coordinator"
	"github.com/haven-automation/haven-hub/internal/core/entries"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

const domain = "nordpool"

// Tomorrow's auction results are published shortly after 13:00 CET
const (
	publishSchedule = "CRON_TZ=Europe/Oslo 5 13 * * *"
	rotateSchedule  = "0 * * * *"
	publishHour     = 13
)

// marketTZ is the timezone the market trades in; price days run on it
var marketTZ = mustLoadLocation("Europe/Oslo")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Adapter exposes one delivery area's spot prices as a current-price sensor.
// Prices arrive on the market's schedule, not on a poll interval: a cron job
// fetches the day-ahead table when it publishes and an hourly job rotates
// the current price.
type Adapter struct {
	*adapters.BaseAdapter
	client   *Client
	book     *priceBook
	coord    *coordinator.Coordinator
	logger   *logrus.Entry
	area     string
	currency string
}

// Register wires the nordpool domain into the hub
func Register(s *adapters.Services) {
	s.Flows.RegisterHandler(&flowHandler{})
	s.Entries.Register(domain, func(ctx context.Context, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
		return setupEntry(ctx, s, entry)
	})
}

func setupEntry(ctx context.Context, s *adapters.Services, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
	area := entry.GetString("area")
	currency := entry.GetString("currency")
	client := newClient()
	book := newPriceBook()
	log := s.Logger.WithFields(logrus.Fields{"domain": domain, "entry_id": entry.ID})

	adapter := &Adapter{
		BaseAdapter: adapters.NewBaseAdapter(entry.ID, types.SourceNordpool, "Nord Pool "+area, "1.0"),
		client:      client,
		book:        book,
		logger:      log,
		area:        area,
		currency:    currency,
	}

	// Push-only coordinator; the cron jobs inject snapshots
	coord := coordinator.New(coordinator.Options{
		Name:    "nordpool prices",
		Domain:  domain,
		EntryID: entry.ID,
		Logger:  s.Logger,
		Update: func(ctx context.Context) (interface{}, error) {
			return nil, fmt.Errorf("%w: prices arrive on the market schedule", coordinator.ErrUpdateFailed)
		},
	})
	adapter.coord = coord

	removeListener := coord.AddListener(func() {
		if err := s.Entities.Upsert(context.Background(), adapter.buildSensor(entry.ID, area, currency)); err != nil {
			log.WithError(err).Warn("Failed to upsert price sensor")
		}
	})

	now := time.Now().In(marketTZ)
	today, err := client.GetDayAheadPrices(ctx, area, currency, now)
	if err != nil {
		removeListener()
		return nil, fmt.Errorf("%w: %v", coordinator.ErrNotReady, err)
	}
	book.SetToday(now, today)
	adapter.MarkSync(nil)

	// Tomorrow's table is already out if we start after the auction
	if now.Hour() >= publishHour {
		adapter.fetchTomorrow(ctx)
	}
	coord.SetUpdatedData(book)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(publishSchedule, func() {
		fetchCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		adapter.fetchTomorrow(fetchCtx)
		coord.SetUpdatedData(book)
	}); err != nil {
		removeListener()
		return nil, err
	}
	if _, err := scheduler.AddFunc(rotateSchedule, func() {
		rotateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		adapter.rotate(rotateCtx, time.Now().In(marketTZ))
		coord.SetUpdatedData(book)
	}); err != nil {
		removeListener()
		return nil, err
	}
	scheduler.Start()

	adapter.SetConnected(true)
	s.Adapters.RegisterAdapter(entry.ID, adapter)

	return func(ctx context.Context) error {
		scheduler.Stop()
		coord.Shutdown()
		removeListener()
		adapter.SetConnected(false)
		s.Adapters.UnregisterAdapter(adapter.GetID())
		return nil
	}, nil
}

// fetchTomorrow loads the next day's table, tolerating the not-published-yet
// window. The current table stays valid either way.
func (a *Adapter) fetchTomorrow(ctx context.Context) {
	tomorrow := time.Now().In(marketTZ).AddDate(0, 0, 1)
	records, err := a.client.GetDayAheadPrices(ctx, a.area, a.currency, tomorrow)
	if err != nil {
		a.MarkSync(err)
		if !errors.Is(err, ErrNoPrices) {
			a.logger.WithError(err).Warn("Failed to fetch tomorrow's prices")
		}
		return
	}
	a.MarkSync(nil)
	a.book.SetTomorrow(records)
}

// rotate advances the price day and, past publish time, retries tomorrow's
// table if an earlier fetch failed. A transient auction-time failure heals
// on the next hourly tick instead of leaving tomorrow empty.
func (a *Adapter) rotate(ctx context.Context, now time.Time) {
	a.book.Rollover(now)
	if now.Hour() >= publishHour && !a.book.HasTomorrow() {
		a.fetchTomorrow(ctx)
	}
}

func (a *Adapter) buildSensor(entryID, area, currency string) types.HavenEntity {
	now := time.Now().In(marketTZ)
	current, hasPrice := a.book.Current(now)
	today, tomorrow := a.book.Tables()

	attrs := map[string]interface{}{
		"area":     area,
		"currency": currency,
		"today":    today,
		"tomorrow": tomorrow,
	}
	if min, max, avg, ok := a.book.Stats(); ok {
		attrs["min"] = min
		attrs["max"] = max
		attrs["average"] = avg
	}

	sensor := &types.HavenSensorEntity{
		HavenBaseEntity: &types.HavenBaseEntity{
			ID:           "sensor.nordpool_" + strings.ToLower(area) + "_current_price",
			Type:         types.EntityTypeSensor,
			FriendlyName: "Nord Pool " + area + " Current Price",
			State:        types.StateActive,
			Attributes:   attrs,
			LastUpdated:  time.Now(),
			Available:    hasPrice,
			Metadata: &types.HavenMetadata{
				Source:         types.SourceNordpool,
				SourceEntityID: area + "_" + currency,
				EntryID:        entryID,
			},
		},
		Unit:            currency + "/MWh",
		LastMeasurement: time.Now(),
	}
	if hasPrice {
		price := current.Price
		sensor.NumericValue = &price
	} else {
		sensor.State = types.StateUnknown
	}
	return sensor
}

// Connect is a no-op; the price portal is stateless
func (a *Adapter) Connect(ctx context.Context) error { return nil }

// Disconnect drops the coordinator
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.coord.Shutdown()
	a.SetConnected(false)
	return nil
}

// SyncEntities rebuilds the price sensor from the current tables
func (a *Adapter) SyncEntities(ctx context.Context) ([]types.HavenEntity, error) {
	return nil, nil
}

// ExecuteAction rejects all actions; prices are read-only
func (a *Adapter) ExecuteAction(ctx context.Context, action types.HavenControlAction) (*types.HavenControlResult, error) {
	a.MarkAction(false)
	return adapters.ErrActionUnsupported(action)
}

func (a *Adapter) GetSupportedEntityTypes() []types.HavenEntityType {
	return []types.HavenEntityType{types.EntityTypeSensor}
}

func (a *Adapter) GetSupportedCapabilities() []types.HavenCapability { return nil }

// SupportsRealtime is false; price updates follow the market clock
func (a *Adapter) SupportsRealtime() bool { return false }
