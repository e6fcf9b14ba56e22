package nordpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://dataportal-api.nordpoolgroup.com/api"

// ErrNoPrices is returned when the market has not published prices for the
// requested date yet. Tomorrow's prices appear around 13:00 CET.
var ErrNoPrices = errors.New("no prices published for date")

// PriceRecord is one delivery hour
type PriceRecord struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Price float64   `json:"price"`
}

type dayAheadResponse struct {
	MultiAreaEntries []struct {
		DeliveryStart time.Time          `json:"deliveryStart"`
		DeliveryEnd   time.Time          `json:"deliveryEnd"`
		EntryPerArea  map[string]float64 `json:"entryPerArea"`
	} `json:"multiAreaEntries"`
}

// Client fetches day-ahead spot prices from the Nord Pool data portal
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a price client
func NewClient() *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// GetDayAheadPrices fetches the hourly prices of one delivery area for one
// date. Prices are quoted per MWh in the requested currency.
func (c *Client) GetDayAheadPrices(ctx context.Context, area, currency string, date time.Time) ([]PriceRecord, error) {
	params := url.Values{}
	params.Set("market", "DayAhead")
	params.Set("deliveryArea", area)
	params.Set("currency", currency)
	params.Set("date", date.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/DayAheadPrices?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	// The portal answers 204 while the auction for the date is still open
	if resp.StatusCode == http.StatusNoContent {
		return nil, fmt.Errorf("%w: %s", ErrNoPrices, date.Format("2006-01-02"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price portal returned status %d", resp.StatusCode)
	}

	var day dayAheadResponse
	if err := json.NewDecoder(resp.Body).Decode(&day); err != nil {
		return nil, err
	}
	if len(day.MultiAreaEntries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrices, date.Format("2006-01-02"))
	}

	records := make([]PriceRecord, 0, len(day.MultiAreaEntries))
	for _, entry := range day.MultiAreaEntries {
		price, ok := entry.EntryPerArea[area]
		if !ok {
			continue
		}
		records = append(records, PriceRecord{
			Start: entry.DeliveryStart,
			End:   entry.DeliveryEnd,
			Price: price,
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("area %s missing from price response", area)
	}
	return records, nil
}
