package nordpool

import (
	"context"
	"strings"
	"time"

	"github.com/haven-automation/haven-hub/internal/core/flow"
)

type flowHandler struct{}

func (h *flowHandler) Domain() string { return domain }

func (h *flowHandler) Steps() map[string]flow.StepFunc {
	return map[string]flow.StepFunc{
		flow.KindUser: stepUser,
	}
}

var areaSchema = []flow.Field{
	{Name: "area", Type: "string", Required: true, Default: "NO1"},
	{Name: "currency", Type: "string", Required: true, Default: "EUR"},
}

// newClient is swapped in tests to point at a local server
var newClient = NewClient

func stepUser(ctx context.Context, f *flow.Flow, input map[string]interface{}) (*flow.Result, error) {
	if input == nil {
		return f.ShowForm(flow.KindUser, areaSchema, nil), nil
	}

	area, _ := input["area"].(string)
	currency, _ := input["currency"].(string)
	area = strings.ToUpper(strings.TrimSpace(area))
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if area == "" {
		return f.ShowForm(flow.KindUser, areaSchema, map[string]string{"area": "required"}), nil
	}
	if currency == "" {
		return f.ShowForm(flow.KindUser, areaSchema, map[string]string{"currency": "required"}), nil
	}

	// One fetch proves the area/currency pair is a real market
	if _, err := newClient().GetDayAheadPrices(ctx, area, currency, time.Now().In(marketTZ)); err != nil {
		return f.ShowForm(flow.KindUser, areaSchema, map[string]string{"base": "cannot_connect"}), nil
	}

	if err := f.SetUniqueID(area + "_" + currency); err != nil {
		return nil, err
	}
	return f.CreateEntry("Nord Pool "+area+" ("+currency+")", map[string]interface{}{
		"area":     area,
		"currency": currency,
	}), nil
}
