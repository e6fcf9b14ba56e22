package elmax

import (
	"context"
	"errors"

	"github.com/haven-automation/haven-hub/internal/core/flow"
)

type flowHandler struct{}

func (h *flowHandler) Domain() string { return domain }

func (h *flowHandler) Steps() map[string]flow.StepFunc {
	return map[string]flow.StepFunc{
		flow.KindUser:   stepUser,
		flow.KindReauth: stepReauth,
	}
}

var panelSchema = []flow.Field{
	{Name: "host", Type: "string", Required: true},
	{Name: "pin", Type: "password", Required: true},
}

// newClient is swapped in tests to point at a local server
var newClient = NewClient

func stepUser(ctx context.Context, f *flow.Flow, input map[string]interface{}) (*flow.Result, error) {
	if input == nil {
		return f.ShowForm(flow.KindUser, panelSchema, nil), nil
	}

	host, _ := input["host"].(string)
	pin, _ := input["pin"].(string)
	info, errs := validatePanel(ctx, host, pin)
	if errs != nil {
		return f.ShowForm(flow.KindUser, panelSchema, errs), nil
	}

	if err := f.SetUniqueID(info.Serial); err != nil {
		return nil, err
	}
	title := info.Name
	if title == "" {
		title = "Elmax " + info.Serial
	}
	return f.CreateEntry(title, map[string]interface{}{
		"host": host,
		"pin":  pin,
	}), nil
}

func stepReauth(ctx context.Context, f *flow.Flow, input map[string]interface{}) (*flow.Result, error) {
	if input == nil {
		return f.ShowForm(flow.KindReauth, panelSchema, nil), nil
	}

	host, _ := input["host"].(string)
	pin, _ := input["pin"].(string)
	info, errs := validatePanel(ctx, host, pin)
	if errs != nil {
		return f.ShowForm(flow.KindReauth, panelSchema, errs), nil
	}

	return f.CreateEntry("Elmax "+info.Serial, map[string]interface{}{
		"host": host,
		"pin":  pin,
	}), nil
}

func validatePanel(ctx context.Context, host, pin string) (*PanelInfo, map[string]string) {
	if host == "" {
		return nil, map[string]string{"host": "required"}
	}
	if pin == "" {
		return nil, map[string]string{"pin": "required"}
	}

	info, err := newClient(host, pin).Login(ctx)
	if err != nil {
		var invalidPIN *ErrInvalidPIN
		if errors.As(err, &invalidPIN) {
			return nil, map[string]string{"pin": "invalid_auth"}
		}
		return nil, map[string]string{"base": "cannot_connect"}
	}
	return info, nil
}
