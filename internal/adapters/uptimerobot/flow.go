package uptimerobot

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

var apiKeySchema = []flow.Field{
	{Name: "api_key", Type: "password", Required: true},
}

func stepUser(ctx context.Context, f *flow.Flow, input map[string]interface{}) (*flow.Result, error) {
	if input == nil {
		return f.ShowForm(flow.KindUser, apiKeySchema, nil), nil
	}

	apiKey, _ := input["api_key"].(string)
	account, errs := validateKey(ctx, apiKey)
	if errs != nil {
		return f.ShowForm(flow.KindUser, apiKeySchema, errs), nil
	}

	if err := f.SetUniqueID(account.Email); err != nil {
		return nil, err
	}
	return f.CreateEntry("UptimeRobot ("+account.Email+")", map[string]interface{}{
		"api_key": apiKey,
	}), nil
}

func stepReauth(ctx context.Context, f *flow.Flow, input map[string]interface{}) (*flow.Result, error) {
	if input == nil {
		return f.ShowForm(flow.KindReauth, apiKeySchema, nil), nil
	}

	apiKey, _ := input["api_key"].(string)
	if _, errs := validateKey(ctx, apiKey); errs != nil {
		return f.ShowForm(flow.KindReauth, apiKeySchema, errs), nil
	}

	return f.CreateEntry("UptimeRobot", map[string]interface{}{
		"api_key": apiKey,
	}), nil
}

func validateKey(ctx context.Context, apiKey string) (*Account, map[string]string) {
	if apiKey == "" {
		return nil, map[string]string{"api_key": "required"}
	}

	account, err := newClient(apiKey).GetAccount(ctx)
	if err != nil {
		var invalidKey *ErrInvalidAPIKey
		if errors.As(err, &invalidKey) {
			return nil, map[string]string{"api_key": "invalid_auth"}
		}
		return nil, map[string]string{"base": "cannot_connect"}
	}
	return account, nil
}
