package plaato

import (
	"context"

	"github.com/haven-automation/haven-hub/internal/core/flow"
	"github.com/haven-automation/haven-hub/internal/core/webhook"
)

type flowHandler struct {
	externalURL string
}

func (h *flowHandler) Domain() string { return domain }

func (h *flowHandler) Steps() map[string]flow.StepFunc {
	return map[string]flow.StepFunc{
		flow.KindUser: h.stepUser,
	}
}

var deviceSchema = []flow.Field{
	{Name: "name", Type: "string", Required: true},
	{Name: "device_type", Type: "string", Required: true, Default: "keg"},
}

func (h *flowHandler) stepUser(ctx context.Context, f *flow.Flow, input map[string]interface{}) (*flow.Result, error) {
	if input == nil {
		return f.ShowForm(flow.KindUser, deviceSchema, nil), nil
	}

	name, _ := input["name"].(string)
	if name == "" {
		return f.ShowForm(flow.KindUser, deviceSchema, map[string]string{"name": "required"}), nil
	}
	deviceType, _ := input["device_type"].(string)
	if deviceType == "" {
		deviceType = "keg"
	}

	webhookID := webhook.GenerateID()
	if err := f.SetUniqueID(webhookID); err != nil {
		return nil, err
	}

	result := f.CreateEntry(name, map[string]interface{}{
		"name":        name,
		"device_type": deviceType,
		"webhook_id":  webhookID,
	})
	// The user pastes this URL into the Plaato cloud configuration
	result.Placeholders = map[string]string{
		"callback_url": h.externalURL + "/api/v1/webhook/" + webhookID,
	}
	return result, nil
}
