package somfy

import (
	"context"

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

var credentialsSchema = []flow.Field{
	{Name: "client_id", Type: "string", Required: true},
	{Name: "client_secret", Type: "password", Required: true},
}

// newAPIClient is swapped in tests to point at a local server
var newAPIClient = func(ctx context.Context, clientID, clientSecret string) *Client {
	return NewClient(NewOAuthConfig(clientID, clientSecret).Client(ctx))
}

func stepUser(ctx context.Context, f *flow.Flow, input map[string]interface{}) (*flow.Result, error) {
	if input == nil {
		return f.ShowForm(flow.KindUser, credentialsSchema, nil), nil
	}

	clientID, _ := input["client_id"].(string)
	clientSecret, _ := input["client_secret"].(string)
	site, errs := validateCredentials(ctx, clientID, clientSecret)
	if errs != nil {
		return f.ShowForm(flow.KindUser, credentialsSchema, errs), nil
	}

	if err := f.SetUniqueID(site.ID); err != nil {
		return nil, err
	}
	title := site.Label
	if title == "" {
		title = "Somfy " + site.ID
	}
	return f.CreateEntry(title, map[string]interface{}{
		"client_id":     clientID,
		"client_secret": clientSecret,
		"site_id":       site.ID,
	}), nil
}

func stepReauth(ctx context.Context, f *flow.Flow, input map[string]interface{}) (*flow.Result, error) {
	if input == nil {
		return f.ShowForm(flow.KindReauth, credentialsSchema, nil), nil
	}

	clientID, _ := input["client_id"].(string)
	clientSecret, _ := input["client_secret"].(string)
	site, errs := validateCredentials(ctx, clientID, clientSecret)
	if errs != nil {
		return f.ShowForm(flow.KindReauth, credentialsSchema, errs), nil
	}

	return f.CreateEntry(site.Label, map[string]interface{}{
		"client_id":     clientID,
		"client_secret": clientSecret,
		"site_id":       site.ID,
	}), nil
}

func validateCredentials(ctx context.Context, clientID, clientSecret string) (*Site, map[string]string) {
	if clientID == "" {
		return nil, map[string]string{"client_id": "required"}
	}
	if clientSecret == "" {
		return nil, map[string]string{"client_secret": "required"}
	}

	sites, err := newAPIClient(ctx, clientID, clientSecret).GetSites(ctx)
	if err != nil {
		if IsAuthError(err) {
			return nil, map[string]string{"base": "invalid_auth"}
		}
		return nil, map[string]string{"base": "cannot_connect"}
	}
	if len(sites) == 0 {
		return nil, map[string]string{"base": "no_sites"}
	}
	return &sites[0], nil
}
