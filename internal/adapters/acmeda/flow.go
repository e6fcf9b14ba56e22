package acmeda

import (
	"context"
	"strings"

	"github.com/haven-automation/haven-hub/internal/core/flow"
)

type flowHandler struct{}

func (h *flowHandler) Domain() string { return domain }

func (h *flowHandler) Steps() map[string]flow.StepFunc {
	return map[string]flow.StepFunc{
		flow.KindUser: stepUser,
	}
}

var hostSchema = []flow.Field{
	{Name: "host", Type: "string", Required: true},
}

// newClient is swapped in tests to point at a local server
var newClient = NewClient

func stepUser(ctx context.Context, f *flow.Flow, input map[string]interface{}) (*flow.Result, error) {
	if input == nil {
		// Seed the form with whatever mDNS finds; manual entry stays
		// available for hubs on other subnets.
		hubs := discoverHubs(ctx)
		if len(hubs) == 0 {
			return f.ShowForm(flow.KindUser, hostSchema, nil), nil
		}
		hosts := make([]string, 0, len(hubs))
		for _, hub := range hubs {
			hosts = append(hosts, hub.Host)
		}
		return f.ShowFormWithPlaceholders(flow.KindUser, hostSchema, nil, map[string]string{
			"discovered": strings.Join(hosts, ", "),
		}), nil
	}

	host, _ := input["host"].(string)
	if host == "" {
		return f.ShowForm(flow.KindUser, hostSchema, map[string]string{"host": "required"}), nil
	}

	info, err := newClient(host).GetHubInfo(ctx)
	if err != nil {
		return f.ShowForm(flow.KindUser, hostSchema, map[string]string{"base": "cannot_connect"}), nil
	}

	if err := f.SetUniqueID(info.ID); err != nil {
		return nil, err
	}

	title := info.Name
	if title == "" {
		title = "Acmeda Hub"
	}
	return f.CreateEntry(title, map[string]interface{}{
		"host": host,
	}), nil
}
