package flow

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	domain string
	steps  map[string]StepFunc
}

func (h *stubHandler) Domain() string            { return h.domain }
func (h *stubHandler) Steps() map[string]StepFunc { return h.steps }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type entryStore struct {
	entries map[string]map[string]interface{}
	unique  map[string]string
	nextID  int
}

func newEntryStore() *entryStore {
	return &entryStore{
		entries: make(map[string]map[string]interface{}),
		unique:  make(map[string]string),
	}
}

func (s *entryStore) wire(m *Manager) {
	m.Wire(
		func(ctx context.Context, domain, title, uniqueID string, data map[string]interface{}) (string, error) {
			s.nextID++
			id := string(rune('a' + s.nextID - 1))
			s.entries[id] = data
			if uniqueID != "" {
				s.unique[domain+"/"+uniqueID] = id
			}
			return id, nil
		},
		func(ctx context.Context, entryID string, data map[string]interface{}) error {
			s.entries[entryID] = data
			return nil
		},
		func(domain, uniqueID string) bool {
			_, ok := s.unique[domain+"/"+uniqueID]
			return ok
		},
	)
}

func newTestManager(t *testing.T, handlers ...Handler) (*Manager, *entryStore) {
	t.Helper()
	m := NewManager(testLogger())
	store := newEntryStore()
	store.wire(m)
	for _, h := range handlers {
		m.RegisterHandler(h)
	}
	return m, store
}

func apiKeyHandler() Handler {
	return &stubHandler{
		domain: "monitorcloud",
		steps: map[string]StepFunc{
			KindUser: func(ctx context.Context, f *Flow, input map[string]interface{}) (*Result, error) {
				if input == nil {
					return f.ShowForm(KindUser, []Field{{Name: "api_key", Type: "string", Required: true}}, nil), nil
				}
				key, _ := input["api_key"].(string)
				if key == "" {
					return f.ShowForm(KindUser, []Field{{Name: "api_key", Type: "string", Required: true}},
						map[string]string{"api_key": "invalid_auth"}), nil
				}
				if err := f.SetUniqueID("account-1"); err != nil {
					return nil, err
				}
				return f.CreateEntry("Monitor Cloud", map[string]interface{}{"api_key": key}), nil
			},
			KindReauth: func(ctx context.Context, f *Flow, input map[string]interface{}) (*Result, error) {
				if input == nil {
					return f.ShowForm(KindReauth, []Field{{Name: "api_key", Type: "string", Required: true}}, nil), nil
				}
				return f.CreateEntry("Monitor Cloud", map[string]interface{}{"api_key": input["api_key"]}), nil
			},
		},
	}
}

func TestFlowFormThenCreateEntry(t *testing.T) {
	m, store := newTestManager(t, apiKeyHandler())

	result, err := m.Init(context.Background(), "monitorcloud", KindUser, "")
	require.NoError(t, err)
	assert.Equal(t, ResultTypeForm, result.Type)
	require.Len(t, result.Schema, 1)
	assert.Equal(t, "api_key", result.Schema[0].Name)

	result, err = m.Configure(context.Background(), result.FlowID, map[string]interface{}{"api_key": "secret"})
	require.NoError(t, err)
	assert.Equal(t, ResultTypeCreateEntry, result.Type)
	assert.NotEmpty(t, result.EntryID)
	assert.Equal(t, "secret", store.entries[result.EntryID]["api_key"])

	// Finished flows may not be advanced again
	_, err = m.Configure(context.Background(), result.FlowID, nil)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestFlowValidationErrorsKeepFormOpen(t *testing.T) {
	m, _ := newTestManager(t, apiKeyHandler())

	result, err := m.Init(context.Background(), "monitorcloud", KindUser, "")
	require.NoError(t, err)

	result, err = m.Configure(context.Background(), result.FlowID, map[string]interface{}{"api_key": ""})
	require.NoError(t, err)
	assert.Equal(t, ResultTypeForm, result.Type)
	assert.Equal(t, "invalid_auth", result.Errors["api_key"])

	// Same flow is still live and accepts a corrected submission
	result, err = m.Configure(context.Background(), result.FlowID, map[string]interface{}{"api_key": "fixed"})
	require.NoError(t, err)
	assert.Equal(t, ResultTypeCreateEntry, result.Type)
}

func TestFlowDuplicateUniqueIDAborts(t *testing.T) {
	m, store := newTestManager(t, apiKeyHandler())

	result, err := m.Init(context.Background(), "monitorcloud", KindUser, "")
	require.NoError(t, err)
	result, err = m.Configure(context.Background(), result.FlowID, map[string]interface{}{"api_key": "one"})
	require.NoError(t, err)
	require.Equal(t, ResultTypeCreateEntry, result.Type)

	result, err = m.Init(context.Background(), "monitorcloud", KindUser, "")
	require.NoError(t, err)
	result, err = m.Configure(context.Background(), result.FlowID, map[string]interface{}{"api_key": "two"})
	require.NoError(t, err)
	assert.Equal(t, ResultTypeAbort, result.Type)
	assert.Equal(t, AbortAlreadyConfigured, result.Reason)
	assert.Len(t, store.entries, 1)
}

func TestFlowReauthUpdatesExistingEntry(t *testing.T) {
	m, store := newTestManager(t, apiKeyHandler())

	result, err := m.Init(context.Background(), "monitorcloud", KindUser, "")
	require.NoError(t, err)
	result, err = m.Configure(context.Background(), result.FlowID, map[string]interface{}{"api_key": "expired"})
	require.NoError(t, err)
	entryID := result.EntryID

	result, err = m.Init(context.Background(), "monitorcloud", KindReauth, entryID)
	require.NoError(t, err)
	assert.Equal(t, ResultTypeForm, result.Type)

	result, err = m.Configure(context.Background(), result.FlowID, map[string]interface{}{"api_key": "renewed"})
	require.NoError(t, err)
	assert.Equal(t, ResultTypeAbort, result.Type)
	assert.Equal(t, AbortReauthSuccessful, result.Reason)
	assert.Equal(t, entryID, result.EntryID)
	assert.Equal(t, "renewed", store.entries[entryID]["api_key"])
	assert.Len(t, store.entries, 1)
}

func TestFlowUnknownDomain(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Init(context.Background(), "nothere", KindUser, "")
	assert.Error(t, err)
}

func TestFlowAbortDiscardsFlow(t *testing.T) {
	m, _ := newTestManager(t, apiKeyHandler())

	result, err := m.Init(context.Background(), "monitorcloud", KindUser, "")
	require.NoError(t, err)
	require.Len(t, m.InProgress(), 1)

	require.NoError(t, m.AbortFlow(result.FlowID))
	assert.Empty(t, m.InProgress())
	assert.ErrorIs(t, m.AbortFlow(result.FlowID), ErrFlowNotFound)
}
