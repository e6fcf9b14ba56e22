package webhook

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewRegistry(log)
}

func TestRegisterAndHandle(t *testing.T) {
	r := newTestRegistry()

	var got []byte
	err := r.Register("abc123", "plaato", "entry-1", func(ctx context.Context, payload []byte) error {
		got = payload
		return nil
	})
	require.NoError(t, err)

	domain, err := r.Handle(context.Background(), "abc123", []byte(`{"temp":20.5}`))
	require.NoError(t, err)
	assert.Equal(t, "plaato", domain)
	assert.JSONEq(t, `{"temp":20.5}`, string(got))
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := newTestRegistry()
	noop := func(ctx context.Context, payload []byte) error { return nil }

	require.NoError(t, r.Register("hook-1", "plaato", "e1", noop))
	assert.ErrorIs(t, r.Register("hook-1", "plaato", "e2", noop), ErrConflict)
}

func TestUnknownWebhook(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Handle(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register("hook-1", "plaato", "e1",
		func(ctx context.Context, payload []byte) error { return nil }))
	assert.Equal(t, 1, r.Count())

	r.Unregister("hook-1")
	assert.Equal(t, 0, r.Count())
	_, err := r.Handle(context.Background(), "hook-1", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateIDIsUnique(t *testing.T) {
	a := GenerateID()
	b := GenerateID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
