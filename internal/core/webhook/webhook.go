package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned for unknown webhook IDs
	ErrNotFound = errors.New("webhook not registered")
	// ErrConflict is returned when a webhook ID is already taken
	ErrConflict = errors.New("webhook already registered")
)

// Handler processes one inbound webhook payload
type Handler func(ctx context.Context, payload []byte) error

type hook struct {
	domain  string
	entryID string
	handler Handler
}

// Registry routes inbound webhook payloads to the integration that
// registered the webhook ID. IDs are long random strings; possession of
// the ID is the only authentication.
type Registry struct {
	mu     sync.RWMutex
	hooks  map[string]*hook
	logger *logrus.Logger
}

// NewRegistry creates a webhook registry
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		hooks:  make(map[string]*hook),
		logger: logger,
	}
}

// GenerateID returns a new random webhook ID
func GenerateID() string {
	buf := make([]byte, 16)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Register binds a webhook ID to a handler
func (r *Registry) Register(webhookID, domain, entryID string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.hooks[webhookID]; exists {
		return fmt.Errorf("%w: %s", ErrConflict, webhookID)
	}
	r.hooks[webhookID] = &hook{domain: domain, entryID: entryID, handler: h}

	r.logger.WithFields(logrus.Fields{
		"domain":   domain,
		"entry_id": entryID,
	}).Info("Webhook registered")
	return nil
}

// Unregister removes a webhook binding
func (r *Registry) Unregister(webhookID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, webhookID)
}

// Handle dispatches a payload to the registered handler. Returns the owning
// domain for logging and metrics.
func (r *Registry) Handle(ctx context.Context, webhookID string, payload []byte) (string, error) {
	r.mu.RLock()
	h, ok := r.hooks[webhookID]
	r.mu.RUnlock()

	if !ok {
		return "", ErrNotFound
	}
	return h.domain, h.handler(ctx, payload)
}

// Count returns the number of registered webhooks
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}
