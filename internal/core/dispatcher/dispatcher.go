package dispatcher

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Dispatcher is an in-process signal bus. Push sources (webhooks, WebSocket
// frames) send on a named signal; entities connect to it without either side
// knowing the other. Delivery is synchronous in registration order.
type Dispatcher struct {
	mu        sync.RWMutex
	targets   map[string]map[int]func(payload interface{})
	nextID    int
	logger    *logrus.Logger
	sentTotal int64
}

// New creates a dispatcher
func New(logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		targets: make(map[string]map[int]func(payload interface{})),
		logger:  logger,
	}
}

// Connect subscribes fn to a signal. The returned func disconnects it.
func (d *Dispatcher) Connect(signal string, fn func(payload interface{})) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.targets[signal] == nil {
		d.targets[signal] = make(map[int]func(payload interface{}))
	}
	id := d.nextID
	d.nextID++
	d.targets[signal][id] = fn

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.targets[signal], id)
		if len(d.targets[signal]) == 0 {
			delete(d.targets, signal)
		}
	}
}

// Send delivers a payload to every target connected to the signal. Sends to
// signals nobody listens on are silently dropped.
func (d *Dispatcher) Send(signal string, payload interface{}) int {
	d.mu.RLock()
	fns := make([]func(payload interface{}), 0, len(d.targets[signal]))
	for _, fn := range d.targets[signal] {
		fns = append(fns, fn)
	}
	d.mu.RUnlock()

	for _, fn := range fns {
		fn(payload)
	}

	if len(fns) > 0 {
		d.logger.WithFields(logrus.Fields{
			"signal":  signal,
			"targets": len(fns),
		}).Debug("Signal dispatched")
	}
	return len(fns)
}

// TargetCount returns the number of targets connected to a signal
func (d *Dispatcher) TargetCount(signal string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.targets[signal])
}
