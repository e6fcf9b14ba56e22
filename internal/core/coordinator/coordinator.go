package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// The three failure kinds every vendor error is reduced to at the adapter
// boundary. Integrations wrap their vendor errors with %w so the entry
// manager and entities can classify them with errors.Is.
var (
	// ErrAuthFailed means credentials were rejected. The entry manager
	// reacts by opening a reauth flow instead of retrying.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotReady means the device or service cannot be reached yet during
	// setup. The entry manager retries with backoff.
	ErrNotReady = errors.New("integration not ready")

	// ErrUpdateFailed is the transient kind: entities go unavailable and the
	// next scheduled refresh tries again.
	ErrUpdateFailed = errors.New("update failed")
)

// UpdateFunc fetches a fresh snapshot from the vendor
type UpdateFunc func(ctx context.Context) (interface{}, error)

// RefreshObserver receives the outcome of every refresh, successful or not
type RefreshObserver interface {
	ObserveRefresh(domain string, success bool)
}

// Options configures a Coordinator
type Options struct {
	Name     string
	Domain   string
	EntryID  string
	Interval time.Duration
	Timeout  time.Duration
	Update   UpdateFunc
	Logger   *logrus.Logger

	// Observer is optional; refresh outcomes are reported to it
	Observer RefreshObserver

	// OnAuthFailed is optional; invoked (once per failure) when a refresh
	// classifies as ErrAuthFailed so the host can open a reauth flow
	OnAuthFailed func(err error)
}

// Coordinator polls a vendor on an interval, caches the latest snapshot and
// fans results out to listeners. Concurrent refresh requests are deduplicated:
// while a fetch is in flight every caller shares its outcome.
type Coordinator struct {
	name         string
	domain       string
	entryID      string
	interval     time.Duration
	timeout      time.Duration
	update       UpdateFunc
	logger       *logrus.Entry
	observer     RefreshObserver
	onAuthFailed func(err error)

	mu                sync.Mutex
	data              interface{}
	lastUpdateSuccess bool
	lastError         error
	hasRefreshed      bool
	listeners         map[int]func()
	nextListenerID    int
	inFlight          chan struct{}

	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a coordinator. It does not fetch; call Refresh (or Start) to
// prime the first snapshot.
func New(opts Options) *Coordinator {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Coordinator{
		name:         opts.Name,
		domain:       opts.Domain,
		entryID:      opts.EntryID,
		interval:     opts.Interval,
		timeout:      opts.Timeout,
		update:       opts.Update,
		observer:     opts.Observer,
		onAuthFailed: opts.OnAuthFailed,
		logger: log.WithFields(logrus.Fields{
			"coordinator": opts.Name,
			"domain":      opts.Domain,
			"entry_id":    opts.EntryID,
		}),
		listeners: make(map[int]func()),
	}
}

// Name returns the coordinator name
func (c *Coordinator) Name() string { return c.name }

// Data returns the last successful snapshot (nil before the first refresh)
func (c *Coordinator) Data() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// LastUpdateSuccess reports whether the most recent refresh succeeded.
// Entities answer IsAvailable from this.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdateSuccess
}

// LastError returns the classified error of the most recent refresh, nil on
// success.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// AddListener registers a callback invoked after every refresh (success or
// failure) and after every pushed update. The returned func removes it.
func (c *Coordinator) AddListener(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Refresh performs a fetch and waits for the result. If another refresh is
// already in flight the call waits for that one instead of issuing a second
// vendor request.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight != nil {
		done := c.inFlight
		c.mu.Unlock()
		select {
		case <-done:
			return c.LastError()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	c.inFlight = done
	c.mu.Unlock()

	err := c.execute(ctx)

	c.mu.Lock()
	c.inFlight = nil
	c.mu.Unlock()
	close(done)

	return err
}

// RequestRefresh schedules a refresh without waiting for it. Requests made
// while a fetch is in flight are absorbed by that fetch.
func (c *Coordinator) RequestRefresh() {
	c.mu.Lock()
	busy := c.inFlight != nil
	c.mu.Unlock()
	if busy {
		return
	}
	go func() {
		if err := c.Refresh(context.Background()); err != nil {
			c.logger.WithError(err).Debug("Requested refresh failed")
		}
	}()
}

// SetUpdatedData injects a snapshot from a push source (WebSocket frame,
// webhook payload) without fetching, marking the coordinator healthy.
func (c *Coordinator) SetUpdatedData(data interface{}) {
	c.mu.Lock()
	c.data = data
	c.lastUpdateSuccess = true
	c.lastError = nil
	c.hasRefreshed = true
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	c.notify(listeners)
}

// Start launches the polling loop. A zero interval means push-only: no loop
// is started and data arrives via SetUpdatedData.
func (c *Coordinator) Start(ctx context.Context) {
	if c.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.logger.Debug("Coordinator polling stopped")
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					c.logger.WithError(err).Warn("Scheduled refresh failed")
				}
			}
		}
	}()
}

// Shutdown stops the polling loop and drops all listeners
func (c *Coordinator) Shutdown() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Lock()
		c.listeners = make(map[int]func())
		c.mu.Unlock()
	})
}

func (c *Coordinator) execute(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	data, err := c.update(fetchCtx)
	elapsed := time.Since(started)

	if err != nil {
		classified := Classify(err)

		c.mu.Lock()
		c.lastUpdateSuccess = false
		c.lastError = classified
		c.hasRefreshed = true
		listeners := c.snapshotListeners()
		c.mu.Unlock()

		if c.observer != nil {
			c.observer.ObserveRefresh(c.domain, false)
		}
		if errors.Is(classified, ErrAuthFailed) && c.onAuthFailed != nil {
			c.onAuthFailed(classified)
		}

		c.logger.WithError(classified).WithField("elapsed", elapsed.String()).Warn("Refresh failed")
		c.notify(listeners)
		return classified
	}

	c.mu.Lock()
	c.data = data
	c.lastUpdateSuccess = true
	c.lastError = nil
	c.hasRefreshed = true
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.ObserveRefresh(c.domain, true)
	}

	c.logger.WithField("elapsed", elapsed.String()).Debug("Refresh succeeded")
	c.notify(listeners)
	return nil
}

func (c *Coordinator) snapshotListeners() []func() {
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func (c *Coordinator) notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}

// Classify reduces a vendor error to one of the three failure kinds. Errors
// already wrapping ErrAuthFailed or ErrNotReady pass through untouched;
// context cancellation and anything else become ErrUpdateFailed.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrNotReady) {
		return err
	}
	if errors.Is(err, ErrUpdateFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
}
