package nodefs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// callbackSet is the fire-once callback bookkeeping shared by the token
// implementations below.
type callbackSet struct {
	mu        sync.RWMutex
	changed   atomic.Bool
	callbacks []func()
}

func (s *callbackSet) register(callback func()) (unregister func()) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, callback)
	index := len(s.callbacks) - 1
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// nil out rather than remove, indices stay stable
		if index < len(s.callbacks) {
			s.callbacks[index] = nil
		}
	}
}

func (s *callbackSet) fire() {
	if s.changed.Swap(true) {
		return
	}

	s.mu.RLock()
	callbacks := make([]func(), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb()
		}
	}
}

// ============================================================================
// Callback ChangeToken
// ============================================================================

// CallbackChangeToken is raised by drivers with native change events
// (local via fsnotify, memory on its own writes).
type CallbackChangeToken struct {
	set callbackSet
}

// NewCallbackChangeToken creates a new ChangeToken that supports active callbacks.
func NewCallbackChangeToken() *CallbackChangeToken {
	return &CallbackChangeToken{}
}

func (t *CallbackChangeToken) HasChanged() bool {
	return t.set.changed.Load()
}

func (t *CallbackChangeToken) ActiveChangeCallbacks() bool {
	return true
}

func (t *CallbackChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	return t.set.register(callback)
}

// SignalChange marks the token as changed and invokes all callbacks once.
func (t *CallbackChangeToken) SignalChange() {
	t.set.fire()
}

// ============================================================================
// Polling ChangeToken
// ============================================================================

// PollingChangeToken is used by backends without native events. It calls
// its check function on an interval until a change is seen, the context
// ends or Stop is called.
type PollingChangeToken struct {
	set    callbackSet
	cancel context.CancelFunc
}

// PollingConfig configures a polling change token.
type PollingConfig struct {
	// Interval between polls (default: 5 seconds)
	Interval time.Duration
	// CheckFunc returns true if a change is detected
	CheckFunc func() bool
}

// NewPollingChangeToken starts polling in a goroutine. Cancel ctx or call
// Stop to release it.
func NewPollingChangeToken(ctx context.Context, config PollingConfig) *PollingChangeToken {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &PollingChangeToken{cancel: cancel}
	go t.poll(ctx, config)
	return t
}

func (t *PollingChangeToken) poll(ctx context.Context, config PollingConfig) {
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if config.CheckFunc != nil && config.CheckFunc() {
				t.set.fire()
				return
			}
		}
	}
}

func (t *PollingChangeToken) HasChanged() bool {
	return t.set.changed.Load()
}

func (t *PollingChangeToken) ActiveChangeCallbacks() bool {
	return true
}

func (t *PollingChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	return t.set.register(callback)
}

// Stop stops the polling goroutine. It is safe to call more than once.
func (t *PollingChangeToken) Stop() {
	t.cancel()
}

// ============================================================================
// Composite ChangeToken
// ============================================================================

// CompositeChangeToken has changed as soon as any of its tokens has.
type CompositeChangeToken struct {
	tokens []ChangeToken
}

// NewCompositeChangeToken creates a token that combines multiple tokens.
func NewCompositeChangeToken(tokens ...ChangeToken) *CompositeChangeToken {
	return &CompositeChangeToken{tokens: tokens}
}

func (c *CompositeChangeToken) HasChanged() bool {
	for _, t := range c.tokens {
		if t.HasChanged() {
			return true
		}
	}
	return false
}

func (c *CompositeChangeToken) ActiveChangeCallbacks() bool {
	for _, t := range c.tokens {
		if !t.ActiveChangeCallbacks() {
			return false
		}
	}
	return len(c.tokens) > 0
}

func (c *CompositeChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	unregisters := make([]func(), 0, len(c.tokens))
	for _, t := range c.tokens {
		unregisters = append(unregisters, t.RegisterChangeCallback(callback))
	}
	return func() {
		for _, u := range unregisters {
			u()
		}
	}
}

// ============================================================================
// Static ChangeToken
// ============================================================================

// CancelledChangeToken is already changed. Backends that cannot watch
// return it so callers fall back to re-reading.
type CancelledChangeToken struct{}

func (CancelledChangeToken) HasChanged() bool {
	return true
}

func (CancelledChangeToken) ActiveChangeCallbacks() bool {
	return false
}

func (CancelledChangeToken) RegisterChangeCallback(callback func()) func() {
	callback()
	return func() {}
}

// ============================================================================
// OnChange
// ============================================================================

// OnChange keeps watching: each time a token fires, changeAction runs and
// a fresh token is produced. It stops when the producer fails, when a
// token cannot raise callbacks, or when cancel is called.
//
//	cancel := nodefs.OnChange(
//	    func() (nodefs.ChangeToken, error) { return node.Watch(ctx, "**/*.json") },
//	    func() { reload() },
//	)
//	defer cancel()
func OnChange(tokenProducer func() (ChangeToken, error), changeAction func()) (cancel func()) {
	ctx, cancelFunc := context.WithCancel(context.Background())

	go func() {
		for {
			token, err := tokenProducer()
			if err != nil || !token.ActiveChangeCallbacks() {
				return
			}

			done := make(chan struct{})
			var once sync.Once
			unregister := token.RegisterChangeCallback(func() {
				once.Do(func() { close(done) })
			})

			select {
			case <-ctx.Done():
				unregister()
				return
			case <-done:
				unregister()
				changeAction()
			}
		}
	}()

	return cancelFunc
}
