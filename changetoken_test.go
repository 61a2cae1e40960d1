package nodefs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackChangeToken(t *testing.T) {
	token := NewCallbackChangeToken()
	assert.False(t, token.HasChanged())
	assert.True(t, token.ActiveChangeCallbacks())

	var fired, removed atomic.Int32
	token.RegisterChangeCallback(func() { fired.Add(1) })
	unregister := token.RegisterChangeCallback(func() { removed.Add(1) })
	unregister()

	token.SignalChange()
	token.SignalChange()

	assert.True(t, token.HasChanged())
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, int32(0), removed.Load())
}

func TestPollingChangeToken(t *testing.T) {
	var polls atomic.Int32
	token := NewPollingChangeToken(context.Background(), PollingConfig{
		Interval: 5 * time.Millisecond,
		CheckFunc: func() bool {
			return polls.Add(1) >= 3
		},
	})
	defer token.Stop()

	changed := make(chan struct{})
	token.RegisterChangeCallback(func() { close(changed) })

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("polling token did not fire")
	}
	assert.True(t, token.HasChanged())
}

func TestPollingChangeTokenStop(t *testing.T) {
	token := NewPollingChangeToken(context.Background(), PollingConfig{
		Interval:  time.Millisecond,
		CheckFunc: func() bool { return false },
	})
	token.Stop()
	token.Stop()
	assert.False(t, token.HasChanged())
}

func TestCompositeChangeToken(t *testing.T) {
	a, b := NewCallbackChangeToken(), NewCallbackChangeToken()
	composite := NewCompositeChangeToken(a, b)
	assert.True(t, composite.ActiveChangeCallbacks())
	assert.False(t, composite.HasChanged())

	var fired atomic.Int32
	composite.RegisterChangeCallback(func() { fired.Add(1) })
	b.SignalChange()

	assert.True(t, composite.HasChanged())
	assert.Equal(t, int32(1), fired.Load())

	assert.False(t, NewCompositeChangeToken().ActiveChangeCallbacks())
	assert.False(t, NewCompositeChangeToken(a, CancelledChangeToken{}).ActiveChangeCallbacks())
}

func TestCancelledChangeToken(t *testing.T) {
	var token ChangeToken = CancelledChangeToken{}
	assert.True(t, token.HasChanged())

	called := false
	token.RegisterChangeCallback(func() { called = true })
	assert.True(t, called)
}

func TestOnChange(t *testing.T) {
	tokens := make(chan *CallbackChangeToken, 4)
	produce := func() (ChangeToken, error) {
		tok := NewCallbackChangeToken()
		tokens <- tok
		return tok, nil
	}

	actions := make(chan struct{}, 4)
	cancel := OnChange(produce, func() { actions <- struct{}{} })
	defer cancel()

	for i := 0; i < 2; i++ {
		var tok *CallbackChangeToken
		select {
		case tok = <-tokens:
		case <-time.After(time.Second):
			t.Fatal("no token produced")
		}
		// registration happens right after production
		require.Eventually(t, func() bool {
			tok.set.mu.RLock()
			defer tok.set.mu.RUnlock()
			return len(tok.set.callbacks) > 0
		}, time.Second, time.Millisecond)
		tok.SignalChange()

		select {
		case <-actions:
		case <-time.After(time.Second):
			t.Fatal("change action not run")
		}
	}
}
