package routes

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// gatedLoader blocks every load until release is closed.
type gatedLoader struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{release: make(chan struct{})}
}

func (g *gatedLoader) load(ctx context.Context) (View, error) {
	g.calls.Add(1)
	<-g.release
	if g.err != nil {
		return nil, g.err
	}
	return textView("train"), nil
}

func TestLazyPageIsPendingUntilLoaded(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := newGatedLoader()
	table := surface(t, gate.load)

	m, err := table.Resolve("/train/7")
	require.NoError(t, err)
	assert.Equal(t, StateUnloaded, m.Entry.Page.State())
	assert.False(t, m.Pending())

	type result struct {
		view templ.Component
		err  error
	}
	done := make(chan result, 1)
	go func() {
		view, err := m.View(context.Background())
		done <- result{view: view, err: err}
	}()

	require.Eventually(t, m.Pending, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Fatal("view returned before the lazy load completed")
	default:
	}

	close(gate.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "train", render(t, res.view))
	assert.Equal(t, StateReady, m.Entry.Page.State())
	assert.False(t, m.Pending())
}

func TestLazyLoadSharedAcrossCallers(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := newGatedLoader()
	d := NewDeferred(train, gate.load)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Await(context.Background())
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return gate.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(gate.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), gate.calls.Load())
	assert.Equal(t, 1, d.Loads())

	// Ready futures do not call the loader again.
	_, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), gate.calls.Load())
}

func TestLazyLoadFailureIsRetried(t *testing.T) {
	var calls atomic.Int32
	d := NewDeferred(train, func(ctx context.Context) (View, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("chunk missing")
		}
		return textView("train"), nil
	})

	_, err := d.Await(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk missing")
	assert.Contains(t, err.Error(), "ERR_PAGE_LOAD_FAILED")
	assert.Equal(t, StateFailed, d.State())
	assert.EqualError(t, d.Err(), "chunk missing")

	view, err := d.Await(context.Background())
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, StateReady, d.State())
	assert.NoError(t, d.Err())
}

func TestLazyLoaderPanicAndNilView(t *testing.T) {
	d := NewDeferred(train, func(ctx context.Context) (View, error) {
		panic("bad chunk")
	})
	_, err := d.Await(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad chunk")

	d = NewDeferred(train, func(ctx context.Context) (View, error) {
		return nil, nil
	})
	_, err = d.Await(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, d.State())
}

func TestLazyAwaitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := newGatedLoader()
	d := NewDeferred(train, gate.load)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatePending, d.State(), "abandoned wait does not cancel the shared load")

	close(gate.release)
	require.Eventually(t, func() bool { return d.State() == StateReady }, time.Second, 5*time.Millisecond)
}

func TestLoadStateString(t *testing.T) {
	assert.Equal(t, "unloaded", StateUnloaded.String())
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", LoadState(42).String())
}
