package routes

import (
	"context"
	"fmt"
	"sync"

	"github.com/a-h/templ"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/dailycards/cardshell/internal/errors"
)

// View builds the component rendered for a resolved route. It receives the
// forwarded props, which are empty unless the entry sets Props.
type View func(props map[string]string) templ.Component

// Loader fetches a page implementation on first navigation.
type Loader func(ctx context.Context) (View, error)

// LoadState is the lifecycle of a lazily resolved page.
type LoadState int

const (
	StateUnloaded LoadState = iota
	StatePending
	StateReady
	StateFailed
)

// String returns the string representation of the LoadState
func (s LoadState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Deferred is a future for a lazily loaded page. The loader runs at most
// once at a time; concurrent callers share the in-flight load. A successful
// load is kept for the lifetime of the Deferred, a failed one is retried on
// the next Await.
type Deferred struct {
	id    PageID
	load  Loader
	group singleflight.Group

	mu    sync.Mutex
	state LoadState
	view  View
	err   error
	loads int
}

// NewDeferred wraps loader in a future for page id.
func NewDeferred(id PageID, loader Loader) *Deferred {
	return &Deferred{id: id, load: loader}
}

// State returns the current load state.
func (d *Deferred) State() LoadState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Err returns the error of the last failed load, if the future is failed.
func (d *Deferred) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateFailed {
		return nil
	}
	return d.err
}

// Loads returns how many times the loader completed successfully.
func (d *Deferred) Loads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loads
}

// Await returns the page view, starting the load if needed and blocking
// until it completes or ctx is done. Cancelling ctx abandons the wait but not
// the shared load, which other callers may still be waiting on.
func (d *Deferred) Await(ctx context.Context) (View, error) {
	d.mu.Lock()
	if d.state == StateReady {
		view := d.view
		d.mu.Unlock()
		return view, nil
	}
	if err := ctx.Err(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.state = StatePending
	d.mu.Unlock()

	loadCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(string(d.id), func() (interface{}, error) {
		d.mu.Lock()
		if d.state == StateReady {
			view := d.view
			d.mu.Unlock()
			return view, nil
		}
		d.mu.Unlock()
		return d.run(loadCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, apperrors.ErrPageLoadFailed(string(d.id), res.Err)
		}
		return res.Val.(View), nil
	}
}

func (d *Deferred) run(ctx context.Context) (view View, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panicked: %v", r)
		}

		d.mu.Lock()
		defer d.mu.Unlock()
		if err != nil {
			d.state = StateFailed
			d.err = err
			return
		}
		d.state = StateReady
		d.view = view
		d.err = nil
		d.loads++
	}()

	view, err = d.load(ctx)
	if err == nil && view == nil {
		err = fmt.Errorf("loader returned no view")
	}
	return view, err
}
