package routes

import (
	"context"
	"sync"

	"github.com/a-h/templ"

	apperrors "github.com/dailycards/cardshell/internal/errors"
)

// ErrStaleNavigation is returned by Navigate when a newer navigation
// started while this one was waiting for its page.
var ErrStaleNavigation = &apperrors.ShellError{
	Type: apperrors.ErrorTypeRouting,
	Code: apperrors.ErrCodeNavigationStale,
}

// Location is a committed navigation: the current path and its page.
type Location struct {
	Path  string
	Match *Match
	View  templ.Component
	Seq   uint64
}

// Navigator tracks the current path and page. Navigations are numbered as
// they start; when one finishes after a newer one has started it is dropped,
// so the last navigation requested wins.
type Navigator struct {
	table *Table

	mu        sync.Mutex
	seq       uint64
	current   *Location
	listeners []func(Location)
}

// NewNavigator creates a navigator over table with no current location.
func NewNavigator(table *Table) *Navigator {
	return &Navigator{table: table}
}

// Table returns the route table the navigator resolves against.
func (n *Navigator) Table() *Table {
	return n.table
}

// OnNavigate registers fn to be called after every committed navigation.
func (n *Navigator) OnNavigate(fn func(Location)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, fn)
}

// Current returns the committed location, or nil before the first navigation.
func (n *Navigator) Current() *Location {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return nil
	}
	loc := *n.current
	return &loc
}

// Navigate resolves path, waits for its page and commits it as the current
// location. Unmatched paths and failed loads leave the current location
// unchanged.
func (n *Navigator) Navigate(ctx context.Context, path string) (*Location, error) {
	match, err := n.table.Resolve(path)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.seq++
	seq := n.seq
	n.mu.Unlock()

	view, err := match.View(ctx)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	if seq != n.seq {
		n.mu.Unlock()
		return nil, apperrors.NewRoutingError(apperrors.ErrCodeNavigationStale, "superseded by a newer navigation").
			WithPath(path)
	}
	loc := Location{Path: path, Match: match, View: view, Seq: seq}
	n.current = &loc
	listeners := make([]func(Location), len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(loc)
	}

	out := loc
	return &out, nil
}
