// Package routes maps request paths to pages.
//
// A Table is built once from a static list of entries and is immutable
// afterwards. Resolution is first-match-wins in registration order: literal
// segments match literally and a :name segment matches any non-empty
// segment. Entries may reference their page eagerly or through a Deferred
// that loads the page implementation on first navigation.
package routes

import (
	"context"
	"fmt"

	"github.com/a-h/templ"

	apperrors "github.com/dailycards/cardshell/internal/errors"
)

// PageID names a page the shell can render.
type PageID string

// ErrNoMatch is matched by errors.Is for every path the table cannot resolve.
var ErrNoMatch = &apperrors.ShellError{
	Type: apperrors.ErrorTypeRouting,
	Code: apperrors.ErrCodeRouteNotFound,
}

// PageRef references the page an entry renders, either directly or through
// a lazily loaded Deferred.
type PageRef struct {
	ID       PageID
	view     View
	deferred *Deferred
}

// Eager references a page whose view is available at startup.
func Eager(id PageID, view View) PageRef {
	return PageRef{ID: id, view: view}
}

// Lazy references a page whose view is fetched by loader on first navigation.
func Lazy(id PageID, loader Loader) PageRef {
	return PageRef{ID: id, deferred: NewDeferred(id, loader)}
}

// IsLazy reports whether the page is loaded on demand.
func (r PageRef) IsLazy() bool {
	return r.deferred != nil
}

// State returns the load state. Eager pages are always ready.
func (r PageRef) State() LoadState {
	if r.deferred == nil {
		return StateReady
	}
	return r.deferred.State()
}

// Deferred returns the future behind a lazy page, or nil for eager pages.
func (r PageRef) Deferred() *Deferred {
	return r.deferred
}

// Resolve returns the page view, awaiting the lazy load if there is one.
func (r PageRef) Resolve(ctx context.Context) (View, error) {
	if r.deferred != nil {
		return r.deferred.Await(ctx)
	}
	if r.view == nil {
		return nil, apperrors.NewInternalError(apperrors.ErrCodePageLoadFailed, "page has no view", nil).
			WithPage(string(r.ID))
	}
	return r.view, nil
}

// Entry is one row of the route table.
type Entry struct {
	// Pattern is a path template such as /editpack/:id.
	Pattern string
	// Page is the page rendered when Pattern matches.
	Page PageRef
	// Name optionally identifies the entry for Href.
	Name string
	// Props forwards the matched parameters to the page as inputs.
	Props bool
}

type compiledEntry struct {
	Entry
	pattern pattern
}

// Table is an immutable, ordered set of route entries.
type Table struct {
	entries []*compiledEntry
	byName  map[string]*compiledEntry
}

// New compiles entries into a Table. Patterns must be unique, names must be
// unique, and every entry needs a page.
func New(entries ...Entry) (*Table, error) {
	t := &Table{
		entries: make([]*compiledEntry, 0, len(entries)),
		byName:  make(map[string]*compiledEntry),
	}
	seen := make(map[string]string)

	for i, e := range entries {
		p, err := compilePattern(e.Pattern)
		if err != nil {
			return nil, invalidRoute(i, err)
		}
		if e.Page.ID == "" {
			return nil, invalidRoute(i, fmt.Errorf("pattern %q has no page", e.Pattern))
		}
		if prev, dup := seen[p.key()]; dup {
			return nil, invalidRoute(i, fmt.Errorf("pattern %q duplicates %q", e.Pattern, prev))
		}
		seen[p.key()] = e.Pattern

		ce := &compiledEntry{Entry: e, pattern: p}
		if e.Name != "" {
			if _, dup := t.byName[e.Name]; dup {
				return nil, invalidRoute(i, fmt.Errorf("route name %q is already registered", e.Name))
			}
			t.byName[e.Name] = ce
		}
		t.entries = append(t.entries, ce)
	}

	return t, nil
}

func invalidRoute(index int, cause error) error {
	err := apperrors.NewValidationError(apperrors.ErrCodeInvalidRoute, fmt.Sprintf("route %d is invalid", index))
	err.Cause = cause
	return err
}

// Match is the result of resolving a path.
type Match struct {
	Entry  Entry
	Path   string
	Params map[string]string
	// Props holds the inputs forwarded to the page; empty unless Entry.Props.
	Props map[string]string
}

// Pending reports whether the matched page is still being loaded.
func (m *Match) Pending() bool {
	return m.Entry.Page.State() == StatePending
}

// View awaits the page and builds its component with the forwarded props.
func (m *Match) View(ctx context.Context) (templ.Component, error) {
	view, err := m.Entry.Page.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return view(m.Props), nil
}

// Resolve returns the first entry whose pattern matches path.
func (t *Table) Resolve(path string) (*Match, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, apperrors.ErrRouteNotFound(path).WithContext("reason", err.Error())
	}

	for _, e := range t.entries {
		params, ok := e.pattern.match(parts)
		if !ok {
			continue
		}

		props := map[string]string{}
		if e.Props {
			for k, v := range params {
				props[k] = v
			}
		}

		return &Match{
			Entry:  e.Entry,
			Path:   path,
			Params: params,
			Props:  props,
		}, nil
	}

	return nil, apperrors.ErrRouteNotFound(path)
}

// Href builds the path of the named route with params substituted.
func (t *Table) Href(name string, params map[string]string) (string, error) {
	e, ok := t.byName[name]
	if !ok {
		return "", apperrors.NewRoutingError(apperrors.ErrCodeRouteNotFound, "no route named "+name)
	}
	path, err := e.pattern.build(params)
	if err != nil {
		return "", apperrors.NewValidationError(apperrors.ErrCodeInvalidRoute, err.Error())
	}
	return path, nil
}

// Lookup returns the entry registered under name.
func (t *Table) Lookup(name string) (Entry, bool) {
	e, ok := t.byName[name]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// Entries returns the entries in registration order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Entry
	}
	return out
}

// Params returns the parameter names declared by the entry's pattern.
func (e Entry) Params() []string {
	p, err := compilePattern(e.Pattern)
	if err != nil {
		return nil
	}
	return p.params()
}
