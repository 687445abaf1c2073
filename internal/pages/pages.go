// Package pages defines the pages of the dailycards shell and the route
// surface that maps paths onto them.
//
// Pages are selected by PageID through an explicit lookup table. Page bodies
// are placeholders the client application hydrates; what the shell owns is
// the page identity, its title and the inputs forwarded by the router.
package pages

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"unicode"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dailycards/cardshell/internal/routes"
)

const (
	Home      routes.PageID = "Home"
	EditPack  routes.PageID = "EditPack"
	TrainPack routes.PageID = "TrainPack"
	Stats     routes.PageID = "Stats"

	// NotFound and Failure are shell views, not routable pages.
	NotFound routes.PageID = "NotFound"
	Failure  routes.PageID = "Failure"
)

// TrainRouteName is the name of the lazily loaded training route.
const TrainRouteName = "Train"

// TrainFragment is the file the TrainPack loader reads.
const TrainFragment = "train.html"

//go:embed fragments/*.html
var fragments embed.FS

// DefaultFS returns the embedded page fragments.
func DefaultFS() fs.FS {
	sub, err := fs.Sub(fragments, "fragments")
	if err != nil {
		panic(err)
	}
	return sub
}

var constructors = map[routes.PageID]routes.View{
	Home:     homeView,
	EditPack: editPackView,
	Stats:    statsView,
}

// Lookup returns the eager view for id. Lazily loaded pages are not listed.
func Lookup(id routes.PageID) (routes.View, bool) {
	v, ok := constructors[id]
	return v, ok
}

// Title turns a page id such as EditPack into "Edit Pack".
func Title(id routes.PageID) string {
	var b strings.Builder
	for i, r := range string(id) {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	// Casers keep state, so each call gets its own.
	return cases.Title(language.English).String(b.String())
}

// Slug turns a page id such as EditPack into "edit-pack".
func Slug(id routes.PageID) string {
	return strings.ReplaceAll(strings.ToLower(Title(id)), " ", "-")
}

// DefaultRoutes returns the dailycards route surface. The TrainPack page is
// read from fsys on first navigation.
func DefaultRoutes(fsys fs.FS) []routes.Entry {
	return []routes.Entry{
		{Pattern: "/", Page: routes.Eager(Home, homeView)},
		{Pattern: "/editpack/:id", Page: routes.Eager(EditPack, editPackView), Props: true},
		{Pattern: "/train/:id", Name: TrainRouteName, Page: routes.Lazy(TrainPack, TrainLoader(fsys))},
		{Pattern: "/stats", Page: routes.Eager(Stats, statsView)},
	}
}

// NewTable builds the route table for the dailycards surface.
func NewTable(fsys fs.FS) (*routes.Table, error) {
	if fsys == nil {
		fsys = DefaultFS()
	}
	return routes.New(DefaultRoutes(fsys)...)
}

// TrainLoader returns a loader that reads the TrainPack fragment from fsys.
func TrainLoader(fsys fs.FS) routes.Loader {
	return func(ctx context.Context) (routes.View, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(fsys, TrainFragment)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", TrainFragment, err)
		}
		body := strings.TrimSpace(string(data))
		if body == "" {
			return nil, fmt.Errorf("%s is empty", TrainFragment)
		}
		return func(props map[string]string) templ.Component {
			return section(TrainPack, props, body)
		}, nil
	}
}

func homeView(props map[string]string) templ.Component {
	return section(Home, props,
		`<nav class="page-nav"><a href="/stats">Statistics</a></nav><ul class="pack-list"></ul>`)
}

func editPackView(props map[string]string) templ.Component {
	return section(EditPack, props,
		`<form class="card-form"><input name="question"><input name="answer"><button type="submit">Add card</button></form><ul class="card-list"></ul>`)
}

func statsView(props map[string]string) templ.Component {
	return section(Stats, props,
		`<dl class="stats"><dt>Rating</dt><dd data-stat="rating"></dd><dt>Packs created</dt><dd data-stat="packs_created"></dd><dt>Packs mastered</dt><dd data-stat="packs_mastered"></dd></dl>`)
}

// NotFoundView is rendered for paths no route matches.
func NotFoundView(path string) templ.Component {
	return section(NotFound, nil,
		fmt.Sprintf(`<p>No page at <code>%s</code>.</p><a href="/">Back to packs</a>`, templ.EscapeString(path)))
}

// FailureView is rendered when a page could not be loaded.
func FailureView(path string, err error) templ.Component {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return section(Failure, nil,
		fmt.Sprintf(`<p>The page for <code>%s</code> failed to load.</p><pre>%s</pre>`,
			templ.EscapeString(path), templ.EscapeString(msg)))
}

// section wraps a page body in the element the client application hydrates.
// Forwarded props become data-prop-* attributes.
func section(id routes.PageID, props map[string]string, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<section class="page" data-page="%s"`, templ.EscapeString(Slug(id)))

		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, ` data-prop-%s="%s"`, attrName(k), templ.EscapeString(props[k]))
		}

		fmt.Fprintf(&b, `><h1>%s</h1>%s</section>`, templ.EscapeString(Title(id)), body)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func attrName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
