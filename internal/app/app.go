// Package app composes the dailycards shell: a UI root with the state store
// and router installed as plugins, mounted into a host document.
//
// An App is built explicitly by Bootstrap and handed to whoever needs it;
// there is no package-level instance. The host document is parsed once at
// mount time and every render fills the mount element with the page that
// matches the requested path.
package app

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"sync"

	"github.com/a-h/templ"

	"github.com/dailycards/cardshell/internal/config"
	apperrors "github.com/dailycards/cardshell/internal/errors"
	"github.com/dailycards/cardshell/internal/logging"
	"github.com/dailycards/cardshell/internal/pages"
	"github.com/dailycards/cardshell/internal/routes"
	"github.com/dailycards/cardshell/internal/store"
)

// LiveReloadPath is where the injected client script connects.
const LiveReloadPath = "/__shell/ws"

//go:embed index.html
var defaultIndex []byte

// DefaultIndex returns a copy of the embedded host document.
func DefaultIndex() []byte {
	return bytes.Clone(defaultIndex)
}

// ErrAlreadyMounted is returned by Mount on an application that is already
// attached to a host document.
var ErrAlreadyMounted = apperrors.NewConfigError(apperrors.ErrCodeAlreadyMounted,
	"application is already mounted")

var errNotMounted = apperrors.NewInternalError("ERR_NOT_MOUNTED", "application is not mounted", nil)

var errNoRouter = apperrors.NewInternalError("ERR_NO_ROUTER", "router plugin is not installed", nil)

// Plugin extends an App before it is mounted.
type Plugin interface {
	// Name returns the unique name of the plugin
	Name() string

	// Install wires the plugin into the application
	Install(a *App) error
}

type options struct {
	logger  logging.Logger
	index   []byte
	store   *store.Store
	table   *routes.Table
	pagesFS fs.FS
}

// Option configures Bootstrap.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithIndex uses src as the host document instead of web.index.
func WithIndex(src []byte) Option {
	return func(o *options) { o.index = src }
}

// WithStore installs s instead of a fresh store.
func WithStore(s *store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithTable routes with t instead of the dailycards surface.
func WithTable(t *routes.Table) Option {
	return func(o *options) { o.table = t }
}

// WithPagesFS reads lazily loaded page fragments from fsys.
func WithPagesFS(fsys fs.FS) Option {
	return func(o *options) { o.pagesFS = fsys }
}

// App is the application instance. It is safe for concurrent use once
// mounted.
type App struct {
	config *config.Config
	logger logging.Logger

	mu        sync.RWMutex
	plugins   []string
	store     *store.Store
	table     *routes.Table
	navigator *routes.Navigator
	doc       *Document
}

// New creates an unmounted application root with no plugins.
func New(cfg *config.Config, logger logging.Logger) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &App{
		config: cfg,
		logger: logger.WithComponent("app"),
	}
}

// Bootstrap creates the application, installs the store and router plugins
// and mounts it into the host document. It fails when the document has no
// element with the configured mount id.
func Bootstrap(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := New(cfg, o.logger)

	st := o.store
	if st == nil {
		st = store.New()
	}
	if err := a.Use(StorePlugin(st)); err != nil {
		return nil, err
	}

	table := o.table
	if table == nil {
		fsys := o.pagesFS
		if fsys == nil && cfg.Pages.Dir != "" {
			fsys = os.DirFS(cfg.Pages.Dir)
		}
		var err error
		if table, err = pages.NewTable(fsys); err != nil {
			return nil, err
		}
	}
	if err := a.Use(RouterPlugin(table)); err != nil {
		return nil, err
	}

	index := o.index
	if index == nil {
		var err error
		if index, err = LoadIndex(cfg.Web.Index); err != nil {
			return nil, err
		}
	}
	if err := a.Mount(index); err != nil {
		return nil, err
	}

	return a, nil
}

// LoadIndex reads the host document at path, or the embedded one when path
// is empty.
func LoadIndex(path string) ([]byte, error) {
	if path == "" {
		return DefaultIndex(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewIOError(apperrors.ErrCodeFileNotFound, "host document not found", err).
				WithPath(path)
		}
		return nil, apperrors.NewIOError("READ_FAILED", "failed to read host document", err).WithPath(path)
	}
	return src, nil
}

// Use installs p. Plugins can only be installed before mounting, and each
// name only once.
func (a *App) Use(p Plugin) error {
	name := p.Name()

	a.mu.Lock()
	if a.doc != nil {
		a.mu.Unlock()
		return apperrors.NewConfigError(apperrors.ErrCodePluginConflict,
			"cannot install plugin after mount").WithContext("plugin", name)
	}
	for _, installed := range a.plugins {
		if installed == name {
			a.mu.Unlock()
			return apperrors.NewConfigError(apperrors.ErrCodePluginConflict,
				"plugin already installed").WithContext("plugin", name)
		}
	}
	// Reserve the name; Install runs unlocked so it may call back into a.
	a.plugins = append(a.plugins, name)
	a.mu.Unlock()

	if err := p.Install(a); err != nil {
		a.mu.Lock()
		a.plugins = remove(a.plugins, name)
		a.mu.Unlock()
		return apperrors.NewInternalError("ERR_PLUGIN_INSTALL_FAILED",
			"failed to install plugin "+name, err)
	}

	a.logger.Debug(context.Background(), "Installed plugin", "plugin", name)
	return nil
}

// Mount attaches the application to src at the configured mount element.
// A second call returns ErrAlreadyMounted and leaves the first tree in place.
func (a *App) Mount(src []byte) error {
	script := ""
	if a.config.Development.HotReload && a.config.IsDevelopment() {
		script = liveReloadScript
	}

	a.mu.Lock()
	if a.doc != nil {
		a.mu.Unlock()
		return ErrAlreadyMounted
	}
	doc, err := ParseDocument(src, a.config.Web.MountID, script)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.doc = doc
	st := a.store
	a.mu.Unlock()

	if st != nil {
		if _, err := st.Patch(SliceApp, map[string]any{"mounted": true}); err != nil {
			a.logger.Warn(context.Background(), err, "Failed to record mount in store")
		}
	}

	a.logger.Info(context.Background(), "Application mounted",
		"mount_id", doc.MountID,
		"live_reload", script != "")
	return nil
}

// Mounted reports whether Mount has succeeded.
func (a *App) Mounted() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.doc != nil
}

// Render writes the host document for path to w and returns the HTTP status
// that goes with it: 200 for a page, 404 with the NotFound view when nothing
// matches, 502 with the Failure view when a lazy page fails to load. The
// document is built in memory, so nothing reaches w on error.
func (a *App) Render(ctx context.Context, w io.Writer, path string) (int, error) {
	a.mu.RLock()
	doc, table := a.doc, a.table
	a.mu.RUnlock()

	if doc == nil {
		return http.StatusInternalServerError, errNotMounted
	}
	if table == nil {
		return http.StatusInternalServerError, errNoRouter
	}

	op := logging.StartOperation(a.logger.With("path", path), "render")

	status := http.StatusOK
	var view templ.Component
	var title string

	match, err := table.Resolve(path)
	if err != nil {
		status = http.StatusNotFound
		view = pages.NotFoundView(path)
		title = pages.Title(pages.NotFound)
		a.logger.Debug(ctx, "No route matches", "path", path)
	} else {
		view, err = match.View(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return http.StatusServiceUnavailable, ctxErr
			}
			status = http.StatusBadGateway
			view = pages.FailureView(path, err)
			title = pages.Title(pages.Failure)
			op.EndWithError(ctx, apperrors.ErrPageLoadFailed(string(match.Entry.Page.ID), err).WithPath(path))
		} else {
			title = pages.Title(match.Entry.Page.ID)
		}
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf, title, func(w io.Writer) error {
		return view.Render(ctx, w)
	}); err != nil {
		return http.StatusInternalServerError, apperrors.NewInternalError("RENDER_FAILED",
			"failed to render page", err).WithPath(path)
	}

	if status == http.StatusOK {
		op.End(ctx)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return status, err
	}
	return status, nil
}

// Navigate moves the application's current location to path.
func (a *App) Navigate(ctx context.Context, path string) (*routes.Location, error) {
	a.mu.RLock()
	nav := a.navigator
	a.mu.RUnlock()

	if nav == nil {
		return nil, errNoRouter
	}
	return nav.Navigate(ctx, path)
}

// Config returns the configuration the application was built with.
func (a *App) Config() *config.Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() logging.Logger {
	return a.logger
}

// Plugins lists installed plugin names in install order.
func (a *App) Plugins() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.plugins...)
}

// Store returns the installed store, or nil.
func (a *App) Store() *store.Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

// Table returns the installed route table, or nil.
func (a *App) Table() *routes.Table {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.table
}

// Navigator returns the installed navigator, or nil.
func (a *App) Navigator() *routes.Navigator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.navigator
}

// Document returns the mounted host document, or nil.
func (a *App) Document() *Document {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.doc
}

func remove(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

const liveReloadScript = `(function () {
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var ws = new WebSocket(proto + "//" + location.host + "` + LiveReloadPath + `");
  ws.onmessage = function (event) {
    try {
      var msg = JSON.parse(event.data);
      if (msg.type === "reload") { location.reload(); }
    } catch (e) {}
  };
})();`
