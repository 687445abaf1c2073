// Package server is the development HTTP server for the client shell. It
// renders the host document for every client-side route, forwards backend
// calls through the dev proxy and pushes reload and store events to the
// browser over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/dailycards/cardshell/internal/app"
	"github.com/dailycards/cardshell/internal/config"
	"github.com/dailycards/cardshell/internal/devproxy"
	apperrors "github.com/dailycards/cardshell/internal/errors"
	"github.com/dailycards/cardshell/internal/logging"
	"github.com/dailycards/cardshell/internal/routes"
	"github.com/dailycards/cardshell/internal/store"
	"github.com/dailycards/cardshell/internal/watcher"
)

// Server serves a mounted App.
type Server struct {
	config  *config.Config
	app     *app.App
	logger  logging.Logger
	errors  *apperrors.ErrorHandler
	router  *Router
	hub     *Hub
	proxy   *devproxy.Proxy
	handler http.Handler

	mutex    sync.Mutex
	cancel   context.CancelFunc
	watcher  *watcher.FileWatcher
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds the server for a. The dev proxy is mounted only when the
// configuration enables it.
func New(cfg *config.Config, a *app.App, logger logging.Logger) (*Server, error) {
	if cfg == nil || a == nil {
		return nil, fmt.Errorf("server.New: config and app are required")
	}
	if logger == nil {
		logger = a.Logger()
	}
	logger = logger.WithComponent("server")

	s := &Server{
		config: cfg,
		app:    a,
		logger: logger,
		errors: apperrors.NewErrorHandler(logger),
	}
	s.hub = NewHub(cfg.Server.AllowedOrigins, s.handleMessage, logger)

	if cfg.ProxyEnabled() {
		proxy, err := devproxy.New(devproxy.FromConfig(cfg.Proxy), logger)
		if err != nil {
			return nil, err
		}
		s.proxy = proxy
	}

	s.handler = Chain(s.routes(),
		RecoverMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg),
	)
	s.router = NewRouter(cfg.Addr(), s.handler)
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	registered := make(map[string]bool)
	handle := func(pattern string, h http.Handler) {
		if registered[pattern] {
			return
		}
		registered[pattern] = true
		mux.Handle(pattern, h)
	}

	handle(HealthPath, http.HandlerFunc(s.handleHealth))
	handle(RoutesPath, http.HandlerFunc(s.handleRoutes))
	handle(StorePath, http.HandlerFunc(s.handleStore))
	handle(app.LiveReloadPath, s.hub)

	if s.proxy != nil {
		for _, rule := range s.proxy.Rules() {
			prefix := strings.TrimSuffix(rule.Prefix, "/")
			if prefix != "" {
				handle(prefix, s.proxy)
			}
			handle(prefix+"/", s.proxy)
		}
	}

	if dir := s.config.Web.StaticDir; dir != "" {
		handle(config.DefaultStaticPrefix,
			http.StripPrefix(strings.TrimSuffix(config.DefaultStaticPrefix, "/"), http.FileServer(http.Dir(dir))))
	}

	handle("/", http.HandlerFunc(s.handleShell))
	return mux
}

// Handler returns the full handler chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the live-reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.router.Addr()
}

// Listening reports whether the listener is bound.
func (s *Server) Listening() bool {
	return s.router.Listening()
}

// Start runs the server until ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mutex.Lock()
	s.cancel = cancel
	s.mutex.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(ctx)
	}()

	if st := s.app.Store(); st != nil {
		ch := st.Watch()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.forwardStore(ctx, st, ch)
		}()
	}

	if s.config.IsDevelopment() && s.config.Development.HotReload {
		if err := s.startWatcher(ctx); err != nil {
			s.stopBackground()
			return err
		}
	}

	s.logger.Info(ctx, "Shell server starting",
		"addr", s.config.Addr(),
		"environment", s.config.Server.Environment,
		"proxy", s.proxy != nil)

	err := s.router.Start(ctx)
	s.stopBackground()
	return err
}

// Shutdown stops the listener and the background workers. It is idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.router.Shutdown(ctx)
	s.stopBackground()
	return err
}

func (s *Server) stopBackground() {
	s.stopOnce.Do(func() {
		s.mutex.Lock()
		cancel, fw := s.cancel, s.watcher
		s.mutex.Unlock()

		if cancel != nil {
			cancel()
		}
		s.hub.Close()
		if fw != nil {
			if err := fw.Stop(); err != nil {
				s.logger.Warn(context.Background(), err, "Failed to stop file watcher")
			}
		}
		s.wg.Wait()
	})
}

func (s *Server) startWatcher(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(s.config.Development.Debounce, s.logger)
	if err != nil {
		return err
	}

	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(watcher.WebAssetFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		files := make([]string, 0, len(events))
		for _, e := range events {
			files = append(files, e.Path)
		}
		s.hub.Broadcast(Message{Type: MessageReload, Files: files})
		return nil
	})

	watched := 0
	for _, path := range s.config.Development.WatchPaths {
		if err := fw.AddRecursive(path); err != nil {
			s.logger.Warn(ctx, err, "Skipping watch path", "path", path)
			continue
		}
		watched++
	}
	if watched == 0 {
		s.logger.Info(ctx, "Live reload has nothing to watch")
	}

	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return err
	}

	s.mutex.Lock()
	s.watcher = fw
	s.mutex.Unlock()
	return nil
}

func (s *Server) forwardStore(ctx context.Context, st *store.Store, ch <-chan store.Event) {
	defer st.UnWatch(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.hub.Broadcast(Message{Type: MessageStore, Store: &ev})
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, c *Client, msg Message) Message {
	switch msg.Type {
	case MessageNavigate:
		nav := c.Navigator(s.app.NewNavigator)
		if nav == nil {
			return Message{Type: MessageError, Path: msg.Path, Error: "no router installed"}
		}
		loc, err := nav.Navigate(ctx, msg.Path)
		if err != nil {
			if errors.Is(err, routes.ErrStaleNavigation) || ctx.Err() != nil {
				return Message{}
			}
			s.errors.Handle(ctx, err)
			return Message{Type: MessageError, Path: msg.Path, Error: err.Error()}
		}
		return Message{
			Type:   MessageNavigated,
			Path:   loc.Path,
			Page:   string(loc.Match.Entry.Page.ID),
			Params: loc.Match.Params,
		}
	default:
		return Message{Type: MessageError, Error: "unknown message type " + msg.Type}
	}
}
