package server

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dailycards/cardshell/internal/app"
	"github.com/dailycards/cardshell/internal/config"
	"github.com/dailycards/cardshell/internal/pages"
	"github.com/dailycards/cardshell/internal/routes"
	"github.com/dailycards/cardshell/internal/store"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Development.HotReload = false
	cfg.Web.StaticDir = ""
	return cfg
}

func newServer(t *testing.T, cfg *config.Config, opts ...app.Option) *Server {
	t.Helper()
	a, err := app.Bootstrap(cfg, opts...)
	require.NoError(t, err)
	s, err := New(cfg, a, nil)
	require.NoError(t, err)
	return s
}

func serve(s *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresConfigAndApp(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}

func TestShellRoutes(t *testing.T) {
	s := newServer(t, testConfig())

	tests := []struct {
		name     string
		method   string
		path     string
		status   int
		contains string
	}{
		{"home", http.MethodGet, "/", http.StatusOK, `data-page="home"`},
		{"edit pack", http.MethodGet, "/editpack/42", http.StatusOK, `data-prop-id="42"`},
		{"train pack", http.MethodGet, "/train/7", http.StatusOK, `data-train-root`},
		{"stats", http.MethodGet, "/stats", http.StatusOK, `data-page="stats"`},
		{"unknown", http.MethodGet, "/nowhere", http.StatusNotFound, "/nowhere"},
		{"post", http.MethodPost, "/", http.StatusMethodNotAllowed, "Method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, tt.method, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestShellEncodedSegments(t *testing.T) {
	s := newServer(t, testConfig())

	tests := []struct {
		name   string
		path   string
		status int
		id     string
	}{
		{"escaped percent", "/editpack/100%25", http.StatusOK, "100%"},
		{"escaped slash", "/editpack/a%2Fb", http.StatusOK, "a/b"},
		{"double escaped slash", "/editpack/a%252Fb", http.StatusOK, "a%2Fb"},
		{"literal slash", "/editpack/a/b", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.status, rec.Code)
			if tt.id != "" {
				assert.Contains(t, rec.Body.String(), `data-prop-id="`+tt.id+`"`)
			}
		})
	}
}

func TestShellMountsIntoApp(t *testing.T) {
	s := newServer(t, testConfig())

	rec := serve(s, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	mount := strings.Index(body, `id="app"`)
	page := strings.Index(body, `data-page="stats"`)
	require.GreaterOrEqual(t, mount, 0)
	assert.Greater(t, page, mount)
}

func TestShellHead(t *testing.T) {
	s := newServer(t, testConfig())

	rec := serve(s, http.MethodHead, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestShellLazyFailure(t *testing.T) {
	s := newServer(t, testConfig(), app.WithPagesFS(fstest.MapFS{}))

	rec := serve(s, http.MethodGet, "/train/1", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-page="failure"`)
}

func TestHealth(t *testing.T) {
	s := newServer(t, testConfig())

	rec := serve(s, http.MethodGet, HealthPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Mounted)
	assert.NotEmpty(t, body.Version)
	assert.Zero(t, body.Clients)
}

func TestRoutesEndpoint(t *testing.T) {
	s := newServer(t, testConfig())

	rec := serve(s, http.MethodGet, RoutesPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []RouteInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 4)

	assert.Equal(t, "/", got[0].Pattern)
	assert.Equal(t, string(pages.Home), got[0].Page)

	assert.Equal(t, "/editpack/:id", got[1].Pattern)
	assert.True(t, got[1].Props)
	assert.Equal(t, []string{"id"}, got[1].Params)

	assert.Equal(t, "/train/:id", got[2].Pattern)
	assert.Equal(t, pages.TrainRouteName, got[2].Name)
	assert.True(t, got[2].Lazy)
	assert.Equal(t, "unloaded", got[2].State)

	assert.Equal(t, "/stats", got[3].Pattern)
	assert.False(t, got[3].Lazy)
}

func TestStoreEndpoint(t *testing.T) {
	s := newServer(t, testConfig())

	rec := serve(s, http.MethodGet, StorePath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap store.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Contains(t, snap.Slices, app.SliceApp)
	assert.Contains(t, snap.Slices, app.SliceRoute)
	assert.Equal(t, true, snap.Slices[app.SliceApp]["mounted"])
}

func TestRequestID(t *testing.T) {
	s := newServer(t, testConfig())

	id := uuid.NewString()
	rec := serve(s, http.MethodGet, HealthPath, http.Header{RequestIDHeader: {id}})
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	rec = serve(s, http.MethodGet, HealthPath, http.Header{RequestIDHeader: {"not-a-uuid"}})
	got := rec.Header().Get(RequestIDHeader)
	assert.NotEqual(t, "not-a-uuid", got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestCORS(t *testing.T) {
	t.Run("listed origin is echoed", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.AllowedOrigins = []string{"http://cards.test"}
		s := newServer(t, cfg)

		rec := serve(s, http.MethodGet, HealthPath, http.Header{"Origin": {"http://cards.test"}})
		assert.Equal(t, "http://cards.test", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("development allows any origin", func(t *testing.T) {
		s := newServer(t, testConfig())

		rec := serve(s, http.MethodGet, HealthPath, http.Header{"Origin": {"http://elsewhere.test"}})
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("production rejects unlisted origin", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.Environment = config.EnvProduction
		s := newServer(t, cfg)

		rec := serve(s, http.MethodGet, HealthPath, http.Header{"Origin": {"http://elsewhere.test"}})
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		s := newServer(t, testConfig())

		rec := serve(s, http.MethodOptions, "/api/packs", http.Header{
			"Origin":                        {"http://elsewhere.test"},
			"Access-Control-Request-Method": {"POST"},
		})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	})
}

func TestProxyMount(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(backend.Close)

	rules := []config.ProxyRule{{Prefix: "/api", Target: backend.URL, ChangeOrigin: true}}

	t.Run("forwards to backend", func(t *testing.T) {
		cfg := testConfig()
		cfg.Proxy = rules
		s := newServer(t, cfg)

		for _, path := range []string{"/api", "/api/packs/3"} {
			rec := serve(s, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusOK, rec.Code, path)
			assert.JSONEq(t, `{"path":"`+path+`"}`, rec.Body.String())
		}

		rec := serve(s, http.MethodGet, "/apiary", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `data-page="`+pages.Slug(pages.NotFound)+`"`)
	})

	t.Run("disabled by no_proxy", func(t *testing.T) {
		cfg := testConfig()
		cfg.Proxy = rules
		cfg.Server.NoProxy = true
		s := newServer(t, cfg)

		rec := serve(s, http.MethodGet, "/api/packs", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("disabled outside development", func(t *testing.T) {
		cfg := testConfig()
		cfg.Proxy = rules
		cfg.Server.Environment = config.EnvProduction
		s := newServer(t, cfg)

		rec := serve(s, http.MethodGet, "/api/packs", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid rule fails New", func(t *testing.T) {
		cfg := testConfig()
		cfg.Proxy = []config.ProxyRule{{Prefix: "api", Target: backend.URL}}
		a, err := app.Bootstrap(cfg)
		require.NoError(t, err)
		_, err = New(cfg, a, nil)
		assert.Error(t, err)
	})
}

func TestStaticAssets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.css"), []byte("body{}"), 0o644))

	cfg := testConfig()
	cfg.Web.StaticDir = dir
	s := newServer(t, cfg)

	rec := serve(s, http.MethodGet, "/assets/main.css", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())

	rec = serve(s, http.MethodGet, "/assets/missing.js", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), RecoverMiddleware(app.New(testConfig(), nil).Logger()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRouterLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRouter("127.0.0.1:0", http.NotFoundHandler())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(ctx) }()

	require.Eventually(t, r.Listening, 2*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, "127.0.0.1:0", r.Addr())

	resp, err := http.Get("http://" + r.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	require.NoError(t, <-errCh)
	assert.False(t, r.Listening())

	assert.NoError(t, r.Shutdown(context.Background()), "shutdown is idempotent")
	assert.Error(t, r.Start(context.Background()), "cannot restart after shutdown")
	http.DefaultClient.CloseIdleConnections()
}

func TestNewRouterPanicsOnNilHandler(t *testing.T) {
	assert.Panics(t, func() { NewRouter(":0", nil) })
}

func TestHubCloseIsIdempotent(t *testing.T) {
	h := NewHub(nil, nil, nil)
	h.Broadcast(Message{Type: MessageReload})
	h.Close()
	h.Close()
	assert.Zero(t, h.Clients())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func readUntil(t *testing.T, conn *websocket.Conn, want string) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		var msg Message
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == want {
			return msg
		}
	}
}

func TestLiveChannel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	watched := t.TempDir()
	cfg := testConfig()
	cfg.Development.HotReload = true
	cfg.Development.WatchPaths = []string{watched, filepath.Join(watched, "missing")}
	cfg.Development.Debounce = 20 * time.Millisecond

	s := newServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	require.Eventually(t, s.Listening, 2*time.Second, 10*time.Millisecond)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws://"+s.Addr()+app.LiveReloadPath, nil)
	require.NoError(t, err)

	readUntil(t, conn, MessageConnected)
	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	t.Run("navigate", func(t *testing.T) {
		require.NoError(t, wsjson.Write(dialCtx, conn, Message{Type: MessageNavigate, Path: "/editpack/9"}))
		msg := readUntil(t, conn, MessageNavigated)
		assert.Equal(t, "/editpack/9", msg.Path)
		assert.Equal(t, string(pages.EditPack), msg.Page)
		assert.Equal(t, map[string]string{"id": "9"}, msg.Params)
	})

	t.Run("navigate to unknown path", func(t *testing.T) {
		require.NoError(t, wsjson.Write(dialCtx, conn, Message{Type: MessageNavigate, Path: "/nope"}))
		msg := readUntil(t, conn, MessageError)
		assert.Equal(t, "/nope", msg.Path)
		assert.NotEmpty(t, msg.Error)
	})

	t.Run("store changes are pushed", func(t *testing.T) {
		_, err := s.app.Store().Patch(app.SliceApp, map[string]any{"theme": "dark"})
		require.NoError(t, err)
		for {
			msg := readUntil(t, conn, MessageStore)
			require.NotNil(t, msg.Store)
			if msg.Store.Slice == app.SliceApp {
				assert.Equal(t, "dark", msg.Store.State["theme"])
				break
			}
		}
	})

	t.Run("file change triggers reload", func(t *testing.T) {
		page := filepath.Join(watched, "index.html")
		require.NoError(t, os.WriteFile(page, []byte("<p>changed</p>"), 0o644))
		msg := readUntil(t, conn, MessageReload)
		assert.Contains(t, msg.Files, page)
	})

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return s.Hub().Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	assert.NoError(t, s.Shutdown(context.Background()))
	http.DefaultClient.CloseIdleConnections()
}

// gatedFS blocks every Open until release is closed.
type gatedFS struct {
	fs.FS
	release chan struct{}
}

func (g gatedFS) Open(name string) (fs.File, error) {
	<-g.release
	return g.FS.Open(name)
}

func dialLive(t *testing.T, ctx context.Context, s *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+app.LiveReloadPath, nil)
	require.NoError(t, err)
	readUntil(t, conn, MessageConnected)
	return conn
}

func TestLiveChannelClientsNavigateIndependently(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	fsys := gatedFS{
		FS:      fstest.MapFS{pages.TrainFragment: {Data: []byte("<div data-train-root></div>")}},
		release: release,
	}
	s := newServer(t, testConfig(), app.WithPagesFS(fsys))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	require.Eventually(t, s.Listening, 2*time.Second, 10*time.Millisecond)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	first := dialLive(t, dialCtx, s)
	second := dialLive(t, dialCtx, s)

	train, ok := s.app.Table().Lookup(pages.TrainRouteName)
	require.True(t, ok)

	require.NoError(t, wsjson.Write(dialCtx, first, Message{Type: MessageNavigate, Path: "/train/7"}))
	require.Eventually(t, func() bool { return train.Page.State() == routes.StatePending },
		2*time.Second, 10*time.Millisecond)

	// The first client keeps reading while its page loads.
	require.NoError(t, wsjson.Write(dialCtx, first, Message{Type: "bogus"}))
	msg := readUntil(t, first, MessageError)
	assert.Contains(t, msg.Error, "bogus")

	require.NoError(t, wsjson.Write(dialCtx, second, Message{Type: MessageNavigate, Path: "/stats"}))
	msg = readUntil(t, second, MessageNavigated)
	assert.Equal(t, string(pages.Stats), msg.Page)

	close(release)
	msg = readUntil(t, first, MessageNavigated)
	assert.Equal(t, "/train/7", msg.Path)
	assert.Equal(t, string(pages.TrainPack), msg.Page)

	require.NoError(t, first.Close(websocket.StatusNormalClosure, ""))
	require.NoError(t, second.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return s.Hub().Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	assert.NoError(t, s.Shutdown(context.Background()))
	http.DefaultClient.CloseIdleConnections()
}
