package app

import (
	"context"

	"github.com/dailycards/cardshell/internal/routes"
	"github.com/dailycards/cardshell/internal/store"
)

// Store slices maintained by the built-in plugins.
const (
	SliceApp   = "app"
	SliceRoute = "route"
)

type storePlugin struct {
	store *store.Store
}

// StorePlugin installs s as the application state store and defines the
// app and route slices.
func StorePlugin(s *store.Store) Plugin {
	return &storePlugin{store: s}
}

func (p *storePlugin) Name() string { return "store" }

func (p *storePlugin) Install(a *App) error {
	defined := make(map[string]bool)
	for _, name := range p.store.Names() {
		defined[name] = true
	}

	cfg := a.Config()
	initial := map[string]map[string]any{
		SliceApp: {
			"mounted":     false,
			"mount_id":    cfg.Web.MountID,
			"environment": cfg.Server.Environment,
		},
		SliceRoute: {
			"path":   "",
			"page":   "",
			"name":   "",
			"params": map[string]string{},
		},
	}
	for _, name := range []string{SliceApp, SliceRoute} {
		if defined[name] {
			continue
		}
		if err := p.store.Define(name, initial[name]); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.store = p.store
	a.mu.Unlock()
	return nil
}

type routerPlugin struct {
	table *routes.Table
}

// RouterPlugin installs table and a navigator over it. When a store is
// already installed, every committed navigation is recorded in its route
// slice.
func RouterPlugin(table *routes.Table) Plugin {
	return &routerPlugin{table: table}
}

func (p *routerPlugin) Name() string { return "router" }

func (p *routerPlugin) Install(a *App) error {
	nav := a.newNavigator(p.table)

	a.mu.Lock()
	a.table = p.table
	a.navigator = nav
	a.mu.Unlock()
	return nil
}

// NewNavigator returns a navigator of its own over the installed route
// table, for callers that navigate independently of the application, such
// as one browser tab. Its commits are recorded in the route slice like the
// application's. It returns nil when no router is installed.
func (a *App) NewNavigator() *routes.Navigator {
	table := a.Table()
	if table == nil {
		return nil
	}
	return a.newNavigator(table)
}

func (a *App) newNavigator(table *routes.Table) *routes.Navigator {
	nav := routes.NewNavigator(table)

	if st := a.Store(); st != nil {
		nav.OnNavigate(func(loc routes.Location) {
			_, err := st.Patch(SliceRoute, map[string]any{
				"path":   loc.Path,
				"page":   string(loc.Match.Entry.Page.ID),
				"name":   loc.Match.Entry.Name,
				"params": loc.Match.Params,
			})
			if err != nil {
				a.Logger().Warn(context.Background(), err, "Failed to record navigation", "path", loc.Path)
			}
		})
	}
	return nav
}
