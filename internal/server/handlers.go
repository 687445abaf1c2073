package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dailycards/cardshell/internal/routes"
	"github.com/dailycards/cardshell/internal/version"
)

// Paths served by the shell itself.
const (
	HealthPath = "/__shell/health"
	RoutesPath = "/__shell/routes"
	StorePath  = "/__shell/store"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Mounted   bool      `json:"mounted"`
	Version   string    `json:"version"`
	Clients   int       `json:"clients"`
	Timestamp time.Time `json:"timestamp"`
}

// RouteInfo describes one route table entry.
type RouteInfo struct {
	Pattern string   `json:"pattern"`
	Page    string   `json:"page"`
	Name    string   `json:"name,omitempty"`
	Props   bool     `json:"props"`
	Lazy    bool     `json:"lazy"`
	State   string   `json:"state"`
	Params  []string `json:"params,omitempty"`
}

// DescribeRoutes lists the entries of table in registration order.
func DescribeRoutes(table *routes.Table) []RouteInfo {
	if table == nil {
		return []RouteInfo{}
	}
	entries := table.Entries()
	out := make([]RouteInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, RouteInfo{
			Pattern: e.Pattern,
			Page:    string(e.Page.ID),
			Name:    e.Name,
			Props:   e.Props,
			Lazy:    e.Page.IsLazy(),
			State:   e.Page.State().String(),
			Params:  e.Params(),
		})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.app.Mounted() {
		status = "starting"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Mounted:   s.app.Mounted(),
		Version:   version.GetShortVersion(),
		Clients:   s.hub.Clients(),
		Timestamp: time.Now(),
	})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DescribeRoutes(s.app.Table()))
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	st := s.app.Store()
	if st == nil {
		http.Error(w, "store not installed", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, st.Snapshot())
}

// handleShell renders the host document for every client-side route.
func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	// Route segments are decoded by the table, so it gets the path as sent.
	status, err := s.app.Render(r.Context(), &buf, r.URL.EscapedPath())
	if err != nil {
		s.errors.Handle(r.Context(), err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
