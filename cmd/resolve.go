package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dailycards/cardshell/internal/app"
	"github.com/dailycards/cardshell/internal/config"
	apperrors "github.com/dailycards/cardshell/internal/errors"
	"github.com/dailycards/cardshell/internal/routes"
)

var (
	resolveFormat string
	resolveRender bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "Show which page a path renders",
	Long: `Resolve a path against the route table and print the matched page,
its parameters and the props forwarded to it. With --render the full host
document for the path is printed instead.

Examples:
  cardshell resolve /editpack/42
  cardshell resolve /train/7 -o json
  cardshell resolve /stats --render`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return ValidateFormatWithSuggestion(resolveFormat, outputFormats)
	},
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVarP(&resolveFormat, "output", "o", "table", "Output format (table, json, yaml)")
	resolveCmd.Flags().BoolVar(&resolveRender, "render", false, "Print the rendered host document")
}

// Resolution is the printable result of resolving a path.
type Resolution struct {
	Path    string            `json:"path" yaml:"path"`
	Pattern string            `json:"pattern" yaml:"pattern"`
	Page    string            `json:"page" yaml:"page"`
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Lazy    bool              `json:"lazy" yaml:"lazy"`
	Params  map[string]string `json:"params" yaml:"params"`
	Props   map[string]string `json:"props" yaml:"props"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return resolvePath(cmd, cfg, args[0])
}

func resolvePath(cmd *cobra.Command, cfg *config.Config, path string) error {
	// The printed document is a snapshot; the live reload client is useless here.
	cfg.Development.HotReload = false

	a, err := app.Bootstrap(cfg)
	if err != nil {
		return err
	}

	match, err := a.Table().Resolve(path)
	if err != nil {
		patterns := make([]string, 0)
		for _, e := range a.Table().Entries() {
			patterns = append(patterns, e.Pattern)
		}
		return apperrors.NewEnhancedError("No route matches "+path, err,
			apperrors.RouteNotFoundError(path, &apperrors.SuggestionContext{Routes: patterns}))
	}

	if resolveRender {
		status, err := a.Render(cmd.Context(), cmd.OutOrStdout(), path)
		if err != nil {
			return err
		}
		if status >= 400 {
			return fmt.Errorf("rendering %s returned status %d", path, status)
		}
		return nil
	}

	return writeResolution(cmd.OutOrStdout(), newResolution(match), resolveFormat)
}

func newResolution(m *routes.Match) Resolution {
	return Resolution{
		Path:    m.Path,
		Pattern: m.Entry.Pattern,
		Page:    string(m.Entry.Page.ID),
		Name:    m.Entry.Name,
		Lazy:    m.Entry.Page.IsLazy(),
		Params:  m.Params,
		Props:   m.Props,
	}
}

func writeResolution(w io.Writer, r Resolution, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(r)
	default:
		fmt.Fprintf(w, "path:    %s\n", r.Path)
		fmt.Fprintf(w, "pattern: %s\n", r.Pattern)
		fmt.Fprintf(w, "page:    %s\n", r.Page)
		if r.Name != "" {
			fmt.Fprintf(w, "name:    %s\n", r.Name)
		}
		loading := "eager"
		if r.Lazy {
			loading = "lazy"
		}
		fmt.Fprintf(w, "loading: %s\n", loading)
		fmt.Fprintf(w, "params:  %s\n", formatPairs(r.Params))
		fmt.Fprintf(w, "props:   %s\n", formatPairs(r.Props))
		return nil
	}
}

func formatPairs(m map[string]string) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return strings.Join(pairs, " ")
}
