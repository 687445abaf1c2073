package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dailycards/cardshell/internal/config"
	"github.com/dailycards/cardshell/internal/pages"
	"github.com/dailycards/cardshell/internal/routes"
	"github.com/dailycards/cardshell/internal/server"
)

var routesFormat string

var routesCmd = &cobra.Command{
	Use:     "routes",
	Aliases: []string{"r"},
	Short:   "List the client route table",
	Long: `List the client-side routes in the order they are matched.

Examples:
  cardshell routes               # Table output
  cardshell routes -o json       # JSON output
  cardshell routes -o yaml       # YAML output`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return ValidateFormatWithSuggestion(routesFormat, outputFormats)
	},
	RunE: runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
	routesCmd.Flags().StringVarP(&routesFormat, "output", "o", "table", "Output format (table, json, yaml)")
}

func runRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	table, err := routeTable(cfg)
	if err != nil {
		return err
	}
	return writeRoutes(cmd.OutOrStdout(), server.DescribeRoutes(table), routesFormat)
}

// routeTable builds the table the server would use for cfg.
func routeTable(cfg *config.Config) (*routes.Table, error) {
	if cfg.Pages.Dir != "" {
		return pages.NewTable(os.DirFS(cfg.Pages.Dir))
	}
	return pages.NewTable(nil)
}

func writeRoutes(w io.Writer, infos []server.RouteInfo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(infos)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PATTERN\tPAGE\tNAME\tPROPS\tLOADING")
		for _, r := range infos {
			loading := "eager"
			if r.Lazy {
				loading = "lazy"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.Pattern, r.Page, dash(r.Name), dash(strings.Join(propNames(r), ",")), loading)
		}
		return tw.Flush()
	default:
		return ValidateFormatWithSuggestion(format, outputFormats)
	}
}

func propNames(r server.RouteInfo) []string {
	if !r.Props {
		return nil
	}
	return r.Params
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
