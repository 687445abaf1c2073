package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dailycards/cardshell/internal/app"
	"github.com/dailycards/cardshell/internal/config"
	apperrors "github.com/dailycards/cardshell/internal/errors"
	"github.com/dailycards/cardshell/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the development server",
	Long: `Start the development server for the dailycards client.

The host document is served for every client-side route with the matching
page mounted into #app. Requests under /api are forwarded to the backend
at http://localhost:8080 unless --no-proxy is given.

Examples:
  cardshell serve                      # Serve on localhost:5173
  cardshell serve --port 3000          # Serve on a different port
  cardshell serve --no-proxy           # Do not forward /api
  cardshell serve --index web/index.html`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", config.DefaultPort, "Port to serve on (0 picks a free port)")
	serveCmd.Flags().String("host", config.DefaultHost, "Host to bind to")
	serveCmd.Flags().String("env", config.EnvDevelopment, "Environment (development, production, testing)")
	serveCmd.Flags().String("index", "", "Host document (default is the embedded index.html)")
	serveCmd.Flags().Bool("no-proxy", false, "Don't forward backend requests")
	serveCmd.Flags().Bool("no-reload", false, "Disable live reload")

	AddFlagValidation(serveCmd, "port", ValidatePort)
	AddFlagValidation(serveCmd, "env", ValidateEnvironment)

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.environment", serveCmd.Flags().Lookup("env"))
	_ = viper.BindPFlag("server.no_proxy", serveCmd.Flags().Lookup("no-proxy"))
	_ = viper.BindPFlag("web.index", serveCmd.Flags().Lookup("index"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noReload, _ := cmd.Flags().GetBool("no-reload"); noReload {
		cfg.Development.HotReload = false
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a, err := app.Bootstrap(cfg, app.WithLogger(logger))
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeMountPointMissing {
			return apperrors.NewEnhancedError("Failed to mount the application", err,
				apperrors.MountPointError(&apperrors.SuggestionContext{
					ConfigPath: configPath(),
					IndexPath:  cfg.Web.Index,
					MountID:    cfg.Web.MountID,
				}))
		}
		return fmt.Errorf("failed to bootstrap application: %w", err)
	}

	srv, err := server.New(cfg, a, logger)
	if err != nil {
		return apperrors.NewEnhancedError("Failed to create server", err,
			apperrors.ConfigurationError(err.Error(), configPath(), nil))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Starting cardshell at http://%s\n", cfg.Addr())
	if cfg.ProxyEnabled() {
		for _, rule := range cfg.Proxy {
			fmt.Fprintf(cmd.OutOrStdout(), "  proxy %s -> %s\n", rule.Prefix, rule.Target)
		}
	}

	if err := srv.Start(ctx); err != nil {
		if strings.Contains(err.Error(), "address already in use") || strings.Contains(err.Error(), "bind") ||
			strings.Contains(err.Error(), "permission denied") {
			return apperrors.NewEnhancedError(
				fmt.Sprintf("Failed to start server on port %d", cfg.Server.Port),
				err,
				apperrors.ServerStartError(err, cfg.Server.Port, &apperrors.SuggestionContext{}))
		}
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadConfig resolves the configuration from viper, wrapping failures with
// suggestions.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, apperrors.NewEnhancedError("Failed to load configuration", err,
			apperrors.ConfigurationError(err.Error(), configPath(), &apperrors.SuggestionContext{
				ConfigPath: configPath(),
			}))
	}
	return cfg, nil
}
