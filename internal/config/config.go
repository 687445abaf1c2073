// Package config provides configuration management for cardshell using Viper
// for loading from files, environment variables, and command-line flags.
//
// Values come from .cardshell.yml, CARDSHELL_ prefixed environment variables
// and flags bound by the cmd package. The configuration covers the listening
// server, the host document and its mount element, page fragments, the
// development proxy, live reload and logging.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/dailycards/cardshell/internal/errors"
)

// Environments recognised by the server.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Default values.
const (
	DefaultHost         = "localhost"
	DefaultPort         = 5173
	DefaultMountID      = "app"
	DefaultProxyPrefix  = "/api"
	DefaultProxyTarget  = "http://localhost:8080"
	DefaultDebounce     = 300 * time.Millisecond
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultStaticPrefix = "/assets/"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Web         WebConfig         `mapstructure:"web" yaml:"web"`
	Pages       PagesConfig       `mapstructure:"pages" yaml:"pages"`
	Proxy       []ProxyRule       `mapstructure:"proxy" yaml:"proxy"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	Environment    string   `mapstructure:"environment" yaml:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	NoProxy        bool     `mapstructure:"no_proxy" yaml:"no_proxy"`
}

// WebConfig locates the host document. An empty Index uses the embedded one.
type WebConfig struct {
	Index     string `mapstructure:"index" yaml:"index"`
	MountID   string `mapstructure:"mount_id" yaml:"mount_id"`
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir"`
}

// PagesConfig points at a directory of page fragments. Empty uses the
// embedded fragments.
type PagesConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ProxyRule forwards requests under Prefix to Target.
type ProxyRule struct {
	Prefix       string `mapstructure:"prefix" yaml:"prefix"`
	Target       string `mapstructure:"target" yaml:"target"`
	ChangeOrigin bool   `mapstructure:"change_origin" yaml:"change_origin"`
	Secure       bool   `mapstructure:"secure" yaml:"secure"`
}

type DevelopmentConfig struct {
	HotReload  bool          `mapstructure:"hot_reload" yaml:"hot_reload"`
	WatchPaths []string      `mapstructure:"watch_paths" yaml:"watch_paths"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// ProxyEnabled reports whether the dev proxy should be mounted.
func (c *Config) ProxyEnabled() bool {
	return c.IsDevelopment() && !c.Server.NoProxy && len(c.Proxy) > 0
}

// DefaultProxyRules returns the rule forwarding /api to the local backend.
func DefaultProxyRules() []ProxyRule {
	return []ProxyRule{{
		Prefix:       DefaultProxyPrefix,
		Target:       DefaultProxyTarget,
		ChangeOrigin: true,
		Secure:       false,
	}}
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        DefaultHost,
			Port:        DefaultPort,
			Environment: EnvDevelopment,
		},
		Web: WebConfig{
			MountID:   DefaultMountID,
			StaticDir: "web/assets",
		},
		Proxy: DefaultProxyRules(),
		Development: DevelopmentConfig{
			HotReload:  true,
			WatchPaths: []string{"web"},
			Debounce:   DefaultDebounce,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.environment", d.Server.Environment)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.no_proxy", false)
	v.SetDefault("web.index", d.Web.Index)
	v.SetDefault("web.mount_id", d.Web.MountID)
	v.SetDefault("web.static_dir", d.Web.StaticDir)
	v.SetDefault("pages.dir", "")
	v.SetDefault("development.hot_reload", d.Development.HotReload)
	v.SetDefault("development.watch_paths", d.Development.WatchPaths)
	v.SetDefault("development.debounce", d.Development.Debounce)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	rules := make([]map[string]any, 0, len(d.Proxy))
	for _, r := range d.Proxy {
		rules = append(rules, map[string]any{
			"prefix":        r.Prefix,
			"target":        r.Target,
			"change_origin": r.ChangeOrigin,
			"secure":        r.Secure,
		})
	}
	v.SetDefault("proxy", rules)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Decode(v)
	if err != nil {
		return nil, err
	}

	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		return nil, result.Err()
	}

	return config, nil
}

// Decode reads the configuration held by v without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid,
			"failed to decode configuration: "+err.Error())
	}

	// Comma separated values arrive as one string from the environment.
	if v.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	normalize(&config)
	return &config, nil
}

func normalize(config *Config) {
	config.Server.Host = strings.TrimSpace(config.Server.Host)
	config.Server.Environment = strings.ToLower(strings.TrimSpace(config.Server.Environment))
	config.Web.MountID = strings.TrimPrefix(strings.TrimSpace(config.Web.MountID), "#")
	config.Log.Level = strings.ToLower(strings.TrimSpace(config.Log.Level))
	config.Log.Format = strings.ToLower(strings.TrimSpace(config.Log.Format))

	for i := range config.Proxy {
		config.Proxy[i].Prefix = strings.TrimSpace(config.Proxy[i].Prefix)
		config.Proxy[i].Target = strings.TrimSpace(config.Proxy[i].Target)
	}

	if config.Development.Debounce <= 0 {
		config.Development.Debounce = DefaultDebounce
	}
}

// Summary is a one-line description used in startup logs.
func (c *Config) Summary() string {
	return fmt.Sprintf("addr=%s env=%s mount=#%s proxy_rules=%d hot_reload=%t",
		c.Addr(), c.Server.Environment, c.Web.MountID, len(c.Proxy), c.Development.HotReload)
}
