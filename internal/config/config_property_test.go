//go:build property
// +build property

package config

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestConfigurationProperties tests configuration validation properties
func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: port validation accepts exactly 0-65535
	properties.Property("port validation", prop.ForAll(
		func(port int) bool {
			cfg := Default()
			cfg.Server.Port = port
			result := ValidateConfigWithDetails(cfg)
			if port >= 0 && port <= 65535 {
				return result.Valid
			}
			return !result.Valid
		},
		gen.IntRange(-1000, 70000),
	))

	// Property: proxy prefixes must be rooted
	properties.Property("proxy prefix must be rooted", prop.ForAll(
		func(prefix string) bool {
			cfg := Default()
			cfg.Proxy[0].Prefix = prefix
			result := ValidateConfigWithDetails(cfg)
			return result.Valid == (len(prefix) > 0 && prefix[0] == '/')
		},
		gen.RegexMatch(`^/?[a-z]{0,8}$`),
	))

	// Property: path validation should be consistent
	properties.Property("path validation consistency", prop.ForAll(
		func(path string) bool {
			first := validatePath(path) == nil
			second := validatePath(path) == nil
			return first == second
		},
		gen.OneConstOf("./web", "../web", "/etc/passwd", "web", ".", ""),
	))

	// Property: the default config is always valid
	properties.Property("default config validity", prop.ForAll(
		func() bool {
			return ValidateConfigWithDetails(Default()).Valid
		},
	))

	properties.TestingRun(t)
}
