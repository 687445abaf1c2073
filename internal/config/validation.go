package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	apperrors "github.com/dailycards/cardshell/internal/errors"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// Err converts the errors into a config ShellError, or nil when there are none.
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}

	var collection apperrors.ValidationErrorCollection
	for _, e := range vr.Errors {
		collection.AddField(e.Field, e.Value, e.Message, e.Suggestions...)
	}
	return collection.ToShellError()
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateWebConfigDetails(&config.Web, result)
	validatePagesConfigDetails(&config.Pages, result)
	validateProxyRulesDetails(config, result)
	validateDevelopmentConfigDetails(&config.Development, result)
	validateLogConfigDetails(&config.Log, result)

	result.Valid = !result.HasErrors()

	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	// Port 0 lets the system assign one, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"The dev server defaults to 5173",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: "port below 1024 requires elevated privileges",
			Suggestions: []string{
				"Consider using a port above 1024 for development",
			},
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local development",
					"Use '0.0.0.0' to bind to all interfaces",
				},
			})
		}
	}

	validEnvs := []string{EnvDevelopment, EnvProduction, EnvTesting}
	if !contains(validEnvs, config.Environment) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.environment",
			Value:   config.Environment,
			Message: "unknown environment",
			Suggestions: []string{
				"Valid environments: " + strings.Join(validEnvs, ", "),
			},
		})
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.allowed_origins",
				Value:   origin,
				Message: "origin must be scheme://host[:port] or *",
				Suggestions: []string{
					"Example: http://localhost:5173",
				},
			})
		}
	}
}

var mountIDRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func validateWebConfigDetails(config *WebConfig, result *ValidationResult) {
	if !mountIDRegex.MatchString(config.MountID) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "web.mount_id",
			Value:   config.MountID,
			Message: "mount id must be a valid element id",
			Suggestions: []string{
				"The default mount element is <div id=\"app\">",
			},
		})
	}

	if config.Index != "" {
		if err := validatePath(config.Index); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "web.index",
				Value:   config.Index,
				Message: err.Error(),
			})
		}
	}

	if config.StaticDir != "" {
		if err := validatePath(config.StaticDir); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "web.static_dir",
				Value:   config.StaticDir,
				Message: err.Error(),
			})
		}
	}
}

func validatePagesConfigDetails(config *PagesConfig, result *ValidationResult) {
	if config.Dir == "" {
		return
	}
	if err := validatePath(config.Dir); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "pages.dir",
			Value:   config.Dir,
			Message: err.Error(),
			Suggestions: []string{
				"Leave pages.dir empty to use the built-in page fragments",
			},
		})
	}
}

func validateProxyRulesDetails(config *Config, result *ValidationResult) {
	seen := make(map[string]bool, len(config.Proxy))
	for i, rule := range config.Proxy {
		field := fmt.Sprintf("proxy[%d]", i)

		if !strings.HasPrefix(rule.Prefix, "/") {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".prefix",
				Value:   rule.Prefix,
				Message: "prefix must start with /",
				Suggestions: []string{
					"Example: /api",
				},
			})
		} else if seen[rule.Prefix] {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".prefix",
				Value:   rule.Prefix,
				Message: "duplicate proxy prefix",
			})
		}
		seen[rule.Prefix] = true

		u, err := url.Parse(rule.Target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".target",
				Value:   rule.Target,
				Message: "target must be an absolute http or https URL",
				Suggestions: []string{
					"Example: " + DefaultProxyTarget,
				},
			})
		}

		if !rule.Secure && config.Server.Environment == EnvProduction {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   field + ".secure",
				Value:   rule.Secure,
				Message: "TLS verification is disabled, but the proxy only runs in development",
			})
		}
	}
}

func validateDevelopmentConfigDetails(config *DevelopmentConfig, result *ValidationResult) {
	for _, path := range config.WatchPaths {
		if err := validatePath(path); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "development.watch_paths",
				Value:   path,
				Message: err.Error(),
			})
		}
	}

	if config.HotReload && len(config.WatchPaths) == 0 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "development.watch_paths",
			Value:   config.WatchPaths,
			Message: "hot reload is enabled but nothing is watched",
			Suggestions: []string{
				"Add the directory holding index.html and assets",
			},
		})
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, config.Level) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log.level",
			Value:   config.Level,
			Message: "unknown log level",
			Suggestions: []string{
				"Valid levels: " + strings.Join(levels, ", "),
			},
		})
	}

	formats := []string{"text", "json"}
	if !contains(formats, config.Format) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log.format",
			Value:   config.Format,
			Message: "unknown log format",
			Suggestions: []string{
				"Valid formats: text, json",
			},
		})
	}
}

// Helper validation functions

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}

	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
