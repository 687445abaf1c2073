package errors

import (
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// SuggestionContext provides context for generating suggestions
type SuggestionContext struct {
	ConfigPath string
	IndexPath  string
	MountID    string
	Routes     []string
}

// ServerStartError generates suggestions for server startup failures
func ServerStartError(err error, port int, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{}

	errStr := err.Error()

	if strings.Contains(errStr, "address already in use") || strings.Contains(errStr, "bind") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Port already in use",
			Description: fmt.Sprintf("Port %d is already being used by another process", port),
			Command:     fmt.Sprintf("lsof -i :%d", port),
		})

		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use a different port",
			Description: "Start the server on a different port",
			Command:     fmt.Sprintf("cardshell serve --port %d", port+1),
		})
	}

	if strings.Contains(errStr, "permission denied") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Permission denied",
			Description: "You don't have permission to bind to this port",
		})

		if port < 1024 {
			suggestions = append(suggestions, ErrorSuggestion{
				Title:       "Use unprivileged port",
				Description: "Ports below 1024 require root privileges",
				Command:     "cardshell serve --port 5173",
			})
		}
	}

	return suggestions
}

// ConfigurationError generates suggestions for configuration issues
func ConfigurationError(configError string, configPath string, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check configuration file",
			Description: "Verify your .cardshell.yml file exists and has valid syntax",
			Command:     "cat " + configPath,
		},
		{
			Title:       "Validate configuration",
			Description: "Use the config validate command to check for issues",
			Command:     "cardshell config validate",
		},
	}

	if strings.Contains(configError, "yaml") || strings.Contains(configError, "unmarshal") ||
		strings.Contains(configError, "decoding") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "There's a syntax error in your YAML configuration",
			Example:     "Use proper indentation and avoid tabs",
		})
	}

	if strings.Contains(configError, "proxy") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check proxy rules",
			Description: "Each rule needs a prefix starting with / and an absolute http(s) target",
			Example:     "proxy:\n  - prefix: /api\n    target: http://localhost:8080\n    change_origin: true\n    secure: false",
		})
	}

	return suggestions
}

// MountPointError generates suggestions for a host document without a mount element
func MountPointError(ctx *SuggestionContext) []ErrorSuggestion {
	mountID := "app"
	indexPath := "the embedded index.html"
	if ctx != nil {
		if ctx.MountID != "" {
			mountID = ctx.MountID
		}
		if ctx.IndexPath != "" {
			indexPath = ctx.IndexPath
		}
	}

	return []ErrorSuggestion{
		{
			Title:       "Add the mount element",
			Description: fmt.Sprintf("The host document %s must contain an element with id %q", indexPath, mountID),
			Example:     fmt.Sprintf(`<div id="%s"></div>`, mountID),
		},
		{
			Title:       "Point at a different host document",
			Description: "Set web.index to an HTML file that contains the mount element",
			Command:     "cardshell serve --index ./web/index.html",
		},
		{
			Title:       "Change the mount id",
			Description: "Set web.mount_id to the id your host document uses",
			Example:     "web:\n  mount_id: root",
		},
	}
}

// RouteNotFoundError generates suggestions for a path that matches no route
func RouteNotFoundError(path string, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "List registered routes",
			Description: "See which patterns the route table contains",
			Command:     "cardshell routes",
		},
	}

	if ctx == nil {
		return suggestions
	}

	first := strings.SplitN(strings.Trim(path, "/"), "/", 2)[0]
	for _, pattern := range ctx.Routes {
		head := strings.SplitN(strings.Trim(pattern, "/"), "/", 2)[0]
		if first != "" && head != "" && !strings.HasPrefix(head, ":") &&
			(strings.Contains(head, first) || strings.Contains(first, head)) {
			suggestions = append(suggestions, ErrorSuggestion{
				Title:       "Did you mean '" + pattern + "'?",
				Description: "Similar route found",
			})
			break
		}
	}

	return suggestions
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
		output.WriteString("\n")
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	msg := FormatSuggestions(e.Title, e.Suggestions)
	if e.OriginalError != nil {
		msg = e.Title + ": " + e.OriginalError.Error() + strings.TrimPrefix(msg, e.Title)
	}
	return msg
}

// Unwrap returns the original error
func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates a new enhanced error with suggestions
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
