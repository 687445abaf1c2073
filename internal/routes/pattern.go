package routes

import (
	"fmt"
	"net/url"
	"strings"
)

// segment is one path component of a compiled pattern. Exactly one of
// literal or param is set.
type segment struct {
	literal string
	param   string
}

// pattern is a compiled route pattern such as /editpack/:id.
type pattern struct {
	raw      string
	segments []segment
}

func compilePattern(raw string) (pattern, error) {
	if raw == "" {
		return pattern{}, fmt.Errorf("empty pattern")
	}
	if !strings.HasPrefix(raw, "/") {
		return pattern{}, fmt.Errorf("pattern %q must start with /", raw)
	}

	p := pattern{raw: raw}
	seen := make(map[string]bool)

	for _, part := range splitRaw(raw) {
		if part == "" {
			return pattern{}, fmt.Errorf("pattern %q contains an empty segment", raw)
		}
		if !strings.HasPrefix(part, ":") {
			p.segments = append(p.segments, segment{literal: part})
			continue
		}

		name := part[1:]
		if name == "" {
			return pattern{}, fmt.Errorf("pattern %q has an unnamed parameter", raw)
		}
		if seen[name] {
			return pattern{}, fmt.Errorf("pattern %q repeats parameter %q", raw, name)
		}
		seen[name] = true
		p.segments = append(p.segments, segment{param: name})
	}

	return p, nil
}

// key identifies patterns that can never be told apart, so /a/:x and /a/:y
// collide even though their parameter names differ.
func (p pattern) key() string {
	parts := make([]string, len(p.segments))
	for i, s := range p.segments {
		if s.param != "" {
			parts[i] = ":"
		} else {
			parts[i] = s.literal
		}
	}
	return "/" + strings.Join(parts, "/")
}

func (p pattern) params() []string {
	var names []string
	for _, s := range p.segments {
		if s.param != "" {
			names = append(names, s.param)
		}
	}
	return names
}

// match reports whether the decoded path segments satisfy the pattern and
// returns the captured parameters.
func (p pattern) match(parts []string) (map[string]string, bool) {
	if len(parts) != len(p.segments) {
		return nil, false
	}

	var params map[string]string
	for i, s := range p.segments {
		if s.param == "" {
			if parts[i] != s.literal {
				return nil, false
			}
			continue
		}
		if parts[i] == "" {
			return nil, false
		}
		if params == nil {
			params = make(map[string]string, len(p.segments))
		}
		params[s.param] = parts[i]
	}

	if params == nil {
		params = map[string]string{}
	}
	return params, true
}

// build renders the pattern with the given parameter values.
func (p pattern) build(params map[string]string) (string, error) {
	if len(p.segments) == 0 {
		return "/", nil
	}

	var b strings.Builder
	for _, s := range p.segments {
		b.WriteByte('/')
		if s.param == "" {
			b.WriteString(s.literal)
			continue
		}
		v, ok := params[s.param]
		if !ok || v == "" {
			return "", fmt.Errorf("missing parameter %q for %s", s.param, p.raw)
		}
		b.WriteString(url.PathEscape(v))
	}
	return b.String(), nil
}

func splitRaw(path string) []string {
	trimmed := strings.TrimPrefix(path, "/")
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// splitPath turns a request path into decoded segments. The query string and
// fragment are dropped and a single trailing slash is ignored.
func splitPath(path string) ([]string, error) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path %q must start with /", path)
	}

	raw := splitRaw(path)
	parts := make([]string, len(raw))
	for i, r := range raw {
		decoded, err := url.PathUnescape(r)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		parts[i] = decoded
	}
	return parts, nil
}
