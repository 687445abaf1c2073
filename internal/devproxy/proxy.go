// Package devproxy forwards backend-bound requests from the dev server to the
// backend origin, the way a frontend dev server proxies /api during local
// development.
package devproxy

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/dailycards/cardshell/internal/config"
	apperrors "github.com/dailycards/cardshell/internal/errors"
	"github.com/dailycards/cardshell/internal/logging"
)

// Rule forwards every request whose path falls under Prefix to Target.
// ChangeOrigin rewrites Host and Origin to the target. Secure=false skips
// certificate verification of the target.
type Rule struct {
	Prefix       string
	Target       string
	ChangeOrigin bool
	Secure       bool
}

// FromConfig converts configured rules.
func FromConfig(rules []config.ProxyRule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, Rule{
			Prefix:       r.Prefix,
			Target:       r.Target,
			ChangeOrigin: r.ChangeOrigin,
			Secure:       r.Secure,
		})
	}
	return out
}

// Matches reports whether path falls under the rule's prefix on a segment
// boundary: /api matches /api and /api/packs but not /apiary.
func (r Rule) Matches(path string) bool {
	if strings.HasSuffix(r.Prefix, "/") {
		return strings.HasPrefix(path, r.Prefix)
	}
	return path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/")
}

type route struct {
	rule    Rule
	target  *url.URL
	handler *httputil.ReverseProxy
}

// Proxy is an http.Handler dispatching to the first matching rule.
type Proxy struct {
	routes []route
	logger logging.Logger
}

// New validates rules and builds one reverse proxy per rule.
func New(rules []Rule, logger logging.Logger) (*Proxy, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Proxy{logger: logger.WithComponent("devproxy")}

	for i, rule := range rules {
		target, err := validateRule(rule)
		if err != nil {
			return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidProxyRule,
				fmt.Sprintf("proxy rule %d: %v", i, err)).
				WithContext("prefix", rule.Prefix).
				WithContext("target", rule.Target)
		}
		p.routes = append(p.routes, route{
			rule:    rule,
			target:  target,
			handler: p.reverseProxy(rule, target),
		})
	}

	return p, nil
}

func validateRule(rule Rule) (*url.URL, error) {
	if !strings.HasPrefix(rule.Prefix, "/") {
		return nil, fmt.Errorf("prefix %q must start with /", rule.Prefix)
	}
	target, err := url.Parse(rule.Target)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", rule.Target, err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("target %q must be an absolute http or https URL", rule.Target)
	}
	return target, nil
}

// Rules returns the rules in match order.
func (p *Proxy) Rules() []Rule {
	out := make([]Rule, 0, len(p.routes))
	for _, r := range p.routes {
		out = append(out, r.rule)
	}
	return out
}

// Match returns the first rule whose prefix covers path.
func (p *Proxy) Match(path string) (Rule, bool) {
	if rt := p.match(path); rt != nil {
		return rt.rule, true
	}
	return Rule{}, false
}

func (p *Proxy) match(path string) *route {
	for i := range p.routes {
		if p.routes[i].rule.Matches(path) {
			return &p.routes[i]
		}
	}
	return nil
}

// ServeHTTP forwards r, or answers 404 when no rule covers its path.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt := p.match(r.URL.Path)
	if rt == nil {
		writeError(w, http.StatusNotFound, apperrors.ErrCodeRouteNotFound, "no proxy rule matches "+r.URL.Path, "")
		return
	}

	p.logger.Debug(r.Context(), "Proxying request",
		"method", r.Method,
		"path", r.URL.Path,
		"target", rt.target.String())
	rt.handler.ServeHTTP(w, r)
}

func (p *Proxy) reverseProxy(rule Rule, target *url.URL) *httputil.ReverseProxy {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !rule.Secure, //nolint:gosec // backends in development use self-signed certificates
	}

	origin := target.Scheme + "://" + target.Host

	return &httputil.ReverseProxy{
		Transport: transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			if !rule.ChangeOrigin {
				pr.Out.Host = pr.In.Host
				return
			}
			if pr.In.Header.Get("Origin") != "" {
				pr.Out.Header.Set("Origin", origin)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			shellErr := apperrors.NewNetworkError(apperrors.ErrCodeProxyUnreachable,
				"backend unreachable", err).
				WithPath(r.URL.Path).
				WithContext("target", target.String())
			p.logger.Warn(r.Context(), shellErr, "Proxy request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"target", target.String())
			writeError(w, http.StatusBadGateway, apperrors.ErrCodeProxyUnreachable,
				"backend unreachable: "+err.Error(), target.String())
		},
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Target string `json:"target,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg, target string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Code: code, Target: target})
}
