package routing

import (
	"errors"
	"strings"
)

type RouteClass string

const (
	// RouteClassPublicAPI covers the tenant-bound /api surface.
	RouteClassPublicAPI RouteClass = "public_api"
	// RouteClassPlatformAPI covers /platform admin endpoints; no tenant
	// binding, platform-scope authorization instead.
	RouteClassPlatformAPI RouteClass = "platform_api"
	// RouteClassOps covers health and other operational probes.
	RouteClassOps RouteClass = "ops"
)

type Classifier struct {
	entrypoint        string
	allowExact        map[string]RouteClass
	allowPathPatterns []pathPatternRoute
}

type pathPatternRoute struct {
	pattern pathPattern
	rc      RouteClass
}

func NewClassifier(a Allowlist, entrypoint string) (*Classifier, error) {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return nil, errors.New("allowlist: missing entrypoint")
	}
	if len(ep.Routes) == 0 {
		return nil, errors.New("allowlist: entrypoint routes empty")
	}

	exact := make(map[string]RouteClass, len(ep.Routes))
	var patterns []pathPatternRoute
	for _, r := range ep.Routes {
		if r.Path == "" || r.RouteClass == "" {
			return nil, errors.New("allowlist: invalid route")
		}
		if p, ok := parsePathPattern(r.Path); ok {
			patterns = append(patterns, pathPatternRoute{pattern: p, rc: RouteClass(r.RouteClass)})
			continue
		}
		exact[r.Path] = RouteClass(r.RouteClass)
	}
	return &Classifier{entrypoint: entrypoint, allowExact: exact, allowPathPatterns: patterns}, nil
}

func (c *Classifier) Classify(path string) RouteClass {
	if rc, ok := c.allowExact[path]; ok {
		return rc
	}
	for _, p := range c.allowPathPatterns {
		if p.pattern.match(path) {
			return p.rc
		}
	}

	switch {
	case hasPrefixSegment(path, "/platform"):
		return RouteClassPlatformAPI
	case path == "/health" || path == "/ready":
		return RouteClassOps
	default:
		return RouteClassPublicAPI
	}
}

func hasPrefixSegment(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// pathPattern matches allowlist paths with {param} segments, e.g.
// /api/tasks/{task_type}/execute.
type pathPattern struct {
	raw      string
	segments []string
}

func parsePathPattern(raw string) (pathPattern, bool) {
	if !strings.Contains(raw, "{") {
		return pathPattern{}, false
	}
	if raw == "" || raw[0] != '/' {
		return pathPattern{}, false
	}

	parts := splitPathSegments(raw)
	for _, s := range parts {
		if s == "" {
			return pathPattern{}, false
		}
		if strings.Contains(s, "{") || strings.Contains(s, "}") {
			if !isParamSegment(s) {
				return pathPattern{}, false
			}
		}
	}
	return pathPattern{raw: raw, segments: parts}, true
}

func (p pathPattern) match(path string) bool {
	if p.raw == "" {
		return false
	}
	in := splitPathSegments(path)
	if len(in) != len(p.segments) {
		return false
	}
	for i := range p.segments {
		want := p.segments[i]
		got := in[i]
		if got == "" {
			return false
		}
		if isParamSegment(want) {
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

func splitPathSegments(path string) []string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func isParamSegment(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && len(s) > 2
}
