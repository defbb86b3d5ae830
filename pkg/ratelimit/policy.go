package ratelimit

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Rule applies a Config to every path under Prefix
type Rule struct {
	Prefix string `json:"prefix"`
	Config Config `json:"config"`
}

type policyRule struct {
	prefix  string
	limiter *Limiter
}

// Policy selects the limiter guarding a request path. The rule with the
// longest matching prefix wins; unmatched paths use the default limiter.
type Policy struct {
	fallback *Limiter
	rules    []policyRule
	exempt   []string
}

// NewPolicy builds one limiter per rule, all sharing store and opts.
// Paths under an exempt prefix are never limited.
func NewPolicy(store Store, defaults Config, rules []Rule, exempt []string, opts ...Option) (*Policy, error) {
	fallback, err := NewLimiter(store, defaults, opts...)
	if err != nil {
		return nil, fmt.Errorf("default rule: %w", err)
	}

	p := &Policy{fallback: fallback}
	for _, rule := range rules {
		limiter, err := NewLimiter(store, rule.Config, opts...)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Prefix, err)
		}
		limiter.rule = cleanPrefix(rule.Prefix)
		p.rules = append(p.rules, policyRule{prefix: limiter.rule, limiter: limiter})
	}
	for _, prefix := range exempt {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			p.exempt = append(p.exempt, cleanPrefix(prefix))
		}
	}

	// Longest prefix first
	sort.SliceStable(p.rules, func(i, j int) bool {
		return len(p.rules[i].prefix) > len(p.rules[j].prefix)
	})

	return p, nil
}

// Match returns the limiter for path. The boolean is false for exempt paths.
func (p *Policy) Match(path string) (*Limiter, bool) {
	for _, prefix := range p.exempt {
		if matchesPrefix(path, prefix) {
			return nil, false
		}
	}

	for _, rule := range p.rules {
		if matchesPrefix(path, rule.prefix) {
			return rule.limiter, true
		}
	}

	return p.fallback, true
}

// Enabled reports whether the policy has a backing store
func (p *Policy) Enabled() bool {
	return p.fallback.Enabled()
}

// Guard checks r against its matching limiter and returns the 429 response
// to send, or nil when the request may proceed.
func (p *Policy) Guard(r *http.Request) *Response {
	limiter, ok := p.Match(r.URL.Path)
	if !ok {
		return nil
	}

	result := limiter.Check(r.Context(), p.Request(r))
	if result.Admitted() {
		return nil
	}
	return limiter.Reject(result.Info)
}

// Request builds the rate limit request for r with a normalised path.
// Trailing slashes are dropped so "/a/" and "/a" share one bucket.
func (p *Policy) Request(r *http.Request) Request {
	req := RequestFromHTTP(r)
	if trimmed := strings.TrimRight(req.Path, "/"); trimmed != "" {
		req.Path = trimmed
	} else if req.Path != "" {
		req.Path = "/"
	}
	req.Path = NormalizePath(req.Path)
	return req
}

// matchesPrefix reports whether path equals prefix or lies below it
func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

func cleanPrefix(prefix string) string {
	if prefix == "" || prefix == "/" {
		return "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}

// NormalizePath replaces dynamic id segments with "*" so that requests to
// different resources of the same route share a bucket
func NormalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if isID(segment) {
			segments[i] = "*"
		}
	}
	return strings.Join(segments, "/")
}

// isID checks if a segment looks like a numeric id, a UUID or an ObjectID
func isID(s string) bool {
	if s == "" {
		return false
	}

	// MongoDB style ObjectID: 24 hex characters
	if len(s) == 24 && isHex(s) {
		return true
	}

	// UUID: 8-4-4-4-12 hex characters
	if len(s) == 36 && s[8] == '-' && s[13] == '-' && s[18] == '-' && s[23] == '-' {
		return isHex(strings.ReplaceAll(s, "-", ""))
	}

	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
