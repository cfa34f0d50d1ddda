// Package governance decides whether a replay may load a page or the agent
// may call a tool.
package governance

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Effect is the outcome of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// ToolNavigate is the tool name used for page loads made by the engine.
const ToolNavigate = "navigate"

// Request describes an action to evaluate. Page loads use ToolNavigate with
// the address as URL.
type Request struct {
	Tool      string
	Arguments string
	URL       string
	RunID     string
}

type Result struct {
	Effect Effect
	Reason string
}

func (r Result) Allowed() bool { return r.Effect == EffectAllow }

// PolicyEngine evaluates actions against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// Rules is the declarative form of a DefaultPolicyEngine.
type Rules struct {
	DeniedTools     []string
	DeniedArguments []string
	DeniedURLs      []string
	// AllowedHosts, when non-empty, restricts page loads to these hosts and
	// their subdomains.
	AllowedHosts []string
}

// DefaultPolicyEngine denies by tool name, argument pattern, URL pattern
// and host allow-list; everything else is allowed.
type DefaultPolicyEngine struct {
	DeniedTools  map[string]bool
	DeniedRegex  []*regexp.Regexp
	DeniedURLs   []*regexp.Regexp
	AllowedHosts []string
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedTools: make(map[string]bool),
	}
}

// FromRules builds an engine from r, rejecting invalid patterns.
func FromRules(r Rules) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, t := range r.DeniedTools {
		e.DenyTool(t)
	}
	for _, p := range r.DeniedArguments {
		if err := e.DenyArguments(p); err != nil {
			return nil, err
		}
	}
	for _, p := range r.DeniedURLs {
		if err := e.DenyURL(p); err != nil {
			return nil, err
		}
	}
	for _, h := range r.AllowedHosts {
		e.AllowHost(h)
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.DeniedTools[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("argument pattern %q: %w", pattern, err)
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) DenyURL(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("url pattern %q: %w", pattern, err)
	}
	e.DeniedURLs = append(e.DeniedURLs, re)
	return nil
}

func (e *DefaultPolicyEngine) AllowHost(host string) {
	e.AllowedHosts = append(e.AllowedHosts, strings.ToLower(strings.TrimSpace(host)))
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedTools[req.Tool] {
		return deny("tool %q is restricted by policy", req.Tool), nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return deny("arguments match restricted pattern %s", re), nil
		}
	}

	if req.URL != "" {
		for _, re := range e.DeniedURLs {
			if re.MatchString(req.URL) {
				return deny("url %s matches restricted pattern %s", req.URL, re), nil
			}
		}
		if len(e.AllowedHosts) > 0 && !e.hostAllowed(req.URL) {
			return deny("host of %s is not on the allow-list", req.URL), nil
		}
	}

	return Result{Effect: EffectAllow, Reason: "approved by default policy"}, nil
}

func (e *DefaultPolicyEngine) hostAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range e.AllowedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func deny(format string, args ...any) Result {
	return Result{Effect: EffectDeny, Reason: fmt.Sprintf(format, args...)}
}

// DeniedError is returned by callers that refuse an action on policy
// grounds.
type DeniedError struct {
	Tool   string
	URL    string
	Reason string
}

func (e *DeniedError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("policy denied %s %s: %s", e.Tool, e.URL, e.Reason)
	}
	return fmt.Sprintf("policy denied %s: %s", e.Tool, e.Reason)
}

// Check evaluates req with p and turns a denial into a *DeniedError. A nil
// engine allows everything.
func Check(ctx context.Context, p PolicyEngine, req Request) error {
	if p == nil {
		return nil
	}
	res, err := p.Evaluate(ctx, req)
	if err != nil {
		return fmt.Errorf("evaluate policy: %w", err)
	}
	if !res.Allowed() {
		return &DeniedError{Tool: req.Tool, URL: req.URL, Reason: res.Reason}
	}
	return nil
}
