package main

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/replay/internal/agent"
	"github.com/rahul/replay/internal/browser"
	"github.com/rahul/replay/internal/engine"
	"github.com/rahul/replay/internal/governance"
	"github.com/rahul/replay/internal/healing"
	"github.com/rahul/replay/internal/observability"
	"github.com/rahul/replay/internal/oracle"
	"github.com/rahul/replay/internal/store"
	"github.com/rahul/replay/pkg/config"
)

var errNoProvider = errors.New("no enabled provider found in config")

// newModel opens the chat model of the default enabled provider.
func newModel(cfg *config.Config) (llms.Model, error) {
	name, p, ok := cfg.GetDefaultProvider()
	if !ok {
		return nil, errNoProvider
	}
	switch name {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
}

func (a *cli) prompts() *oracle.Prompts {
	return oracle.NewPrompts(a.cfg.Oracle.PromptDir)
}

func (a *cli) newOracle(model llms.Model) *oracle.LLM {
	return oracle.NewLLM(model, a.prompts(), oracle.Options{
		Timeout:           a.cfg.Oracle.Timeout,
		RequestsPerMinute: a.cfg.Oracle.RequestsPerMinute,
	}, a.logger)
}

func (a *cli) newPolicy() (*governance.DefaultPolicyEngine, error) {
	p := a.cfg.Policy
	return governance.FromRules(governance.Rules{
		DeniedTools:     p.DeniedTools,
		DeniedArguments: p.DeniedArguments,
		DeniedURLs:      p.DeniedURLs,
		AllowedHosts:    p.AllowedHosts,
	})
}

// openStore returns nil when no history path is configured.
func (a *cli) openStore() (*store.HistoryStore, error) {
	if a.cfg.Store.Path == "" {
		return nil, nil
	}
	return store.NewHistoryStore(a.cfg.Store.Path)
}

// newEngine wires an engine from the configuration. Without a provider the
// engine still replays; extract and agent steps fail and healing stops
// after the relaxed re-match.
func (a *cli) newEngine() (*engine.Engine, *observability.Registry, error) {
	policy, err := a.newPolicy()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid policy: %w", err)
	}

	b := a.cfg.Browser
	launcher := browser.NewChrome(browser.ChromeOptions{
		Headless:      b.Headless,
		NoSandbox:     b.NoSandbox,
		WindowWidth:   b.WindowWidth,
		WindowHeight:  b.WindowHeight,
		ActionTimeout: b.NavigationTimeout,
		UserAgent:     b.UserAgent,
	}, a.logger)

	status := observability.NewRegistry()
	deps := engine.Deps{
		Launcher: launcher,
		Policy:   policy,
		Events:   observability.NewLogger(a.logger),
		Status:   status,
	}

	model, err := newModel(a.cfg)
	switch {
	case errors.Is(err, errNoProvider):
		a.logger.Warn("No provider configured; oracle and agent are unavailable")
	case err != nil:
		return nil, nil, err
	default:
		deps.Oracle = a.newOracle(model)
		deps.Agent = agent.New(model, a.prompts(), policy, agent.Options{
			MaxSteps:     a.cfg.Agent.MaxSteps,
			MaxPageChars: a.cfg.Oracle.MaxPageChars,
		}, a.logger)
	}

	if a.cfg.Healing.Enabled {
		deps.Healer = healing.New(a.cfg.Healing.AttemptTimeout, a.logger,
			healing.Default(deps.Oracle, deps.Agent, a.cfg.Oracle.MaxPageChars)...)
	}

	e := engine.New(deps, engine.Options{
		StepTimeout:       a.cfg.Engine.StepTimeout,
		DefaultWaitTime:   a.cfg.Engine.DefaultWaitTime,
		MaxConcurrentRuns: a.cfg.Engine.MaxConcurrentRuns,
		MaxPageChars:      a.cfg.Oracle.MaxPageChars,
	}, a.logger)
	return e, status, nil
}
