// Package cmds holds the steward subcommands and the wiring they share.
package cmds

import (
	"context"

	"github.com/go-go-golems/steward/pkg/agent"
	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/go-go-golems/steward/pkg/inference/engine/openai"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/inference/tools/builtin"
	"github.com/go-go-golems/steward/pkg/settings"
	"github.com/go-go-golems/steward/pkg/store"
	"github.com/go-go-golems/steward/pkg/store/memory"
	"github.com/go-go-golems/steward/pkg/store/sqlstore"
	"github.com/go-go-golems/steward/pkg/threads"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// App is everything a command needs, built from the loaded settings.
type App struct {
	Settings *settings.Settings
	Store    store.Store
	Threads  threads.Store
	Registry *tools.Registry
	// Provider is nil when no API key is configured and offline mode is off.
	Provider engine.Provider
	Agent    *agent.Orchestrator
}

// loadSettings reads the settings from the global viper instance.
func loadSettings() (*settings.Settings, error) {
	return settings.Load(viper.GetViper())
}

// verboseEvents makes the event router log at debug level too.
func verboseEvents() bool {
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}

func NewApp(ctx context.Context, s *settings.Settings) (*App, error) {
	st, err := openStore(ctx, s.Store)
	if err != nil {
		return nil, err
	}
	th, err := openThreads(ctx, s)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	provider, analyzer, err := newProvider(s)
	if err != nil {
		log.Debug().Err(err).Msg("steward: no language model available")
	}

	reg := tools.NewRegistry()
	n, err := builtin.Register(reg, builtin.Deps{Store: st, Analyzer: analyzer}, tools.DefaultRegisterOptions())
	if err != nil {
		_ = st.Close()
		_ = th.Close()
		return nil, err
	}
	log.Debug().Int("tools", n).Str("store", s.Store.Driver).Str("threads", s.Threads.Backend).Msg("steward: registered tools")

	cfg := s.AgentConfig()
	if s.LLM.Offline {
		cfg = cfg.WithReflection(false)
	}
	opts := []agent.Option{
		agent.WithRegistry(reg),
		agent.WithConfig(cfg),
		agent.WithThreadStore(th),
	}
	if provider != nil {
		opts = append(opts, agent.WithProvider(provider))
	}

	return &App{
		Settings: s,
		Store:    st,
		Threads:  th,
		Registry: reg,
		Provider: provider,
		Agent:    agent.New(opts...),
	}, nil
}

// RequireProvider fails with a hint when no language model is configured.
func (a *App) RequireProvider() error {
	if a.Provider == nil {
		return errors.Wrap(agent.ErrProviderUnavailable, "set llm.api-key (STEWARD_LLM_API_KEY or --openai-api-key) or use --offline")
	}
	return nil
}

func (a *App) Close() error {
	var first error
	closers := []struct {
		name string
		c    interface{ Close() error }
	}{{"threads", a.Threads}, {"store", a.Store}}
	for _, c := range closers {
		if err := c.c.Close(); err != nil {
			log.Warn().Err(err).Str("component", c.name).Msg("steward: close failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func openStore(ctx context.Context, s settings.StoreSettings) (store.Store, error) {
	switch s.Driver {
	case "", "memory":
		return memory.New(), nil
	default:
		st, err := sqlstore.Open(ctx, sqlstore.Config{Driver: s.Driver, DSN: s.DSN})
		if err != nil {
			return nil, errors.Wrap(err, "open record store")
		}
		return st, nil
	}
}

func openThreads(ctx context.Context, s *settings.Settings) (threads.Store, error) {
	switch s.Threads.Backend {
	case "redis":
		th, err := threads.NewRedisStore(ctx, s.RedisConfig())
		if err != nil {
			return nil, errors.Wrap(err, "open thread store")
		}
		return th, nil
	default:
		return threads.NewMemoryStore(threads.WithTTL(s.Threads.TTL)), nil
	}
}

func newProvider(s *settings.Settings) (engine.Provider, engine.ImageAnalyzer, error) {
	if s.LLM.Offline {
		return offlineProvider(), nil, nil
	}
	cfg := s.OpenAIConfig()
	p, err := openai.NewProvider(cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := openai.NewImageAnalyzer(cfg)
	if err != nil {
		return p, nil, err
	}
	return p, a, nil
}
