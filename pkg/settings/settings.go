// Package settings loads the steward configuration from a config file, the
// environment (STEWARD_*) and command line flags through viper.
package settings

import (
	"strings"
	"time"

	"github.com/go-go-golems/steward/pkg/agent"
	"github.com/go-go-golems/steward/pkg/conversation"
	"github.com/go-go-golems/steward/pkg/inference/engine/openai"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/security"
	"github.com/go-go-golems/steward/pkg/threads"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type LLMSettings struct {
	APIKey      string        `mapstructure:"api-key" yaml:"api-key"`
	BaseURL     string        `mapstructure:"base-url" yaml:"base-url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	VisionModel string        `mapstructure:"vision-model" yaml:"vision-model"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	// Offline answers from a canned script instead of calling the API.
	Offline bool `mapstructure:"offline" yaml:"offline"`
}

type AgentSettings struct {
	MaxIterations       int           `mapstructure:"max-iterations" yaml:"max-iterations"`
	MaxToolRounds       int           `mapstructure:"max-tool-rounds" yaml:"max-tool-rounds"`
	RequireConfirmation bool          `mapstructure:"require-confirmation" yaml:"require-confirmation"`
	Reflection          bool          `mapstructure:"reflection" yaml:"reflection"`
	MaxParallelTools    int           `mapstructure:"max-parallel-tools" yaml:"max-parallel-tools"`
	ToolTimeout         time.Duration `mapstructure:"tool-timeout" yaml:"tool-timeout"`
	PlanMinWords        int           `mapstructure:"plan-min-words" yaml:"plan-min-words"`
	HistoryLimit        int           `mapstructure:"history-limit" yaml:"history-limit"`
	HistoryTokens       int           `mapstructure:"history-tokens" yaml:"history-tokens"`
	AllowedTools        []string      `mapstructure:"allowed-tools" yaml:"allowed-tools"`
	SystemPrompt        string        `mapstructure:"system-prompt" yaml:"system-prompt"`
}

type StoreSettings struct {
	// Driver is memory, sqlite3 or mysql.
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type ThreadSettings struct {
	// Backend is memory or redis.
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	RedisAddr     string        `mapstructure:"redis-addr" yaml:"redis-addr"`
	RedisPassword string        `mapstructure:"redis-password" yaml:"redis-password"`
	RedisDB       int           `mapstructure:"redis-db" yaml:"redis-db"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type ServerSettings struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type ConversationSettings struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type Settings struct {
	LLM          LLMSettings          `mapstructure:"llm" yaml:"llm"`
	Agent        AgentSettings        `mapstructure:"agent" yaml:"agent"`
	Store        StoreSettings        `mapstructure:"store" yaml:"store"`
	Threads      ThreadSettings       `mapstructure:"threads" yaml:"threads"`
	Server       ServerSettings       `mapstructure:"server" yaml:"server"`
	Conversation ConversationSettings `mapstructure:"conversation" yaml:"conversation"`
}

func Default() *Settings {
	ac := agent.DefaultConfig()
	return &Settings{
		LLM: LLMSettings{
			Model:   openai.DefaultModel,
			Timeout: 60 * time.Second,
		},
		Agent: AgentSettings{
			MaxIterations:    ac.MaxIterations,
			MaxToolRounds:    ac.MaxToolRounds,
			Reflection:       ac.Reflection,
			MaxParallelTools: ac.Tools.MaxParallelTools,
			ToolTimeout:      ac.Tools.ExecutionTimeout,
			PlanMinWords:     ac.PlanMinWords,
			HistoryLimit:     ac.HistoryLimit,
			HistoryTokens:    ac.HistoryTokens,
		},
		Store:        StoreSettings{Driver: "memory"},
		Threads:      ThreadSettings{Backend: "memory", TTL: threads.DefaultTTL},
		Server:       ServerSettings{Addr: ":8080"},
		Conversation: ConversationSettings{TTL: conversation.DefaultTTL},
	}
}

// SetDefaults registers the defaults on v so that every key is known to viper,
// which AutomaticEnv needs to resolve nested keys from the environment.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("llm.api-key", d.LLM.APIKey)
	v.SetDefault("llm.base-url", d.LLM.BaseURL)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.vision-model", d.LLM.VisionModel)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.offline", d.LLM.Offline)
	v.SetDefault("agent.max-iterations", d.Agent.MaxIterations)
	v.SetDefault("agent.max-tool-rounds", d.Agent.MaxToolRounds)
	v.SetDefault("agent.require-confirmation", d.Agent.RequireConfirmation)
	v.SetDefault("agent.reflection", d.Agent.Reflection)
	v.SetDefault("agent.max-parallel-tools", d.Agent.MaxParallelTools)
	v.SetDefault("agent.tool-timeout", d.Agent.ToolTimeout)
	v.SetDefault("agent.plan-min-words", d.Agent.PlanMinWords)
	v.SetDefault("agent.history-limit", d.Agent.HistoryLimit)
	v.SetDefault("agent.history-tokens", d.Agent.HistoryTokens)
	v.SetDefault("agent.allowed-tools", d.Agent.AllowedTools)
	v.SetDefault("agent.system-prompt", d.Agent.SystemPrompt)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("threads.backend", d.Threads.Backend)
	v.SetDefault("threads.redis-addr", d.Threads.RedisAddr)
	v.SetDefault("threads.redis-password", d.Threads.RedisPassword)
	v.SetDefault("threads.redis-db", d.Threads.RedisDB)
	v.SetDefault("threads.ttl", d.Threads.TTL)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("conversation.ttl", d.Conversation.TTL)
}

// EnvPrefix is prepended to every environment override, e.g. STEWARD_LLM_API_KEY.
const EnvPrefix = "STEWARD"

// BindEnv lets the environment override any key registered on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load decodes the settings held by v and validates them.
func Load(v *viper.Viper) (*Settings, error) {
	s := Default()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	switch s.Store.Driver {
	case "memory":
	case "sqlite3", "mysql":
		if strings.TrimSpace(s.Store.DSN) == "" {
			return errors.Errorf("store.dsn is required for driver %s", s.Store.Driver)
		}
	default:
		return errors.Errorf("unknown store.driver %q (memory, sqlite3, mysql)", s.Store.Driver)
	}
	switch s.Threads.Backend {
	case "memory":
	case "redis":
		if s.Threads.RedisAddr == "" {
			return errors.New("threads.redis-addr is required for the redis backend")
		}
	default:
		return errors.Errorf("unknown threads.backend %q (memory, redis)", s.Threads.Backend)
	}
	if s.Agent.MaxIterations < 1 {
		return errors.New("agent.max-iterations must be at least 1")
	}
	if s.LLM.BaseURL != "" {
		// self-hosted gateways commonly run on the local network
		opts := security.URLOptions{AllowHTTP: true, AllowLocalNetworks: true}
		if err := security.ValidateURL(s.LLM.BaseURL, opts); err != nil {
			return errors.Wrap(err, "llm.base-url")
		}
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// AgentConfig maps the agent and conversation sections onto agent.Config.
func (s *Settings) AgentConfig() agent.Config {
	tc := tools.DefaultToolConfig().
		WithMaxParallelTools(s.Agent.MaxParallelTools).
		WithExecutionTimeout(s.Agent.ToolTimeout)
	if len(s.Agent.AllowedTools) > 0 {
		tc = tc.WithAllowedTools(append([]string(nil), s.Agent.AllowedTools...))
	}
	return agent.Config{
		MaxIterations:       s.Agent.MaxIterations,
		MaxToolRounds:       s.Agent.MaxToolRounds,
		RequireConfirmation: s.Agent.RequireConfirmation,
		PlanMinWords:        s.Agent.PlanMinWords,
		Reflection:          s.Agent.Reflection,
		SystemPrompt:        s.Agent.SystemPrompt,
		Tools:               tc,
		ConversationTTL:     s.Conversation.TTL,
		HistoryLimit:        s.Agent.HistoryLimit,
		HistoryTokens:       s.Agent.HistoryTokens,
	}
}

func (s *Settings) OpenAIConfig() openai.Config {
	return openai.Config{
		APIKey:      s.LLM.APIKey,
		BaseURL:     s.LLM.BaseURL,
		Model:       s.LLM.Model,
		VisionModel: s.LLM.VisionModel,
		Timeout:     s.LLM.Timeout,
		Temperature: s.LLM.Temperature,
	}
}

func (s *Settings) RedisConfig() threads.RedisConfig {
	return threads.RedisConfig{
		Addr:     s.Threads.RedisAddr,
		Password: s.Threads.RedisPassword,
		DB:       s.Threads.RedisDB,
		TTL:      s.Threads.TTL,
	}
}
