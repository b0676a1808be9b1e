package agent

import (
	"time"

	"github.com/go-go-golems/steward/pkg/conversation"
	"github.com/go-go-golems/steward/pkg/inference/tools"
)

// Config bounds and shapes one turn of the state machine.
type Config struct {
	// MaxIterations is the number of Agent passes a turn may start, reflection retries included.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// MaxToolRounds caps Agent→Tools→Agent round trips within one pass.
	MaxToolRounds int `json:"max_tool_rounds" yaml:"max_tool_rounds"`
	// RequireConfirmation turns batches with mutating calls into a plan or pending action.
	RequireConfirmation bool `json:"require_confirmation" yaml:"require_confirmation"`
	// PlanMinWords is the request length from which Planning asks the LLM for a plan.
	PlanMinWords int  `json:"plan_min_words" yaml:"plan_min_words"`
	Reflection   bool `json:"reflection" yaml:"reflection"`
	// SystemPrompt replaces the built-in assistant prompt when set.
	SystemPrompt    string           `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Tools           tools.ToolConfig `json:"tools" yaml:"tools"`
	ConversationTTL time.Duration    `json:"conversation_ttl" yaml:"conversation_ttl"`
	// HistoryLimit is the number of stored messages replayed into a turn; 0 keeps all.
	HistoryLimit int `json:"history_limit" yaml:"history_limit"`
	// HistoryTokens caps the replayed history by its cl100k token count; 0 disables the cap.
	HistoryTokens int `json:"history_tokens" yaml:"history_tokens"`
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:   2,
		MaxToolRounds:   4,
		PlanMinWords:    8,
		Reflection:      true,
		Tools:           tools.DefaultToolConfig(),
		ConversationTTL: conversation.DefaultTTL,
		HistoryLimit:    40,
		HistoryTokens:   6000,
	}
}

func (c Config) WithMaxIterations(n int) Config {
	c.MaxIterations = n
	return c
}

func (c Config) WithRequireConfirmation(b bool) Config {
	c.RequireConfirmation = b
	return c
}

func (c Config) WithReflection(b bool) Config {
	c.Reflection = b
	return c
}

func (c Config) WithToolConfig(tc tools.ToolConfig) Config {
	c.Tools = tc
	return c
}

// normalized fills zero values with defaults.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = d.MaxToolRounds
	}
	if c.PlanMinWords <= 0 {
		c.PlanMinWords = d.PlanMinWords
	}
	if c.ConversationTTL <= 0 {
		c.ConversationTTL = d.ConversationTTL
	}
	if c.Tools.MaxParallelTools <= 0 {
		c.Tools.MaxParallelTools = d.Tools.MaxParallelTools
	}
	return c
}
