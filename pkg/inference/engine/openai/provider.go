package openai

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string

	// Timeout bounds one invocation, including the whole stream. Zero means no bound.
	Timeout     time.Duration
	Temperature float32
}

// Provider streams chat completions with native tool calling.
type Provider struct {
	client *go_openai.Client
	cfg    Config
}

var _ engine.Provider = (*Provider)(nil)

func newClient(cfg Config) (*go_openai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.Wrap(engine.ErrUnavailable, "no API key configured")
	}
	config := go_openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return go_openai.NewClientWithConfig(config), nil
}

func NewProvider(cfg Config) (*Provider, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Provider{client: client, cfg: cfg}, nil
}

func (p *Provider) Invoke(ctx context.Context, messages []engine.Message, specs []engine.ToolSpec, onDelta engine.DeltaFunc) (engine.Decision, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	req := go_openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: p.cfg.Temperature,
		Stream:      true,
	}
	if len(specs) > 0 {
		req.Tools = toOpenAITools(specs)
		req.ToolChoice = "auto"
	}

	log.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Msg("openai: starting stream")

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return engine.Decision{}, errors.Wrap(err, "openai: create stream")
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn().Err(err).Msg("openai: failed to close stream")
		}
	}()

	var message strings.Builder
	merger := NewToolCallMerger()
	chunks := 0
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return engine.Decision{}, ctx.Err()
			}
			log.Error().Err(err).Int("chunks", chunks).Msg("openai: stream receive failed")
			return engine.Decision{}, errors.Wrap(err, "openai: receive")
		}
		chunks++
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]
		if delta := choice.Delta.Content; delta != "" {
			message.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		if len(choice.Delta.ToolCalls) > 0 {
			merger.AddToolCalls(choice.Delta.ToolCalls)
		}
	}

	calls := merger.GetToolCalls()
	log.Debug().
		Int("chunks", chunks).
		Int("text_length", message.Len()).
		Int("tool_calls", len(calls)).
		Msg("openai: stream complete")

	if len(calls) > 0 {
		return engine.ToolCallsDecision(toEngineToolCalls(calls)), nil
	}
	return engine.ContentDecision(message.String()), nil
}
