package openai

import (
	"context"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

const defaultImagePrompt = "Describe this image. If it is a receipt, list the merchant, date, items and total."

// ImageAnalyzer describes images with a vision-capable chat model.
type ImageAnalyzer struct {
	client *go_openai.Client
	cfg    Config
}

var _ engine.ImageAnalyzer = (*ImageAnalyzer)(nil)

func NewImageAnalyzer(cfg Config) (*ImageAnalyzer, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = DefaultModel
	}
	return &ImageAnalyzer{client: client, cfg: cfg}, nil
}

func (a *ImageAnalyzer) Analyze(ctx context.Context, imageURL string, prompt string) (string, error) {
	if strings.TrimSpace(imageURL) == "" {
		return "", errors.New("image url is empty")
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultImagePrompt
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	resp, err := a.client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model: a.cfg.VisionModel,
		Messages: []go_openai.ChatCompletionMessage{{
			Role: go_openai.ChatMessageRoleUser,
			MultiContent: []go_openai.ChatMessagePart{
				{Type: go_openai.ChatMessagePartTypeText, Text: prompt},
				{
					Type: go_openai.ChatMessagePartTypeImageURL,
					ImageURL: &go_openai.ChatMessageImageURL{
						URL:    imageURL,
						Detail: go_openai.ImageURLDetailAuto,
					},
				},
			},
		}},
	})
	if err != nil {
		return "", errors.Wrap(err, "openai: analyze image")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: analyze image: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
