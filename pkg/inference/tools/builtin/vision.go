package builtin

import (
	"context"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/security"
	"github.com/rs/zerolog/log"
)

type analyzeImageInput struct {
	ImageURL string `json:"image_url" jsonschema:"required,description=http(s) URL or data: URL of the image"`
	Prompt   string `json:"prompt,omitempty" jsonschema:"description=What to look for; receipts are summarized by default"`
}

func visionSpecs(deps Deps) []tools.ToolSpec {
	analyzer := deps.Analyzer
	return []tools.ToolSpec{{
		Definition: tools.MustNewTool("analyze_image",
			"Describe an image the user attached, for example to read a receipt before recording an expense.",
			func(ctx context.Context, in analyzeImageInput) tools.Result {
				url := strings.TrimSpace(in.ImageURL)
				if err := security.ValidateImageURL(url); err != nil {
					return tools.Errorf("image_url is not usable: %v", err)
				}
				call, _ := tools.CurrentToolCallFromContext(ctx)
				log.Debug().Str("call_id", call.ID).Bool("data_url", strings.HasPrefix(url, "data:")).Msg("builtin: analyzing image")
				out, err := analyzer.Analyze(ctx, url, in.Prompt)
				if err != nil {
					return tools.Errorf("could not analyze image: %v", err)
				}
				if out == "" {
					return tools.Warning("The image analysis returned no description.")
				}
				return tools.OK(out)
			}),
		Metadata: tools.ToolMetadata{
			Category: tools.CategoryVision,
			Readonly: true,
			Enabled:  true,
			Parameters: []tools.ParameterMetadata{
				{Name: "image_url", Importance: tools.ImportanceCritical, Required: true, OnMissing: tools.OnMissingAskUser, ClarificationPrompt: "Please attach the image."},
				{Name: "prompt", Importance: tools.ImportanceLow, HasDefault: true, DefaultDescription: "describe or read receipt", OnMissing: tools.OnMissingUseDefault},
			},
		},
	}}
}
