package cmds

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/steward/pkg/inference/engine"
)

// offlineProvider stands in for a language model. Asked to plan (no tools offered),
// it proposes a single step; otherwise it explains that no model is configured.
func offlineProvider() engine.Provider {
	return engine.ProviderFunc(func(ctx context.Context, messages []engine.Message, specs []engine.ToolSpec, onDelta engine.DeltaFunc) (engine.Decision, error) {
		if err := ctx.Err(); err != nil {
			return engine.Decision{}, err
		}
		request := lastUserMessage(messages)
		if len(specs) == 0 {
			b, err := json.Marshal(map[string]any{"goal": request, "steps": []string{request}})
			if err != nil {
				return engine.Decision{}, err
			}
			return engine.ContentDecision(string(b)), nil
		}
		text := fmt.Sprintf("Offline mode: no language model is configured, so I cannot act on %q. %d tools are available once llm.api-key is set.", request, len(specs))
		if onDelta != nil {
			onDelta(text)
		}
		return engine.ContentDecision(text), nil
	})
}

func lastUserMessage(messages []engine.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == engine.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
