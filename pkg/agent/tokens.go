package agent

import (
	"sync"

	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// messageOverhead approximates the role and separator tokens the chat format adds.
const messageOverhead = 4

var historyCodec = sync.OnceValue(func() tokenizer.Codec {
	c, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("agent: cl100k codec unavailable, estimating tokens")
		return nil
	}
	return c
})

// countTokens returns the cl100k token count of text, or a four bytes per token
// estimate when the codec cannot be loaded.
func countTokens(text string) int {
	if text == "" {
		return 0
	}
	if c := historyCodec(); c != nil {
		if ids, _, err := c.Encode(text); err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}

func messageTokens(m engine.Message) int {
	n := messageOverhead + countTokens(m.Content)
	for _, c := range m.ToolCalls {
		n += countTokens(c.Name) + countTokens(string(c.Arguments))
	}
	return n
}
