package modelclient

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// PromptBudgeter bounds a thread-summarisation prompt to a maximum token
// count (spec §4.3's "up to N messages" is a message-count cap; this adds
// the complementary token-count cap a real model call also needs),
// grounded on the teacher's TiktokenTokenizer: lazy encoding init guarded
// by sync.Once, same cl100k_base fallback for unrecognised models.
type PromptBudgeter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewPromptBudgeter builds a budgeter for the given model, falling back to
// cl100k_base when the model isn't one of the recognised OpenAI-family
// names.
func NewPromptBudgeter(model string) *PromptBudgeter {
	return &PromptBudgeter{encoding: encodingForModel(model)}
}

func encodingForModel(model string) string {
	switch {
	case hasPrefix(model, "gpt-4o"):
		return "o200k_base"
	case hasPrefix(model, "gpt-4"), hasPrefix(model, "gpt-3.5"):
		return "cl100k_base"
	default:
		return "cl100k_base"
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (b *PromptBudgeter) init() error {
	b.once.Do(func() {
		enc, err := tiktoken.GetEncoding(b.encoding)
		if err != nil {
			b.initErr = err
			return
		}
		b.enc = enc
	})
	return b.initErr
}

// CountTokens returns the token count of text under this budgeter's
// encoding.
func (b *PromptBudgeter) CountTokens(text string) (int, error) {
	if err := b.init(); err != nil {
		return 0, err
	}
	return len(b.enc.Encode(text, nil, nil)), nil
}

// TruncateToBudget trims messages (oldest-first eviction) until the
// concatenation of their bodies fits within maxTokens, returning the
// surviving suffix. The summariser does not call it: the baseline
// extractor and the refinement prompt are capped by message count only.
func (b *PromptBudgeter) TruncateToBudget(messages []string, maxTokens int) ([]string, error) {
	for len(messages) > 0 {
		total := 0
		for _, m := range messages {
			n, err := b.CountTokens(m)
			if err != nil {
				return nil, err
			}
			total += n
		}
		if total <= maxTokens {
			return messages, nil
		}
		messages = messages[1:]
	}
	return messages, nil
}
