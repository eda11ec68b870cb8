package usage

import (
	"sync"

	"github.com/jimeng-relay/storyvideo/internal/prompt"
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const fallbackEncoding = "cl100k_base"

// TextCostPerMillionTokens prices text-generation work recorded for storyboard
// fallbacks.
const TextCostPerMillionTokens = 0.30

func EstimateTextCost(tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) * TextCostPerMillionTokens / 1_000_000
}

var useOfflineLoader sync.Once

// TokenCounter counts tokens with a cached tiktoken encoding per model. Unknown
// models use cl100k_base; when no encoding can be loaded it falls back to the
// chars/4 estimate. BPE ranks come from the embedded offline loader, and a
// failed load is remembered so it is attempted once per model.
type TokenCounter struct {
	load func(model string) (*tiktoken.Tiktoken, error)

	mu sync.RWMutex
	// cache holds nil for models whose encoding failed to load.
	cache map[string]*tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter {
	useOfflineLoader.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	return &TokenCounter{load: loadEncoding, cache: make(map[string]*tiktoken.Tiktoken)}
}

func loadEncoding(model string) (*tiktoken.Tiktoken, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return tiktoken.GetEncoding(fallbackEncoding)
	}
	return tkm, nil
}

func (c *TokenCounter) Count(text, model string) int {
	if text == "" {
		return 0
	}
	tkm := c.encoding(model)
	if tkm == nil {
		return prompt.EstimateTokens(text)
	}
	return len(tkm.Encode(text, nil, nil))
}

func (c *TokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.RLock()
	tkm, ok := c.cache[model]
	c.mu.RUnlock()
	if ok {
		return tkm
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tkm, ok := c.cache[model]; ok {
		return tkm
	}
	tkm, err := c.load(model)
	if err != nil {
		tkm = nil
	}
	c.cache[model] = tkm
	return tkm
}
