package prompt

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"tracker/internal/chat"
)

// Tokenizer 精确 token 计数器，tiktoken 不可用时回退到启发式
// Tokenizer provides precise token counting with tiktoken and a heuristic
// fallback when BPE data is unavailable.
type Tokenizer struct {
	encoder  *tiktoken.Tiktoken
	fallback bool
	mu       sync.RWMutex
}

var (
	defaultTokenizer     *Tokenizer
	defaultTokenizerOnce sync.Once
)

// DefaultTokenizer 返回全局默认 tokenizer
// DefaultTokenizer returns the global default tokenizer instance.
func DefaultTokenizer() *Tokenizer {
	defaultTokenizerOnce.Do(func() {
		defaultTokenizer = NewTokenizer("cl100k_base")
	})
	return defaultTokenizer
}

// NewTokenizer 创建 tokenizer；离线环境可能没有 BPE 缓存，此时回退启发式
// NewTokenizer creates a tokenizer. Offline environments may lack the BPE
// cache; counting then falls back to the heuristic.
func NewTokenizer(encodingName string) *Tokenizer {
	t := &Tokenizer{}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		t.fallback = true
		return t
	}
	t.encoder = enc
	return t
}

// Count 计算消息列表的总 token 数
// Count returns the total token count for a message list.
func (t *Tokenizer) Count(messages []chat.Message) int {
	total := 0
	for _, msg := range messages {
		total += t.CountMessage(msg)
	}
	return total
}

// CountMessage 单条消息的 token 数，含每条约 4 token 的结构开销
// CountMessage counts one message including the ~4 token per-message overhead.
func (t *Tokenizer) CountMessage(msg chat.Message) int {
	return 4 + t.CountText(msg.Role) + t.CountText(msg.Content)
}

// CountText 单个文本的 token 数
// CountText counts tokens for a single text string.
func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicTokenCount(text)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// IsPrecise 是否精确计数
// IsPrecise reports whether precise counting is available.
func (t *Tokenizer) IsPrecise() bool {
	return !t.fallback
}

// heuristicTokenCount CJK 约 1.5 token/字，ASCII 约 4 字符/token
// CJK characters weigh ~1.5 tokens each, ASCII ~4 chars per token.
func heuristicTokenCount(text string) int {
	cjk := 0
	other := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	estimate := int(float64(cjk)*1.5 + float64(other)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF) ||
		(r >= 0xAC00 && r <= 0xD7AF)
}
