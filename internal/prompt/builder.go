package prompt

import (
	"fmt"
	"strings"

	"tracker/internal/chat"
	"tracker/internal/tracker"
)

// defaultContract 模型回复契约：以单个 ```json 围栏块完整复述追踪器开头。
// The reply contract: begin with a single fenced json block restating the
// complete tracker, then continue with narrative text.
const defaultContract = `You are also maintaining a story tracker for this chat.
The current tracker state follows as JSON. Every field carries a "prompt"
describing how to update its "value".

Begin your reply with a single fenced ` + "```json" + ` block containing the
complete tracker in exactly the same shape, with every section, subsection and
field restated by name and each value updated per its prompt. After the block,
continue with your narrative response.

Current tracker state:`

// Builder 组装带基线载荷的消息列表并做出站前的历史裁剪
// Builder assembles the outgoing message list with the baseline payload and
// trims history before dispatch.
type Builder struct {
	tokenizer    *Tokenizer
	systemPrompt string
	contextLimit int
}

func NewBuilder(systemPrompt string, contextLimit int) *Builder {
	if contextLimit <= 0 {
		contextLimit = 16000
	}
	return &Builder{
		tokenizer:    DefaultTokenizer(),
		systemPrompt: strings.TrimSpace(systemPrompt),
		contextLimit: contextLimit,
	}
}

// Messages 构造出站消息：系统提示（含基线载荷与回复契约）+ 预算内的历史。
// Messages builds the outgoing list: the system prompt (persona, reply
// contract and baseline payload) followed by as much history as the budget
// allows.
func (b *Builder) Messages(history []chat.Message, baseline *tracker.Data) ([]chat.Message, error) {
	payload, err := BuildPayload(baseline)
	if err != nil {
		return nil, fmt.Errorf("build tracker payload: %w", err)
	}

	var sys strings.Builder
	if b.systemPrompt != "" {
		sys.WriteString(b.systemPrompt)
		sys.WriteString("\n\n")
	}
	sys.WriteString(defaultContract)
	sys.WriteString("\n")
	sys.WriteString(string(payload))

	out := []chat.Message{{Role: chat.RoleSystem, Content: sys.String()}}
	out = append(out, b.trimHistory(out[0], history)...)
	return out, nil
}

// trimHistory 超出上下文预算时从最旧的消息开始丢弃
// trimHistory drops oldest messages first when the estimate exceeds the
// context budget.
func (b *Builder) trimHistory(system chat.Message, history []chat.Message) []chat.Message {
	budget := b.contextLimit - b.tokenizer.CountMessage(system)
	if budget <= 0 {
		return nil
	}
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := b.tokenizer.CountMessage(history[i])
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}
	return append([]chat.Message(nil), history[start:]...)
}

// EstimateTokens 估算一组消息的 token 数
// EstimateTokens estimates the token count of a message list.
func (b *Builder) EstimateTokens(messages []chat.Message) int {
	return b.tokenizer.Count(messages)
}

// ContextLimit 返回上下文预算
// ContextLimit returns the context budget.
func (b *Builder) ContextLimit() int {
	return b.contextLimit
}
