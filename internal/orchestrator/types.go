package orchestrator

import (
	"go.uber.org/zap"

	"tracker/internal/storage"
	"tracker/internal/tracker"
)

// TextChunkFunc 文本流式回调（由 Provider StreamCallbacks 驱动）
// TextChunkFunc is the text streaming callback (driven by provider stream
// callbacks).
type TextChunkFunc = func(chunk string)

// TrackerUpdateFunc 追踪器更新回调（解析成功后推送；TUI 侧栏用，REPL 可 no-op）
// TrackerUpdateFunc is called after a successful parse; TUI panels subscribe,
// the REPL may no-op.
type TrackerUpdateFunc = func(data *tracker.Data)

// Options 编排器构造参数
// Options configures the orchestrator.
type Options struct {
	Store storage.Store
	Log   *zap.Logger

	// SystemPrompt 叙事人设提示词（置于回复契约之前）
	// SystemPrompt is the narrative persona prompt placed before the reply contract.
	SystemPrompt string
	// ContextTokenLimit 出站消息的 token 预算
	// ContextTokenLimit is the token budget for outgoing messages.
	ContextTokenLimit int
	// MaxItems 清单字段的物品数量上限
	// MaxItems caps items per inventory list.
	MaxItems int
	// AutoUpdate 每条消息后自动请求追踪器更新
	// AutoUpdate requests a tracker update after every message.
	AutoUpdate bool
	// ConfigBasePath /model 持久化的项目目录
	// ConfigBasePath is the project dir for /model persistence.
	ConfigBasePath string
	// Models 可用模型列表（/model 补全用）
	// Models lists the configured models for /model.
	Models []string
}

// ContextStats 当前上下文使用情况
// ContextStats reports current context usage.
type ContextStats struct {
	EstimatedTokens int
	ContextLimit    int
	UsagePercent    float64
	MessageCount    int
}
