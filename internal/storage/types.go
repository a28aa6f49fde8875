package storage

import (
	"strings"

	"tracker/internal/chat"
	"tracker/internal/tracker"
)

// SessionMeta 会话元数据
// SessionMeta holds session metadata.
type SessionMeta struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TrackerState 每会话的追踪器元数据槽：三份快照整体读写。
// TrackerState is the per-session tracker metadata slot. The three snapshots
// are read and written as one blob.
type TrackerState struct {
	Live          *tracker.Data `json:"live"`
	Committed     *tracker.Data `json:"committed,omitempty"`
	LastGenerated *tracker.Data `json:"lastGenerated,omitempty"`
}

// InferTitle 从第一条非空用户消息推断会话标题
// InferTitle derives a session title from the first non-empty user message.
func InferTitle(messages []chat.Message) string {
	for _, msg := range messages {
		if msg.Role != chat.RoleUser {
			continue
		}
		t := strings.TrimSpace(msg.Content)
		if t == "" {
			continue
		}
		runes := []rune(t)
		if len(runes) > 48 {
			return string(runes[:48]) + "..."
		}
		return t
	}
	return "new session"
}
