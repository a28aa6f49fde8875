// Package chat 聊天消息类型
// Package chat holds the chat message types shared across the core.
package chat

import "tracker/internal/tracker"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 一条聊天消息；Tracker 是宿主消息元数据槽：该条回复解析出的追踪快照。
// Message is one chat message. Tracker is the per-message metadata slot: the
// tracker snapshot reconciled from this reply, when one was parsed.
type Message struct {
	Role    string        `json:"role"`
	Content string        `json:"content"`
	Tracker *tracker.Data `json:"tracker,omitempty"`
}
