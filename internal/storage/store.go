// Package storage 基于 SQLite 的持久化：会话、消息、设置键值与追踪器状态槽。
// Package storage persists sessions, messages, the flat settings key-value
// store and the per-session tracker state slot in SQLite.
package storage

import (
	"encoding/json"

	"tracker/internal/chat"
)

// Store 持久化接口，支持多后端
// Store is the persistence interface supporting multiple backends.
type Store interface {
	// Session 操作 / Session operations
	CreateSession(meta SessionMeta) error
	SaveSession(meta SessionMeta) error
	LoadSession(id string) (SessionMeta, error)
	ListSessions() ([]SessionMeta, error)
	DeleteSession(id string) error

	// Message 操作 / Message operations
	SaveMessages(sessionID string, messages []chat.Message) error
	AppendMessages(sessionID string, startSeq int, messages []chat.Message) error
	LoadMessages(sessionID string) ([]chat.Message, error)

	// 设置键值 / Flat settings key-value blobs
	SaveSetting(key string, value json.RawMessage) error
	LoadSetting(key string) (json.RawMessage, error)

	// 追踪器状态槽 / Per-session tracker state slot
	SaveTrackerState(sessionID string, state TrackerState) error
	LoadTrackerState(sessionID string) (TrackerState, bool, error)

	// 生命周期 / Lifecycle
	Close() error
}
