package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tracker/internal/chat"
	"tracker/internal/tracker"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现
// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		model      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		tracker    TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(session_id, seq)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tracker_state (
		session_id     TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
		live           TEXT NOT NULL DEFAULT '',
		committed      TEXT NOT NULL DEFAULT '',
		last_generated TEXT NOT NULL DEFAULT '',
		updated_at     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Session Operations ---

func (s *SQLiteStore) CreateSession(meta SessionMeta) error {
	now := nowUTC()
	if strings.TrimSpace(meta.CreatedAt) == "" {
		meta.CreatedAt = now
	}
	if strings.TrimSpace(meta.UpdatedAt) == "" {
		meta.UpdatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, title, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		meta.ID, meta.Title, meta.Model, meta.CreatedAt, meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSession(meta SessionMeta) error {
	meta.UpdatedAt = nowUTC()
	_, err := s.db.Exec(`
		UPDATE sessions SET title=?, model=?, updated_at=? WHERE id=?`,
		meta.Title, meta.Model, meta.UpdatedAt, meta.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSession(id string) (SessionMeta, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionMeta{}, fmt.Errorf("session id is empty")
	}
	row := s.db.QueryRow(`
		SELECT id, title, model, created_at, updated_at
		FROM sessions WHERE id=?`, id)

	var meta SessionMeta
	err := row.Scan(&meta.ID, &meta.Title, &meta.Model, &meta.CreatedAt, &meta.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return SessionMeta{}, fmt.Errorf("session not found: %s", id)
		}
		return SessionMeta{}, fmt.Errorf("load session: %w", err)
	}
	return meta, nil
}

func (s *SQLiteStore) ListSessions() ([]SessionMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, title, model, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var meta SessionMeta
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Model, &meta.CreatedAt, &meta.UpdatedAt); err != nil {
			continue
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

func (s *SQLiteStore) DeleteSession(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("session id is empty")
	}
	if _, err := s.db.Exec("DELETE FROM sessions WHERE id=?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// --- Message Operations ---

func (s *SQLiteStore) SaveMessages(sessionID string, messages []chat.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// 清除旧消息 / Clear old messages
	if _, err := tx.Exec("DELETE FROM messages WHERE session_id=?", sessionID); err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}

	if err := insertMessages(tx, sessionID, 0, messages); err != nil {
		return err
	}

	// 更新 session 时间戳 / Update session timestamp
	if _, err := tx.Exec("UPDATE sessions SET updated_at=? WHERE id=?", nowUTC(), sessionID); err != nil {
		return fmt.Errorf("update session timestamp: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) AppendMessages(sessionID string, startSeq int, messages []chat.Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertMessages(tx, sessionID, startSeq, messages); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE sessions SET updated_at=? WHERE id=?", nowUTC(), sessionID); err != nil {
		return fmt.Errorf("update session timestamp: %w", err)
	}
	return tx.Commit()
}

func insertMessages(tx *sql.Tx, sessionID string, startSeq int, messages []chat.Message) error {
	stmt, err := tx.Prepare(`
		INSERT INTO messages (session_id, seq, role, content, tracker, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := nowUTC()
	for i, msg := range messages {
		trackerJSON := ""
		if msg.Tracker != nil {
			data, marshalErr := json.Marshal(msg.Tracker)
			if marshalErr == nil {
				trackerJSON = string(data)
			}
		}
		if _, err := stmt.Exec(sessionID, startSeq+i, msg.Role, msg.Content, trackerJSON, now); err != nil {
			return fmt.Errorf("insert message %d: %w", startSeq+i, err)
		}
	}
	return nil
}

func (s *SQLiteStore) LoadMessages(sessionID string) ([]chat.Message, error) {
	rows, err := s.db.Query(`
		SELECT role, content, tracker
		FROM messages WHERE session_id=? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var msg chat.Message
		var trackerJSON string
		if err := rows.Scan(&msg.Role, &msg.Content, &trackerJSON); err != nil {
			continue
		}
		if trackerJSON != "" {
			var snap tracker.Data
			if err := json.Unmarshal([]byte(trackerJSON), &snap); err == nil {
				msg.Tracker = tracker.EnsureData(&snap)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// --- Settings ---

func (s *SQLiteStore) SaveSetting(key string, value json.RawMessage) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("setting key is empty")
	}
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, string(value), nowUTC())
	if err != nil {
		return fmt.Errorf("save setting %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) LoadSetting(key string) (json.RawMessage, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("setting key is empty")
	}
	row := s.db.QueryRow("SELECT value FROM settings WHERE key=?", key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load setting %q: %w", key, err)
	}
	return json.RawMessage(value), nil
}

// --- Tracker State ---

func (s *SQLiteStore) SaveTrackerState(sessionID string, state TrackerState) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is empty")
	}
	live, err := marshalSnapshot(state.Live)
	if err != nil {
		return err
	}
	committed, err := marshalSnapshot(state.Committed)
	if err != nil {
		return err
	}
	lastGenerated, err := marshalSnapshot(state.LastGenerated)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO tracker_state (session_id, live, committed, last_generated, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			live=excluded.live,
			committed=excluded.committed,
			last_generated=excluded.last_generated,
			updated_at=excluded.updated_at`,
		sessionID, live, committed, lastGenerated, nowUTC())
	if err != nil {
		return fmt.Errorf("save tracker state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadTrackerState(sessionID string) (TrackerState, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return TrackerState{}, false, fmt.Errorf("session id is empty")
	}
	row := s.db.QueryRow(`
		SELECT live, committed, last_generated FROM tracker_state WHERE session_id=?`, sessionID)
	var live, committed, lastGenerated string
	if err := row.Scan(&live, &committed, &lastGenerated); err != nil {
		if err == sql.ErrNoRows {
			return TrackerState{}, false, nil
		}
		return TrackerState{}, false, fmt.Errorf("load tracker state: %w", err)
	}
	state := TrackerState{
		Live:          unmarshalSnapshot(live),
		Committed:     unmarshalSnapshot(committed),
		LastGenerated: unmarshalSnapshot(lastGenerated),
	}
	return state, true, nil
}

func marshalSnapshot(d *tracker.Data) (string, error) {
	if d == nil {
		return "", nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal tracker snapshot: %w", err)
	}
	return string(data), nil
}

// unmarshalSnapshot 损坏的快照按缺失处理；调用方会回退到模板。
// Corrupt snapshots are treated as absent; callers fall back to the template.
func unmarshalSnapshot(raw string) *tracker.Data {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var d tracker.Data
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil
	}
	return tracker.EnsureData(&d)
}

// --- Helpers ---

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
