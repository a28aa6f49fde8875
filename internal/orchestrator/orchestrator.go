// Package orchestrator 驱动回合循环：用户消息 → 基线选择 → 模型调用 → 响应解析
// → 基线提交 → 持久化，以及 swipe 重新生成。
// Package orchestrator drives the turn loop: user message, baseline selection,
// provider call, response parse, baseline commit, persistence, plus swipe
// regeneration.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"tracker/internal/chat"
	"tracker/internal/inventory"
	"tracker/internal/parser"
	"tracker/internal/prompt"
	"tracker/internal/provider"
	"tracker/internal/session"
	"tracker/internal/storage"
	"tracker/internal/tracker"
)

// settingsKey 宿主设置存储中的追踪器设置槽
// settingsKey addresses the tracker settings blob in the host settings store.
const settingsKey = "tracker.settings"

// Settings 设置存储里的单个 blob：人设提示词与新会话模板。
// Settings is the single blob kept in the settings store: the persona prompt
// and the template seeded into new sessions.
type Settings struct {
	SystemPrompt string        `json:"systemPrompt"`
	Template     *tracker.Data `json:"trackerData"`
}

type Orchestrator struct {
	provider provider.Provider
	store    storage.Store
	log      *zap.Logger

	codec   *inventory.Codec
	parser  *parser.Parser
	builder *prompt.Builder

	meta     storage.SessionMeta
	messages []chat.Message
	state    *session.State
	template *tracker.Data

	autoUpdate     bool
	systemPrompt   string
	configBasePath string
	models         []string

	onTextChunk     TextChunkFunc
	onTrackerUpdate TrackerUpdateFunc
}

func New(providerClient provider.Provider, opts Options) *Orchestrator {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	codec := inventory.NewCodec(log, opts.MaxItems)
	o := &Orchestrator{
		provider:       providerClient,
		store:          opts.Store,
		log:            log,
		codec:          codec,
		parser:         parser.New(log, codec),
		builder:        prompt.NewBuilder(opts.SystemPrompt, opts.ContextTokenLimit),
		autoUpdate:     opts.AutoUpdate,
		systemPrompt:   strings.TrimSpace(opts.SystemPrompt),
		configBasePath: strings.TrimSpace(opts.ConfigBasePath),
		models:         append([]string(nil), opts.Models...),
	}
	o.loadSettings()
	return o
}

// loadSettings 读取设置 blob；缺失或损坏时播种默认模板并写回。
// loadSettings reads the settings blob; a missing or corrupt blob seeds the
// default template and writes it back.
func (o *Orchestrator) loadSettings() {
	o.template = tracker.DefaultTemplate()
	if o.store == nil {
		return
	}
	raw, err := o.store.LoadSetting(settingsKey)
	if err != nil {
		o.log.Warn("load tracker settings failed, using defaults", zap.Error(err))
		return
	}
	if raw == nil {
		o.saveSettings()
		return
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		o.log.Warn("tracker settings blob corrupt, using defaults", zap.Error(err))
		return
	}
	if s.Template != nil {
		o.template = tracker.EnsureData(s.Template)
	}
	if o.systemPrompt == "" && strings.TrimSpace(s.SystemPrompt) != "" {
		o.systemPrompt = strings.TrimSpace(s.SystemPrompt)
		o.builder = prompt.NewBuilder(o.systemPrompt, o.builder.ContextLimit())
	}
}

func (o *Orchestrator) saveSettings() {
	if o.store == nil {
		return
	}
	data, err := json.Marshal(Settings{SystemPrompt: o.systemPrompt, Template: o.template})
	if err != nil {
		o.log.Warn("marshal tracker settings failed", zap.Error(err))
		return
	}
	if err := o.store.SaveSetting(settingsKey, data); err != nil {
		o.log.Warn("save tracker settings failed", zap.Error(err))
	}
}

// NewSession 创建新会话并以模板播种追踪器状态
// NewSession creates a session and seeds its tracker state from the template.
func (o *Orchestrator) NewSession() (storage.SessionMeta, error) {
	meta := storage.SessionMeta{
		ID:    storage.NewSessionID(),
		Model: o.CurrentModel(),
	}
	if o.store != nil {
		if err := o.store.CreateSession(meta); err != nil {
			return storage.SessionMeta{}, fmt.Errorf("create session: %w", err)
		}
	}
	o.meta = meta
	o.messages = nil
	o.state = session.NewState(o.template.Clone(), o.log)
	o.persist()
	return meta, nil
}

// ResumeSession 恢复会话：重读消息与三份快照（每次切换都从持久层重读）。
// ResumeSession reloads messages and the three snapshots; every session switch
// re-reads from the store.
func (o *Orchestrator) ResumeSession(id string) (storage.SessionMeta, error) {
	if o.store == nil {
		return storage.SessionMeta{}, fmt.Errorf("no store configured")
	}
	meta, err := o.store.LoadSession(id)
	if err != nil {
		return storage.SessionMeta{}, err
	}
	messages, err := o.store.LoadMessages(id)
	if err != nil {
		return storage.SessionMeta{}, err
	}
	state, found, err := o.store.LoadTrackerState(id)
	if err != nil {
		return storage.SessionMeta{}, err
	}

	o.meta = meta
	o.messages = messages
	if found && state.Live != nil {
		o.state = session.NewState(state.Live, o.log)
		o.state.Committed = state.Committed
		o.state.LastGenerated = state.LastGenerated
	} else {
		o.state = session.NewState(o.template.Clone(), o.log)
	}
	return meta, nil
}

func (o *Orchestrator) ListSessions() ([]storage.SessionMeta, error) {
	if o.store == nil {
		return nil, fmt.Errorf("no store configured")
	}
	return o.store.ListSessions()
}

// Meta 当前会话元数据
// Meta returns the current session metadata.
func (o *Orchestrator) Meta() storage.SessionMeta {
	return o.meta
}

// Messages 返回消息副本
// Messages returns a copy of the message history.
func (o *Orchestrator) Messages() []chat.Message {
	return append([]chat.Message(nil), o.messages...)
}

// TrackerData 实时树的深拷贝，供渲染使用
// TrackerData returns a deep copy of the live tree for rendering.
func (o *Orchestrator) TrackerData() *tracker.Data {
	if o.state == nil {
		return o.template.Clone()
	}
	return tracker.EnsureData(o.state.Live).Clone()
}

// State 当前会话状态（测试与 REPL 命令使用）
// State exposes the session state for commands and tests.
func (o *Orchestrator) State() *session.State {
	return o.state
}

func (o *Orchestrator) CurrentModel() string {
	if o.provider == nil {
		return ""
	}
	return o.provider.CurrentModel()
}

func (o *Orchestrator) SetModel(model string) error {
	if o.provider == nil {
		return fmt.Errorf("provider unavailable")
	}
	if err := o.provider.SetModel(model); err != nil {
		return err
	}
	if o.configBasePath != "" {
		if err := o.persistModelChoice(model); err != nil {
			o.log.Warn("persist model choice failed", zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) SetTextStreamCallback(fn TextChunkFunc) {
	o.onTextChunk = fn
}

func (o *Orchestrator) SetTrackerUpdateCallback(fn TrackerUpdateFunc) {
	o.onTrackerUpdate = fn
}

// CurrentContextStats 估算当前上下文用量
// CurrentContextStats estimates current context usage.
func (o *Orchestrator) CurrentContextStats() ContextStats {
	baseline := o.promptBaseline()
	messages, err := o.builder.Messages(o.messages, baseline)
	if err != nil {
		messages = o.messages
	}
	estimated := o.builder.EstimateTokens(messages)
	limit := o.builder.ContextLimit()
	percent := 0.0
	if limit > 0 {
		percent = (float64(estimated) / float64(limit)) * 100
	}
	return ContextStats{
		EstimatedTokens: estimated,
		ContextLimit:    limit,
		UsagePercent:    percent,
		MessageCount:    len(messages),
	}
}

func (o *Orchestrator) promptBaseline() *tracker.Data {
	if o.state == nil {
		o.state = session.NewState(o.template.Clone(), o.log)
	}
	return o.state.PromptBaseline()
}

// ResetTracker 把追踪器重置回模板
// ResetTracker resets the tracker back to the template.
func (o *Orchestrator) ResetTracker() {
	if o.state == nil {
		o.state = session.NewState(o.template.Clone(), o.log)
		return
	}
	o.state.Reset(o.template)
	o.persist()
}

// persist 火忘式持久化：错误只记日志，从不让回合失败。
// persist is fire-and-forget: errors are logged, never fatal to the turn.
func (o *Orchestrator) persist() {
	if o.store == nil || o.meta.ID == "" {
		return
	}
	if strings.TrimSpace(o.meta.Title) == "" {
		o.meta.Title = storage.InferTitle(o.messages)
	}
	o.meta.Model = o.CurrentModel()
	if err := o.store.SaveSession(o.meta); err != nil {
		o.log.Warn("save session failed", zap.Error(err))
	}
	if err := o.store.SaveMessages(o.meta.ID, o.messages); err != nil {
		o.log.Warn("save messages failed", zap.Error(err))
	}
	if o.state != nil {
		state := storage.TrackerState{
			Live:          o.state.Live,
			Committed:     o.state.Committed,
			LastGenerated: o.state.LastGenerated,
		}
		if err := o.store.SaveTrackerState(o.meta.ID, state); err != nil {
			o.log.Warn("save tracker state failed", zap.Error(err))
		}
	}
}

// RunInput 入口：/ 开头走内建命令，否则作为聊天消息运行一个回合。
// RunInput dispatches input: "/"-prefixed runs a built-in command, anything
// else runs a chat turn.
func (o *Orchestrator) RunInput(ctx context.Context, input string, out io.Writer) (string, error) {
	trimmed := strings.TrimSpace(input)
	if cmd, args, ok := parseSlashCommand(trimmed); ok {
		result, err := o.runSlashCommand(ctx, cmd, args, out)
		if err != nil {
			return "", err
		}
		if out != nil && result != "" {
			fmt.Fprintln(out, result)
		}
		return result, nil
	}
	return o.RunTurn(ctx, input, out)
}
