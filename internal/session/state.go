// Package session 持有单个聊天会话的追踪器状态机：三份快照（实时编辑树、
// 最近一次生成结果、已提交基线）加上 swipe 与生成中标志。
// Package session holds the per-chat tracker state machine: three snapshots
// (live user-editable tree, last generated result, committed baseline) plus
// the swipe and in-flight flags.
package session

import (
	"errors"

	"go.uber.org/zap"

	"tracker/internal/tracker"
)

// ErrGenerationInProgress 同一会话同时只允许一次追踪器生成
// ErrGenerationInProgress reports that a tracker generation is already in
// flight; at most one generation runs per session at a time.
var ErrGenerationInProgress = errors.New("tracker generation already in progress")

// State 显式会话状态；通过引用传入解析与状态机函数，避免模块级可变单例。
// State is the explicit session state passed by reference into parser and
// state-machine call sites instead of module-level mutable bindings.
type State struct {
	// Live 实时、可被用户编辑的树 / the live, user-editable tree
	Live *tracker.Data
	// LastGenerated 最近一次模型产出，未必可信为基线
	// the most recent model output, not yet necessarily trusted as baseline
	LastGenerated *tracker.Data
	// Committed 将嵌入下一次出站提示词的基线快照
	// the snapshot embedded in the next outgoing prompt
	Committed *tracker.Data

	lastActionWasSwipe bool
	generating         bool

	log *zap.Logger
}

func NewState(live *tracker.Data, log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	return &State{Live: tracker.EnsureData(live), log: log}
}

// NoteMessageSent 新消息事件：清除 swipe 标记
// NoteMessageSent records a fresh message-sent event, clearing the swipe flag.
func (s *State) NoteMessageSent() {
	s.lastActionWasSwipe = false
}

// NoteSwipe swipe 事件本身不触发生成，只做标记
// NoteSwipe records a swipe event; it marks the state without itself
// triggering a generation.
func (s *State) NoteSwipe() {
	s.lastActionWasSwipe = true
}

// BeginGeneration 协作式互斥：已在生成中则拒绝（记录日志），不排队也不取消。
// BeginGeneration is the cooperative mutex: entering while a generation is in
// flight is refused and logged; the second request neither queues nor cancels
// the first.
func (s *State) BeginGeneration() error {
	if s.generating {
		s.log.Warn("tracker generation refused, one already in flight")
		return ErrGenerationInProgress
	}
	s.generating = true
	return nil
}

// FinishGeneration 离开生成态：无论成败都复位 generating 与 swipe 标记
// FinishGeneration leaves the generating state. Both flags reset regardless
// of success or failure.
func (s *State) FinishGeneration() {
	s.generating = false
	s.lastActionWasSwipe = false
}

// Generating 是否有生成在途
// Generating reports whether a generation is in flight.
func (s *State) Generating() bool {
	return s.generating
}

// LastActionWasSwipe 返回 swipe 标记
// LastActionWasSwipe reports the swipe flag.
func (s *State) LastActionWasSwipe() bool {
	return s.lastActionWasSwipe
}

// PromptBaseline 选择嵌入出站提示词的快照：有已提交基线用基线，否则用实时树。
// 返回深拷贝，调用方可安全改写。
// PromptBaseline selects the snapshot embedded in the outgoing prompt: the
// committed baseline when one exists, the live tree otherwise. Returns a deep
// clone safe for the caller to mutate.
func (s *State) PromptBaseline() *tracker.Data {
	if s.Committed != nil {
		return s.Committed.Clone()
	}
	return tracker.EnsureData(s.Live).Clone()
}

// ApplyResult 提交一次成功解析的结果。实时树与 LastGenerated 都换成新快照
// （各自深拷贝，基线与实时编辑状态之间无别名）。基线提交规则：非 swipe 触发
// 时新结果成为基线；swipe 触发时保留旧基线，除非尚无基线（首次生成），此时
// 立即播种。
// ApplyResult commits a successfully parsed result. The live tree and
// LastGenerated are replaced with the new snapshot (independently deep-cloned;
// no aliasing between baseline and live-edit state). Baseline commit rule: a
// non-swipe action promotes the result to the committed baseline; a swipe
// retains the previous baseline unless none exists yet (first-ever
// generation), in which case it is seeded immediately.
func (s *State) ApplyResult(result *tracker.Data) {
	if result == nil {
		return
	}
	result = tracker.EnsureData(result)
	s.Live = result.Clone()
	s.LastGenerated = result.Clone()
	if !s.lastActionWasSwipe || s.Committed == nil {
		s.Committed = result.Clone()
	}
}

// Reset 显式重置或切换会话时回到初始模板
// Reset returns to the given template on explicit user reset or session
// switch.
func (s *State) Reset(template *tracker.Data) {
	s.Live = tracker.EnsureData(template).Clone()
	s.LastGenerated = nil
	s.Committed = nil
	s.lastActionWasSwipe = false
	s.generating = false
}
