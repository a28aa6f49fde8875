package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"tracker/internal/chat"
	"tracker/internal/provider"
	"tracker/internal/session"
)

// RunTurn 运行一个聊天回合。启用自动更新时出站提示词携带基线载荷并解析回显；
// 否则作为纯叙事聊天。
// RunTurn runs one chat turn. With auto-update enabled the outgoing prompt
// carries the baseline payload and the reply is parsed; otherwise the turn is
// plain narrative chat.
func (o *Orchestrator) RunTurn(ctx context.Context, userInput string, out io.Writer) (string, error) {
	if o.state == nil {
		o.state = session.NewState(o.template.Clone(), o.log)
	}
	o.state.NoteMessageSent()
	if !o.autoUpdate {
		return o.runPlainTurn(ctx, userInput, out)
	}
	return o.generate(ctx, userInput, out)
}

// Swipe 重新生成上一条助手回复。swipe 不推进基线：解析结果替换实时树，但旧
// 基线保留（除非尚无基线）。
// Swipe regenerates the last assistant reply. A swipe does not advance the
// baseline: the parsed result replaces the live tree while the previous
// committed baseline is retained (unless none exists yet).
func (o *Orchestrator) Swipe(ctx context.Context, out io.Writer) (string, error) {
	if o.state == nil {
		o.state = session.NewState(o.template.Clone(), o.log)
	}
	last := len(o.messages) - 1
	if last < 0 || o.messages[last].Role != chat.RoleAssistant {
		return "", fmt.Errorf("no assistant reply to regenerate")
	}

	o.state.NoteSwipe()
	dropped := o.messages[last]
	o.messages = o.messages[:last]

	text, err := o.generate(ctx, "", out)
	if err != nil {
		// 失败时恢复被丢弃的回复，避免丢数据。
		// Restore the dropped reply on failure so no data is lost.
		o.messages = append(o.messages, dropped)
		return "", err
	}
	return text, nil
}

// ForceUpdate 按需请求一次追踪器更新（自动更新关闭时从 /tracker update 进入）。
// ForceUpdate requests a tracker update on demand, used when auto-update is
// off. It counts as a baseline-advancing turn, not a swipe.
func (o *Orchestrator) ForceUpdate(ctx context.Context, out io.Writer) (string, error) {
	if o.state == nil {
		o.state = session.NewState(o.template.Clone(), o.log)
	}
	if len(o.messages) == 0 {
		return "", fmt.Errorf("no conversation to update from")
	}
	o.state.NoteMessageSent()
	return o.generate(ctx, "", out)
}

// generate 共享的生成路径：互斥 → 基线载荷 → 模型调用 → 解析 → 提交 → 持久化。
// generate is the shared generation path: mutex, baseline payload, provider
// call, parse, commit, persist.
func (o *Orchestrator) generate(ctx context.Context, userInput string, out io.Writer) (string, error) {
	if err := o.state.BeginGeneration(); err != nil {
		return "", err
	}
	defer o.state.FinishGeneration()

	if strings.TrimSpace(userInput) != "" {
		o.messages = append(o.messages, chat.Message{Role: chat.RoleUser, Content: userInput})
	}

	baseline := o.state.PromptBaseline()
	outgoing, err := o.builder.Messages(o.messages, baseline)
	if err != nil {
		return "", fmt.Errorf("assemble prompt: %w", err)
	}

	resp, err := o.chat(ctx, outgoing)
	if err != nil {
		o.persist()
		return "", err
	}

	// 解析以出站基线为协调模板；未回显的节点被丢弃。
	// The reply reconciles against the baseline that went out; unechoed nodes
	// are dropped.
	result := o.parser.ParseResponse(resp.Content, baseline)
	display := result.CleanedText

	assistant := chat.Message{Role: chat.RoleAssistant, Content: display}
	if result.Tracker != nil {
		o.state.ApplyResult(result.Tracker)
		assistant.Tracker = result.Tracker.Clone()
		if o.onTrackerUpdate != nil {
			o.onTrackerUpdate(o.TrackerData())
		}
	} else {
		o.log.Debug("reply carried no usable tracker payload",
			zap.String("session", o.meta.ID))
	}
	o.messages = append(o.messages, assistant)
	o.persist()

	if out != nil && display != "" {
		fmt.Fprintln(out, display)
	}
	return display, nil
}

// runPlainTurn 纯叙事回合：不带基线载荷，不解析回显。
// runPlainTurn is a plain narrative turn: no baseline payload, no parse.
func (o *Orchestrator) runPlainTurn(ctx context.Context, userInput string, out io.Writer) (string, error) {
	if strings.TrimSpace(userInput) != "" {
		o.messages = append(o.messages, chat.Message{Role: chat.RoleUser, Content: userInput})
	}

	outgoing := make([]chat.Message, 0, len(o.messages)+1)
	if o.systemPrompt != "" {
		outgoing = append(outgoing, chat.Message{Role: chat.RoleSystem, Content: o.systemPrompt})
	}
	outgoing = append(outgoing, o.messages...)

	resp, err := o.chat(ctx, outgoing)
	if err != nil {
		o.persist()
		return "", err
	}

	o.messages = append(o.messages, chat.Message{Role: chat.RoleAssistant, Content: resp.Content})
	o.persist()

	if out != nil && resp.Content != "" {
		fmt.Fprintln(out, resp.Content)
	}
	return resp.Content, nil
}

func (o *Orchestrator) chat(ctx context.Context, outgoing []chat.Message) (provider.ChatResponse, error) {
	if o.provider == nil {
		return provider.ChatResponse{}, fmt.Errorf("provider unavailable")
	}
	var cb *provider.StreamCallbacks
	if o.onTextChunk != nil {
		cb = &provider.StreamCallbacks{OnTextChunk: o.onTextChunk}
	}
	resp, err := o.provider.Chat(ctx, provider.ChatRequest{Messages: outgoing}, cb)
	if err != nil {
		return provider.ChatResponse{}, fmt.Errorf("provider chat: %w", err)
	}
	return resp, nil
}
