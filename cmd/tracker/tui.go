package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"tracker/internal/orchestrator"
	"tracker/internal/tracker"
	"tracker/internal/tui"
)

// runTUI 启动全屏界面并把编排器回调接到 Bubble Tea 消息上
// runTUI starts the full-screen UI and bridges orchestrator callbacks onto
// Bubble Tea messages.
func runTUI(orch *orchestrator.Orchestrator, sessionID string) error {
	submit := func(input string) tea.Msg {
		display, err := orch.RunInput(context.Background(), input, nil)
		return tui.TurnDoneMsg{Content: display, Err: err}
	}

	app := tui.NewApp(orch.CurrentModel(), sessionID, submit)
	app.SetTracker(orch.TrackerData())
	program := tui.NewProgram(app)

	orch.SetTextStreamCallback(func(chunk string) {
		program.Send(tui.TextChunkMsg{Text: chunk})
	})
	orch.SetTrackerUpdateCallback(func(data *tracker.Data) {
		program.Send(tui.TrackerUpdateMsg{Data: data})
		stats := orch.CurrentContextStats()
		program.Send(tui.ContextUpdateMsg{
			Tokens:  stats.EstimatedTokens,
			Limit:   stats.ContextLimit,
			Percent: stats.UsagePercent,
		})
	})

	_, err := program.Run()
	return err
}
