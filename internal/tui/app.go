package tui

import (
	"fmt"
	"strings"

	"tracker/internal/i18n"
	"tracker/internal/tracker"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PanelID 面板标识
// PanelID identifies a panel
type PanelID int

const (
	PanelChat PanelID = iota
	PanelTracker
	PanelLogs
)

// --- Tea Messages ---

// TextChunkMsg 流式文本块
// TextChunkMsg is a streaming text chunk
type TextChunkMsg struct{ Text string }

// TurnDoneMsg 回合完成
// TurnDoneMsg indicates a turn is done
type TurnDoneMsg struct {
	Content string
	Err     error
}

// StreamingStartMsg 开始流式输出
// StreamingStartMsg indicates streaming has started
type StreamingStartMsg struct{}

// TrackerUpdateMsg 追踪树更新后的快照
// TrackerUpdateMsg carries the tracker snapshot after a successful parse
type TrackerUpdateMsg struct{ Data *tracker.Data }

// ContextUpdateMsg 上下文信息更新
// ContextUpdateMsg carries updated context info
type ContextUpdateMsg struct {
	Tokens  int
	Limit   int
	Percent float64
}

// SessionInfoMsg 会话信息更新
// SessionInfoMsg carries session info
type SessionInfoMsg struct {
	ID    string
	Model string
}

// SubmitFunc 输入提交回调；在 tea.Cmd 中执行，返回的消息回送给 Update。
// SubmitFunc handles submitted input. It runs inside a tea.Cmd and its
// returned message is fed back into Update.
type SubmitFunc func(input string) tea.Msg

// App Bubble Tea 主 Model
// App is the main Bubble Tea model
type App struct {
	// 布局 / Layout
	width  int
	height int

	// 面板 / Panels
	activePanel PanelID
	chatView    viewport.Model
	trackerView viewport.Model
	logsView    viewport.Model

	// 输入 / Input
	input        textarea.Model
	inputFocused bool

	// 侧边栏数据 / Sidebar data
	modelName         string
	sessionID         string
	tokens            int
	tokenLimit        int
	tokenPct          float64
	baselineCommitted bool

	// 内容缓冲 / Content buffers
	chatContent    strings.Builder
	logContent     strings.Builder
	trackerContent string
	trackerData    *tracker.Data
	trackerCursor  int

	// 状态 / State
	streaming    bool
	streamBuffer strings.Builder
	lastError    string

	// 配置 / Config
	theme  Theme
	keys   KeyMap
	locale *i18n.I18n
	submit SubmitFunc
}

// NewApp 创建 TUI 应用
// NewApp creates a new TUI application
func NewApp(model, sessionID string, submit SubmitFunc) App {
	ta := textarea.New()
	ta.Placeholder = i18n.T("input.placeholder")
	ta.CharLimit = 8192
	ta.SetHeight(3)
	ta.Focus()

	theme := DarkTheme()

	return App{
		activePanel:  PanelChat,
		input:        ta,
		inputFocused: true,
		modelName:    model,
		sessionID:    sessionID,
		tokenLimit:   16000,
		theme:        theme,
		keys:         DefaultKeyMap(),
		locale:       i18n.Global(),
		submit:       submit,
	}
}

func (a App) Init() tea.Cmd {
	return textarea.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "tab":
			a.activePanel = (a.activePanel + 1) % 3
			if a.trackerData != nil {
				a.refreshTrackerPanel()
			}
			return a, nil
		case "up", "down", " ":
			if a.activePanel == PanelTracker && a.trackerData != nil {
				a.handleTrackerKey(msg.String())
				return a, nil
			}
		case "esc":
			if a.streaming {
				a.streaming = false
				a.appendLog("⚠ " + a.locale.T("status.interrupted"))
			}
			return a, nil
		case "enter":
			text := strings.TrimSpace(a.input.Value())
			if text == "" || a.streaming || a.submit == nil {
				return a, nil
			}
			a.input.Reset()
			a.AppendUserMessage(text)
			a.streaming = true
			a.streamBuffer.Reset()
			submit := a.submit
			return a, func() tea.Msg { return submit(text) }
		case "ctrl+j":
			// 换行交给 textarea / newline handled by the textarea
			a.input.InsertString("\n")
			return a, nil
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case TextChunkMsg:
		a.streaming = true
		a.streamBuffer.WriteString(msg.Text)
		a.updateChatFromStream()
		return a, nil

	case TurnDoneMsg:
		a.streaming = false
		if msg.Err != nil {
			a.lastError = msg.Err.Error()
			a.appendChat("\n❌ " + msg.Err.Error())
		} else if msg.Content != "" {
			// 展示解析后的叙事文本，丢弃流式缓冲里的原始围栏块
			// Show the parsed narrative; the raw fenced payload in the stream
			// buffer is discarded.
			a.chatContent.WriteString("\n" + RenderMarkdown(msg.Content, a.chatView.Width) + "\n")
			a.chatView.SetContent(a.chatContent.String())
			a.chatView.GotoBottom()
		} else if a.streamBuffer.Len() > 0 {
			a.flushStreamToChat()
		}
		a.streamBuffer.Reset()
		return a, nil

	case StreamingStartMsg:
		a.streaming = true
		a.streamBuffer.Reset()
		return a, nil

	case TrackerUpdateMsg:
		a.baselineCommitted = true
		a.trackerData = msg.Data
		a.refreshTrackerPanel()
		a.appendLog("✓ " + a.locale.T("tracker.updated"))
		return a, nil

	case ContextUpdateMsg:
		a.tokens = msg.Tokens
		a.tokenLimit = msg.Limit
		a.tokenPct = msg.Percent
		return a, nil

	case SessionInfoMsg:
		a.sessionID = msg.ID
		a.modelName = msg.Model
		return a, nil
	}

	// 更新输入区 / Update input area
	if a.inputFocused {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	// 计算布局尺寸 / Calculate layout dimensions
	sidebarWidth := a.width * 25 / 100
	if sidebarWidth < 20 {
		sidebarWidth = 20
	}
	if sidebarWidth > 40 {
		sidebarWidth = 40
	}
	if a.width < 80 {
		sidebarWidth = 0
	}

	mainWidth := a.width - sidebarWidth
	if sidebarWidth > 0 {
		mainWidth-- // border
	}

	inputHeight := 5
	statusHeight := 1
	tabHeight := 1
	panelHeight := a.height - inputHeight - statusHeight - tabHeight

	if panelHeight < 3 {
		panelHeight = 3
	}

	// 构建各部分 / Build components
	tabs := a.renderTabs(mainWidth)
	panel := a.renderActivePanel(mainWidth, panelHeight)
	inputBox := a.renderInput(mainWidth, inputHeight)
	statusBar := a.renderStatusBar(a.width)

	// 左侧主区域 / Left main area
	main := lipgloss.JoinVertical(lipgloss.Left, tabs, panel, inputBox)

	// 右侧侧边栏 / Right sidebar
	if sidebarWidth > 0 {
		sidebar := a.renderSidebar(sidebarWidth, a.height-statusHeight)
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, sidebar)
	}

	// 底部状态栏 / Bottom status bar
	return lipgloss.JoinVertical(lipgloss.Left, main, statusBar)
}

// --- 内部方法 / Internal methods ---

func (a *App) relayout() {
	mainWidth := a.width
	panelHeight := a.height - 8

	if panelHeight < 3 {
		panelHeight = 3
	}

	a.chatView = viewport.New(mainWidth, panelHeight)
	a.chatView.SetContent(a.chatContent.String())

	a.trackerView = viewport.New(mainWidth, panelHeight)
	a.trackerView.SetContent(a.trackerContent)

	a.logsView = viewport.New(mainWidth, panelHeight)
	a.logsView.SetContent(a.logContent.String())

	a.input.SetWidth(mainWidth - 4)
}

func (a *App) appendChat(text string) {
	a.chatContent.WriteString(text + "\n")
	a.chatView.SetContent(a.chatContent.String())
	a.chatView.GotoBottom()
}

func (a *App) appendLog(text string) {
	a.logContent.WriteString(text + "\n")
	a.logsView.SetContent(a.logContent.String())
}

func (a *App) updateChatFromStream() {
	// 在流式输出时，显示已有内容 + 流式缓冲
	content := a.chatContent.String()
	if a.streamBuffer.Len() > 0 {
		content += "\n" + a.streamBuffer.String()
	}
	a.chatView.SetContent(content)
	a.chatView.GotoBottom()
}

func (a *App) flushStreamToChat() {
	if a.streamBuffer.Len() > 0 {
		a.chatContent.WriteString("\n" + a.streamBuffer.String() + "\n")
		a.chatView.SetContent(a.chatContent.String())
		a.chatView.GotoBottom()
	}
}

// --- 渲染方法 / Render methods ---

func (a App) renderTabs(width int) string {
	tabs := []struct {
		id   PanelID
		name string
	}{
		{PanelChat, a.locale.T("panel.chat")},
		{PanelTracker, a.locale.T("panel.tracker")},
		{PanelLogs, a.locale.T("panel.logs")},
	}

	var parts []string
	for _, tab := range tabs {
		style := a.theme.InactiveTabStyle
		if tab.id == a.activePanel {
			style = a.theme.ActiveTabStyle
		}
		parts = append(parts, style.Render(tab.name))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a App) renderActivePanel(width, height int) string {
	style := lipgloss.NewStyle().
		Width(width).
		Height(height)

	var content string
	switch a.activePanel {
	case PanelChat:
		content = a.chatView.View()
	case PanelTracker:
		if a.trackerContent == "" {
			content = a.theme.MutedStyle.Render("  " + a.locale.T("tracker.empty"))
		} else {
			content = a.trackerView.View()
		}
	case PanelLogs:
		if a.logContent.Len() == 0 {
			content = a.theme.MutedStyle.Render("  No logs yet")
		} else {
			content = a.logsView.View()
		}
	}

	return style.Render(content)
}

func (a App) renderInput(width, height int) string {
	style := a.theme.InputStyle.Width(width)
	return style.Render(a.input.View())
}

func (a App) renderSidebar(width, height int) string {
	var parts []string

	// 标题 / Title
	parts = append(parts, a.theme.TitleStyle.Render(" Tracker"))
	parts = append(parts, "")

	// 上下文 / Context
	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("sidebar.context")))
	bar := renderProgressBar(a.tokenPct, width-4)
	parts = append(parts, "  "+bar)
	parts = append(parts, fmt.Sprintf("  %d / %d", a.tokens, a.tokenLimit))
	parts = append(parts, fmt.Sprintf("  %.1f%% spent", a.tokenPct))
	parts = append(parts, "")

	// Model / Session
	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("sidebar.model")))
	parts = append(parts, "  "+a.modelName)
	parts = append(parts, "")

	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("sidebar.session")))
	parts = append(parts, "  "+a.sessionID)
	parts = append(parts, "")

	// 基线状态 / Baseline status
	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("sidebar.baseline")))
	if a.baselineCommitted {
		parts = append(parts, "  "+a.locale.T("tracker.committed"))
	} else {
		parts = append(parts, "  "+a.locale.T("tracker.uncommitted"))
	}

	content := strings.Join(parts, "\n")

	style := a.theme.SidebarStyle.
		Width(width).
		Height(height)

	return style.Render(content)
}

func (a App) renderStatusBar(width int) string {
	status := a.locale.T("status.ready")
	if a.streaming {
		status = a.locale.T("status.streaming")
	}

	left := fmt.Sprintf(" %s · %s", a.modelName, status)
	right := fmt.Sprintf("%s  ", a.sessionID)

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return a.theme.StatusBarStyle.Width(width).Render(bar)
}

func renderProgressBar(percent float64, width int) string {
	if width < 4 {
		width = 4
	}
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled
	return "█" + strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

// AppendUserMessage 添加用户消息到聊天面板
// AppendUserMessage adds a user message to the chat panel
func (a *App) AppendUserMessage(text string) {
	a.appendChat("\n👤 " + text)
}

// SetTracker 直接设置追踪面板内容（启动时播种用）
// SetTracker seeds the tracker panel content, used at startup.
func (a *App) SetTracker(data *tracker.Data) {
	a.trackerData = data
	a.refreshTrackerPanel()
}

// handleTrackerKey 追踪面板聚焦时的按键：上下移动光标，空格折叠/展开。
// handleTrackerKey handles keys while the tracker panel is focused: up and
// down move the cursor, space toggles collapse on the selected section.
func (a *App) handleTrackerKey(key string) {
	n := len(a.trackerData.Sections)
	if n == 0 {
		return
	}
	switch key {
	case "up":
		if a.trackerCursor > 0 {
			a.trackerCursor--
		}
	case "down":
		if a.trackerCursor < n-1 {
			a.trackerCursor++
		}
	case " ":
		sec := &a.trackerData.Sections[a.trackerCursor]
		sec.Collapsed = !sec.Collapsed
	}
	a.refreshTrackerPanel()
}

func (a *App) refreshTrackerPanel() {
	if n := len(tracker.EnsureData(a.trackerData).Sections); a.trackerCursor >= n && n > 0 {
		a.trackerCursor = n - 1
	}
	cursor := -1
	if a.activePanel == PanelTracker {
		cursor = a.trackerCursor
	}
	a.trackerContent = renderTrackerCursor(a.trackerData, a.theme, cursor)
	a.trackerView.SetContent(a.trackerContent)
}

// NewProgram 构造 Bubble Tea 程序；调用方先拿到句柄（用 Send 推消息）再 Run。
// NewProgram builds the Bubble Tea program. Callers take the handle first so
// they can push messages with Send, then call Run.
func NewProgram(app App) *tea.Program {
	return tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
}
