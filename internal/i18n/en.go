package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// UI (TUI/REPL) - Panel titles
	"panel.chat":    "Chat",
	"panel.tracker": "Tracker",
	"panel.logs":    "Logs",

	// UI (TUI sidebar)
	"sidebar.context":  "Context",
	"sidebar.model":    "Model",
	"sidebar.session":  "Session",
	"sidebar.baseline": "Baseline",

	// UI - Status bar
	"status.ready":       "Ready",
	"status.streaming":   "Streaming...",
	"status.updating":    "Updating tracker...",
	"status.interrupted": "Generation interrupted",

	// UI - Input
	"input.placeholder": "Type a message... (Shift+Enter for newline)",
	"input.submit_hint": "Enter to send",

	// UI - Keybindings (TUI)
	"keys.tab": "tab switch",
	"keys.esc": "esc interrupt",

	// Tracker
	"tracker.empty":       "Tracker is empty",
	"tracker.collapsed":   "[collapsed]",
	"tracker.disabled":    "(disabled)",
	"tracker.updated":     "Tracker updated",
	"tracker.no_update":   "Reply carried no tracker update",
	"tracker.reset":       "Tracker reset to template",
	"tracker.committed":   "committed",
	"tracker.uncommitted": "not committed yet",

	// Commands
	"cmd.help":     "Show available commands",
	"cmd.new":      "Create new session",
	"cmd.sessions": "List sessions",
	"cmd.exit":     "Exit application",

	// Errors
	"error.provider": "Provider error: %s",
	"error.session":  "Session error: %s",
	"error.busy":     "A tracker generation is already in progress",

	// Context
	"context.tokens":   "Tokens: %d / %d (%.1f%%)",
	"context.messages": "Messages: %d",

	// Session
	"session.new":     "New session: %s",
	"session.resumed": "Resumed session: %s",
	"session.saved":   "Session saved",
	"session.none":    "No sessions found",

	// Model
	"model.current":  "Current model: %s",
	"model.switched": "Model switched to: %s",

	// Startup
	"startup.welcome":   "Story tracker started, data dir: %s",
	"startup.session":   "Session: %s model=%s",
	"startup.repl_mode": "Running in REPL mode",
}
