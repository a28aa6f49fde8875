package i18n

// ZhCNMessages 简体中文消息目录
// ZhCNMessages Simplified Chinese message catalog
var ZhCNMessages = map[string]string{
	// TUI - 面板标题
	"panel.chat":    "对话",
	"panel.tracker": "追踪器",
	"panel.logs":    "日志",

	// TUI - 侧边栏
	"sidebar.context":  "上下文",
	"sidebar.model":    "模型",
	"sidebar.session":  "会话",
	"sidebar.baseline": "基线",

	// TUI - 状态栏
	"status.ready":       "就绪",
	"status.streaming":   "生成中...",
	"status.updating":    "更新追踪器...",
	"status.interrupted": "生成已中断",

	// TUI - 输入
	"input.placeholder": "输入消息... (Shift+Enter 换行)",
	"input.submit_hint": "回车发送",

	// TUI - 快捷键提示
	"keys.tab": "tab 切换面板",
	"keys.esc": "esc 中断",

	// 追踪器
	"tracker.empty":       "追踪器为空",
	"tracker.collapsed":   "[已折叠]",
	"tracker.disabled":    "(已禁用)",
	"tracker.updated":     "追踪器已更新",
	"tracker.no_update":   "回复未携带追踪器更新",
	"tracker.reset":       "追踪器已重置为模板",
	"tracker.committed":   "已提交",
	"tracker.uncommitted": "尚未提交",

	// 命令
	"cmd.help":     "显示可用命令",
	"cmd.new":      "创建新会话",
	"cmd.sessions": "列出会话",
	"cmd.exit":     "退出程序",

	// 错误
	"error.provider": "Provider 错误: %s",
	"error.session":  "会话错误: %s",
	"error.busy":     "已有一次追踪器生成在进行中",

	// 上下文
	"context.tokens":   "Token 数: %d / %d (%.1f%%)",
	"context.messages": "消息数: %d",

	// 会话
	"session.new":     "新会话: %s",
	"session.resumed": "已恢复会话: %s",
	"session.saved":   "会话已保存",
	"session.none":    "没有找到会话",

	// 模型
	"model.current":  "当前模型: %s",
	"model.switched": "模型已切换为: %s",

	// 启动
	"startup.welcome":   "故事追踪器已启动，数据目录: %s",
	"startup.session":   "会话: %s 模型=%s",
	"startup.repl_mode": "以 REPL 模式运行",
}
