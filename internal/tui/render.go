package tui

import (
	"fmt"
	"strings"

	"tracker/internal/inventory"
	"tracker/internal/tracker"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown 使用 Glamour 渲染 markdown 文本
// RenderMarkdown renders markdown text using Glamour
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimRight(rendered, "\n")
}

// RenderTracker 把追踪树渲染为着色的缩进文本。折叠的节点只显示标题行。
// RenderTracker renders the tracker tree as colorized indented text.
// Collapsed nodes show only their title line.
func RenderTracker(d *tracker.Data, theme Theme) string {
	return renderTrackerCursor(d, theme, -1)
}

// renderTrackerCursor 渲染追踪树，并在 cursor 指向的分区标题前加选中标记。
// renderTrackerCursor renders the tree with a selection marker on the
// section at cursor. A cursor of -1 renders no marker.
func renderTrackerCursor(d *tracker.Data, theme Theme, cursor int) string {
	d = tracker.EnsureData(d)
	if len(d.Sections) == 0 {
		return ""
	}

	var lines []string
	for i, sec := range d.Sections {
		title := theme.SectionStyle.Render(sec.Name)
		if i == cursor {
			title = theme.SubsectionStyle.Render("▸ ") + title
		}
		if sec.Collapsed {
			lines = append(lines, title+" "+theme.MutedStyle.Render("[+]"))
			continue
		}
		lines = append(lines, title)
		for _, f := range sec.Fields {
			lines = append(lines, renderFieldLine("  ", f, theme))
		}
		for _, sub := range sec.Subsections {
			subTitle := "  " + theme.SubsectionStyle.Render(sub.Name)
			if sub.Collapsed {
				lines = append(lines, subTitle+" "+theme.MutedStyle.Render("[+]"))
				continue
			}
			lines = append(lines, subTitle)
			for _, f := range sub.Fields {
				lines = append(lines, renderFieldLine("    ", f, theme))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func renderFieldLine(indent string, f tracker.Field, theme Theme) string {
	name := theme.FieldStyle.Render(f.Name + ":")
	value := renderFieldValue(f.Value)
	if !f.Enabled {
		return indent + theme.MutedStyle.Render(f.Name+": "+value+" (disabled)")
	}
	return indent + name + " " + value
}

// renderFieldValue 清单值展开为多行摘要，其余值原样格式化
// Inventory values expand into a multi-line summary; everything else is
// formatted as-is.
func renderFieldValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case inventory.Inventory:
		parts := []string{val.OnPerson}
		for _, loc := range val.Stored {
			parts = append(parts, fmt.Sprintf("%s: %s", loc.Name, loc.Items))
		}
		if val.Assets != inventory.EmptyList {
			parts = append(parts, "assets: "+val.Assets)
		}
		return strings.Join(parts, " · ")
	default:
		return fmt.Sprintf("%v", val)
	}
}
