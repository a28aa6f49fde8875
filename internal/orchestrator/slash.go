package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"tracker/internal/config"
	"tracker/internal/tracker"
)

// parseSlashCommand 解析 "/" 命令：返回 command 与 args（剩余部分）
// parseSlashCommand parses a "/" command: returns command and args (rest of line).
func parseSlashCommand(input string) (command string, args string, ok bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "/"))
	if rest == "" {
		return "", "", true
	}
	parts := strings.SplitN(rest, " ", 2)
	command = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args, true
}

// runSlashCommand 处理 "/" 内建命令；未知命令返回提示
// runSlashCommand handles "/" built-in commands; unknown commands return a hint.
func (o *Orchestrator) runSlashCommand(ctx context.Context, command, args string, out io.Writer) (string, error) {
	switch command {
	case "help":
		return strings.Join([]string{
			"Commands:",
			"  /help",
			"  /tracker              show the tracker tree",
			"  /tracker update       request a tracker update now",
			"  /swipe                regenerate the last reply (keeps baseline)",
			"  /section add <name>[/<subsection>]",
			"  /section rm <name>[/<subsection>]",
			"  /field add <section>[/<subsection>] <name> :: <prompt>",
			"  /field set <section>[/<subsection>]/<name> <value>",
			"  /field rm <section>[/<subsection>]/<name>",
			"  /inventory            show the inventory",
			"  /inventory add <item>",
			"  /inventory rm <item>",
			"  /reset                reset tracker to the template",
			"  /export [file]        export tracker preset as JSON",
			"  /import <file>        import a tracker preset",
			"  /sessions",
			"  /new",
			"  /resume <session-id>",
			"  /model [name]",
			"  /models",
			"  /exit",
		}, "\n"), nil

	case "tracker":
		if strings.EqualFold(args, "update") {
			return o.ForceUpdate(ctx, out)
		}
		return renderTrackerText(o.TrackerData()), nil

	case "swipe":
		return o.Swipe(ctx, out)

	case "section":
		return o.runSectionCommand(args)

	case "field":
		return o.runFieldCommand(args)

	case "inventory":
		return o.runInventoryCommand(args)

	case "reset":
		o.ResetTracker()
		return "Tracker reset to template.", nil

	case "export":
		return o.runExportCommand(args)

	case "import":
		return o.runImportCommand(args)

	case "sessions":
		sessions, err := o.ListSessions()
		if err != nil {
			return "", err
		}
		if len(sessions) == 0 {
			return "No sessions.", nil
		}
		lines := make([]string, 0, len(sessions)+1)
		lines = append(lines, "Sessions:")
		for _, s := range sessions {
			marker := " "
			if s.ID == o.meta.ID {
				marker = "*"
			}
			lines = append(lines, fmt.Sprintf("%s %s  %s  %s", marker, s.ID, s.UpdatedAt, s.Title))
		}
		return strings.Join(lines, "\n"), nil

	case "new":
		meta, err := o.NewSession()
		if err != nil {
			return "", err
		}
		return "Started session " + meta.ID, nil

	case "resume":
		if args == "" {
			return "Usage: /resume <session-id>", nil
		}
		meta, err := o.ResumeSession(args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Resumed session %s (%d messages)", meta.ID, len(o.messages)), nil

	case "model":
		if args == "" {
			return "Current model: " + o.CurrentModel(), nil
		}
		if err := o.SetModel(args); err != nil {
			return "", err
		}
		return "Model set to " + args, nil

	case "models":
		if len(o.models) == 0 {
			return "Configured model: " + o.CurrentModel(), nil
		}
		lines := append([]string{"Models:"}, o.models...)
		return strings.Join(lines, "\n  "), nil

	default:
		return "Unknown command /" + command + " (try /help)", nil
	}
}

// --- tree editing commands ---

func (o *Orchestrator) runSectionCommand(args string) (string, error) {
	verb, rest := splitVerb(args)
	switch verb {
	case "add":
		if rest == "" {
			return "Usage: /section add <name>[/<subsection>]", nil
		}
		secName, subName := splitPath2(rest)
		live := o.liveTree()
		if subName == "" {
			if findSection(live, secName) != nil {
				return "Section already exists: " + secName, nil
			}
			live.Sections = append(live.Sections, tracker.NewSection(secName))
			o.persist()
			return "Added section " + secName, nil
		}
		sec := findSection(live, secName)
		if sec == nil {
			return "No such section: " + secName, nil
		}
		if findSubsection(sec, subName) != nil {
			return "Subsection already exists: " + subName, nil
		}
		sec.Subsections = append(sec.Subsections, tracker.NewSubsection(subName))
		o.persist()
		return fmt.Sprintf("Added subsection %s under %s", subName, secName), nil

	case "rm":
		if rest == "" {
			return "Usage: /section rm <name>[/<subsection>]", nil
		}
		secName, subName := splitPath2(rest)
		live := o.liveTree()
		if subName == "" {
			for i := range live.Sections {
				if live.Sections[i].Name == secName {
					live.Sections = append(live.Sections[:i], live.Sections[i+1:]...)
					o.persist()
					return "Removed section " + secName, nil
				}
			}
			return "No such section: " + secName, nil
		}
		sec := findSection(live, secName)
		if sec == nil {
			return "No such section: " + secName, nil
		}
		for i := range sec.Subsections {
			if sec.Subsections[i].Name == subName {
				sec.Subsections = append(sec.Subsections[:i], sec.Subsections[i+1:]...)
				o.persist()
				return "Removed subsection " + subName, nil
			}
		}
		return "No such subsection: " + subName, nil

	default:
		return "Usage: /section add|rm <name>[/<subsection>]", nil
	}
}

func (o *Orchestrator) runFieldCommand(args string) (string, error) {
	verb, rest := splitVerb(args)
	switch verb {
	case "add":
		// /field add <section>[/<subsection>] <name> :: <prompt>
		pathAndRest := strings.SplitN(rest, " ", 2)
		if len(pathAndRest) < 2 {
			return "Usage: /field add <section>[/<subsection>] <name> :: <prompt>", nil
		}
		name, promptText := pathAndRest[1], ""
		if idx := strings.Index(name, "::"); idx >= 0 {
			promptText = strings.TrimSpace(name[idx+2:])
			name = strings.TrimSpace(name[:idx])
		}
		if name == "" {
			return "Field name is empty.", nil
		}
		fields := o.fieldListAt(pathAndRest[0])
		if fields == nil {
			return "No such section or subsection: " + pathAndRest[0], nil
		}
		*fields = append(*fields, tracker.NewField(name, promptText, tracker.FieldText, ""))
		o.persist()
		return "Added field " + name, nil

	case "set":
		// /field set <path> <value>
		pathAndValue := strings.SplitN(rest, " ", 2)
		if len(pathAndValue) < 2 {
			return "Usage: /field set <section>[/<subsection>]/<name> <value>", nil
		}
		f := o.fieldAt(pathAndValue[0])
		if f == nil {
			return "No such field: " + pathAndValue[0], nil
		}
		f.Value = strings.TrimSpace(pathAndValue[1])
		o.persist()
		return "Set " + pathAndValue[0], nil

	case "rm":
		if rest == "" {
			return "Usage: /field rm <section>[/<subsection>]/<name>", nil
		}
		if !o.removeFieldAt(rest) {
			return "No such field: " + rest, nil
		}
		o.persist()
		return "Removed field " + rest, nil

	default:
		return "Usage: /field add|set|rm ...", nil
	}
}

func (o *Orchestrator) runInventoryCommand(args string) (string, error) {
	f := o.inventoryField()
	if f == nil {
		return "No field named Inventory in the tracker.", nil
	}
	inv := o.codec.Migrate(f.Value).Inventory

	verb, rest := splitVerb(args)
	switch verb {
	case "":
		lines := []string{
			"On person: " + inv.OnPerson,
			"Assets:    " + inv.Assets,
		}
		for _, loc := range inv.Stored {
			lines = append(lines, fmt.Sprintf("Stored at %s: %s", loc.Name, loc.Items))
		}
		return strings.Join(lines, "\n"), nil

	case "add":
		if rest == "" {
			return "Usage: /inventory add <item>", nil
		}
		items := o.codec.ParseItems(inv.OnPerson)
		items = append(items, o.codec.ParseItems(rest)...)
		inv.OnPerson = o.codec.SerializeItems(items)
		f.Value = inv
		o.persist()
		return "On person: " + inv.OnPerson, nil

	case "rm":
		if rest == "" {
			return "Usage: /inventory rm <item>", nil
		}
		items := o.codec.ParseItems(inv.OnPerson)
		kept := items[:0]
		removed := false
		for _, item := range items {
			if !removed && strings.EqualFold(item, strings.TrimSpace(rest)) {
				removed = true
				continue
			}
			kept = append(kept, item)
		}
		if !removed {
			return "Not carrying: " + rest, nil
		}
		inv.OnPerson = o.codec.SerializeItems(kept)
		f.Value = inv
		o.persist()
		return "On person: " + inv.OnPerson, nil

	default:
		return "Usage: /inventory [add|rm <item>]", nil
	}
}

func (o *Orchestrator) runExportCommand(args string) (string, error) {
	data, err := tracker.ExportPreset(o.meta.Title, o.systemPrompt, o.TrackerData())
	if err != nil {
		return "", err
	}
	if args == "" {
		return string(data), nil
	}
	if err := os.WriteFile(args, data, 0o644); err != nil {
		return "", fmt.Errorf("write preset: %w", err)
	}
	return "Exported to " + args, nil
}

func (o *Orchestrator) runImportCommand(args string) (string, error) {
	if args == "" {
		return "Usage: /import <file>", nil
	}
	data, err := os.ReadFile(args)
	if err != nil {
		return "", fmt.Errorf("read preset: %w", err)
	}
	preset, err := tracker.ImportPreset(data)
	if err != nil {
		return "", err
	}
	o.template = tracker.EnsureData(preset.TrackerData)
	if strings.TrimSpace(preset.SystemPrompt) != "" {
		o.systemPrompt = strings.TrimSpace(preset.SystemPrompt)
	}
	o.saveSettings()
	o.ResetTracker()
	return "Imported preset " + preset.Name + "; tracker reset to its template.", nil
}

func (o *Orchestrator) persistModelChoice(model string) error {
	return config.WriteProviderModel(o.configBasePath, model)
}

// --- helpers ---

func (o *Orchestrator) liveTree() *tracker.Data {
	if o.state == nil {
		o.ResetTracker()
	}
	return tracker.EnsureData(o.state.Live)
}

func (o *Orchestrator) inventoryField() *tracker.Field {
	live := o.liveTree()
	for i := range live.Sections {
		sec := &live.Sections[i]
		for j := range sec.Fields {
			if sec.Fields[j].Name == "Inventory" {
				return &sec.Fields[j]
			}
		}
		for j := range sec.Subsections {
			sub := &sec.Subsections[j]
			for k := range sub.Fields {
				if sub.Fields[k].Name == "Inventory" {
					return &sub.Fields[k]
				}
			}
		}
	}
	return nil
}

// fieldListAt 返回路径指向的字段列表："Section" 或 "Section/Subsection"。
// fieldListAt resolves "Section" or "Section/Subsection" to its field list.
func (o *Orchestrator) fieldListAt(path string) *[]tracker.Field {
	secName, subName := splitPath2(path)
	sec := findSection(o.liveTree(), secName)
	if sec == nil {
		return nil
	}
	if subName == "" {
		return &sec.Fields
	}
	sub := findSubsection(sec, subName)
	if sub == nil {
		return nil
	}
	return &sub.Fields
}

// fieldAt 解析 "Section/Field" 或 "Section/Subsection/Field"。
// fieldAt resolves "Section/Field" or "Section/Subsection/Field".
func (o *Orchestrator) fieldAt(path string) *tracker.Field {
	parts := strings.Split(path, "/")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	live := o.liveTree()
	switch len(parts) {
	case 2:
		sec := findSection(live, parts[0])
		if sec == nil {
			return nil
		}
		return findField(sec.Fields, parts[1])
	case 3:
		sec := findSection(live, parts[0])
		if sec == nil {
			return nil
		}
		sub := findSubsection(sec, parts[1])
		if sub == nil {
			return nil
		}
		return findField(sub.Fields, parts[2])
	default:
		return nil
	}
}

func (o *Orchestrator) removeFieldAt(path string) bool {
	parts := strings.Split(path, "/")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	live := o.liveTree()
	var fields *[]tracker.Field
	var name string
	switch len(parts) {
	case 2:
		sec := findSection(live, parts[0])
		if sec == nil {
			return false
		}
		fields, name = &sec.Fields, parts[1]
	case 3:
		sec := findSection(live, parts[0])
		if sec == nil {
			return false
		}
		sub := findSubsection(sec, parts[1])
		if sub == nil {
			return false
		}
		fields, name = &sub.Fields, parts[2]
	default:
		return false
	}
	for i := range *fields {
		if (*fields)[i].Name == name {
			*fields = append((*fields)[:i], (*fields)[i+1:]...)
			return true
		}
	}
	return false
}

func splitVerb(args string) (verb, rest string) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	verb = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return verb, rest
}

func splitPath2(path string) (first, second string) {
	parts := strings.SplitN(strings.TrimSpace(path), "/", 2)
	first = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		second = strings.TrimSpace(parts[1])
	}
	return first, second
}

func findSection(d *tracker.Data, name string) *tracker.Section {
	for i := range d.Sections {
		if d.Sections[i].Name == name {
			return &d.Sections[i]
		}
	}
	return nil
}

func findSubsection(s *tracker.Section, name string) *tracker.Subsection {
	for i := range s.Subsections {
		if s.Subsections[i].Name == name {
			return &s.Subsections[i]
		}
	}
	return nil
}

func findField(fields []tracker.Field, name string) *tracker.Field {
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i]
		}
	}
	return nil
}

// renderTrackerText 把追踪树渲染为缩进文本（REPL 用；TUI 有自己的渲染）。
// renderTrackerText renders the tree as indented text for the REPL; the TUI
// has its own renderer.
func renderTrackerText(d *tracker.Data) string {
	d = tracker.EnsureData(d)
	if len(d.Sections) == 0 {
		return "Tracker is empty."
	}
	var b strings.Builder
	for _, sec := range d.Sections {
		marker := ""
		if sec.Collapsed {
			marker = " [collapsed]"
		}
		fmt.Fprintf(&b, "%s%s\n", sec.Name, marker)
		for _, f := range sec.Fields {
			writeFieldLine(&b, "  ", f)
		}
		for _, sub := range sec.Subsections {
			subMarker := ""
			if sub.Collapsed {
				subMarker = " [collapsed]"
			}
			fmt.Fprintf(&b, "  %s%s\n", sub.Name, subMarker)
			for _, f := range sub.Fields {
				writeFieldLine(&b, "    ", f)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeFieldLine(b *strings.Builder, indent string, f tracker.Field) {
	disabled := ""
	if !f.Enabled {
		disabled = " (disabled)"
	}
	fmt.Fprintf(b, "%s%s: %s%s\n", indent, f.Name, formatFieldValue(f.Value), disabled)
}

func formatFieldValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
