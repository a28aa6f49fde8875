package parser

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tracker/internal/tracker"
)

// trackerBlockHeader 旧版提示词格式的块头行
// trackerBlockHeader is the literal header line of the legacy prompt format.
const trackerBlockHeader = "Tracker:"

// parseTrackerBlock 识别旧版纯文本追踪块并按名更新既有模板：
//
//	Tracker:
//	Section: Story
//	    Location: The docks
//	Subsection: Plot
//	    Current Goal: Escape the city
//
// 块从头行开始，遇到第一个不符合语法的行结束；只更新模板中已存在的节点，
// 未提及的节点保持原值。消费掉的行从叙事文本中剔除。
// The block starts at the header line and ends at the first line that does not
// match the grammar (Section:/Subsection: lines and 4-space-indented
// "Name: value" lines). Only nodes that already exist in the template are
// updated, by name; unmentioned nodes keep their previous values. Consumed
// lines are excised from the narrative text.
func (p *Parser) parseTrackerBlock(text string, template *tracker.Data) (*tracker.Data, string, bool) {
	if template == nil {
		return nil, text, false
	}
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == trackerBlockHeader {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, text, false
	}

	updated := tracker.EnsureData(template.Clone())
	var (
		curSection *tracker.Section
		curSub     *tracker.Subsection
		applied    bool
	)
	end := start + 1
	for ; end < len(lines); end++ {
		line := lines[end]
		switch {
		case strings.HasPrefix(line, "Section: "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "Section: "))
			curSection = findSectionByName(updated, name)
			curSub = nil
			if curSection == nil {
				p.log.Debug("legacy block names unknown section, ignoring", zap.String("section", name))
			}
		case strings.HasPrefix(line, "Subsection: "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "Subsection: "))
			curSub = nil
			if curSection != nil {
				curSub = findSubsectionByName(curSection, name)
			}
			if curSub == nil {
				p.log.Debug("legacy block names unknown subsection, ignoring", zap.String("subsection", name))
			}
		case strings.HasPrefix(line, "    "):
			name, value, ok := splitFieldLine(strings.TrimPrefix(line, "    "))
			if !ok {
				goto done
			}
			if f := lookupField(curSection, curSub, name); f != nil {
				f.Value = coerceLegacyValue(f.Type, value)
				applied = true
			}
		default:
			goto done
		}
	}
done:
	if !applied {
		return nil, text, false
	}
	remaining := strings.Join(append(append([]string{}, lines[:start]...), lines[end:]...), "\n")
	return updated, remaining, true
}

func splitFieldLine(line string) (name, value string, ok bool) {
	idx := strings.Index(line, ": ")
	if idx <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+2:]), true
}

func findSectionByName(d *tracker.Data, name string) *tracker.Section {
	for i := range d.Sections {
		if d.Sections[i].Name == name {
			return &d.Sections[i]
		}
	}
	return nil
}

func findSubsectionByName(s *tracker.Section, name string) *tracker.Subsection {
	for i := range s.Subsections {
		if s.Subsections[i].Name == name {
			return &s.Subsections[i]
		}
	}
	return nil
}

// lookupField 有当前 subsection 时在其中找；否则找 section 级字段
// With a current subsection the field is looked up there; otherwise among the
// section-level fields.
func lookupField(sec *tracker.Section, sub *tracker.Subsection, name string) *tracker.Field {
	if sub != nil {
		for i := range sub.Fields {
			if sub.Fields[i].Name == name {
				return &sub.Fields[i]
			}
		}
		return nil
	}
	if sec != nil {
		for i := range sec.Fields {
			if sec.Fields[i].Name == name {
				return &sec.Fields[i]
			}
		}
	}
	return nil
}

// coerceLegacyValue 纯文本值按字段声明类型回转
// Plain-text values convert back according to the field's declared type.
func coerceLegacyValue(typ tracker.FieldType, value string) any {
	switch typ {
	case tracker.FieldNumber:
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return n
		}
	case tracker.FieldBoolean:
		if b, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return b
		}
	}
	return value
}
