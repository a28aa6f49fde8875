// Package parser 从原始模型输出中提取 JSON 围栏载荷（或旧版纯文本块），
// 并按既有模板协调出更新后的追踪树。
// Package parser extracts a JSON payload (or legacy plain-text block) from raw
// model output and reconciles it against the existing tracker template.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"tracker/internal/inventory"
	"tracker/internal/tracker"
)

var (
	fencePattern  = regexp.MustCompile("(?s)```[a-zA-Z]*[ \\t]*\\r?\\n?(.*?)```")
	htmlPattern   = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(?:style|script)>`)
	newlineRuns   = regexp.MustCompile(`\n{3,}`)
	inventoryName = "Inventory"
)

// Result 一次解析的产物；Tracker 为 nil 表示"无可用更新"，不是错误。
// Result is the outcome of one parse. A nil Tracker means "no update
// available", which callers must not treat as an error.
type Result struct {
	Tracker     *tracker.Data
	HTML        string
	CleanedText string
}

// Parser 防御式解析器：任何畸形载荷都只会被跳过并记录，错误从不越过解析边界。
// Parser is defensive: malformed payloads are skipped and logged; no error
// unwinds past the parsing boundary.
type Parser struct {
	codec *inventory.Codec
	log   *zap.Logger
}

func New(log *zap.Logger, codec *inventory.Codec) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	if codec == nil {
		codec = inventory.NewCodec(log, 0)
	}
	return &Parser{codec: codec, log: log}
}

// ParseResponse 依序处理：抽离 HTML 块 → 扫描围栏代码块，第一个既能解析又能
// 协调成功的块胜出并从叙事文本中剔除 → 旧版纯文本块回退 → 压缩多余空行。
// ParseResponse extracts inline HTML blocks, scans fenced code blocks in order
// (the first block that both parses and reconciles wins and is excised from
// the narrative), falls back to the legacy plain-text block format, then
// collapses runs of 3+ newlines to exactly two and trims.
func (p *Parser) ParseResponse(raw string, template *tracker.Data) Result {
	text, html := extractHTML(raw)

	var reconciled *tracker.Data
	matches := fencePattern.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		inner := strings.TrimSpace(text[m[2]:m[3]])
		if inner == "" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(inner), &payload); err != nil {
			p.log.Debug("fenced block is not JSON, skipping",
				zap.Int("block", i), zap.Error(err))
			continue
		}
		updated, ok := p.reconcile(template, payload)
		if !ok {
			p.log.Debug("fenced block did not reconcile against template, skipping",
				zap.Int("block", i))
			continue
		}
		reconciled = updated
		text = text[:m[0]] + text[m[1]:]
		break
	}

	if reconciled == nil {
		if updated, remaining, ok := p.parseTrackerBlock(text, template); ok {
			reconciled = updated
			text = remaining
		}
	}

	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return Result{
		Tracker:     reconciled,
		HTML:        html,
		CleanedText: strings.TrimSpace(text),
	}
}

// reconcile 以既有模板为结构事实来源遍历：模板中存在且载荷中同名回显的节点
// 才进入结果；载荷未回显的 section/subsection/field 被丢弃（模型须完整复述
// 结构的契约），载荷多出的节点被忽略。falsy 值按"存在"处理，照常覆盖。
// reconcile walks the existing template as the structural source of truth.
// Only nodes echoed by name in the payload survive; unechoed sections,
// subsections and fields are dropped (the "model must echo everything"
// contract), and payload nodes absent from the template are ignored. Falsy
// values (0, false, "") are honored as present, not treated as missing.
func (p *Parser) reconcile(template *tracker.Data, payload map[string]any) (*tracker.Data, bool) {
	if template == nil || len(payload) == 0 {
		return nil, false
	}
	tmpl := tracker.EnsureData(template.Clone())
	out := &tracker.Data{Sections: []tracker.Section{}}
	matched := false

	for _, sec := range tmpl.Sections {
		rawSec, ok := payload[sec.Name].(map[string]any)
		if !ok {
			continue
		}
		matched = true
		newSec := sec
		newSec.Fields = p.reconcileFields(sec.Fields, rawSec)
		newSec.Subsections = []tracker.Subsection{}
		for _, sub := range sec.Subsections {
			rawSub, ok := rawSec[sub.Name].(map[string]any)
			if !ok {
				continue
			}
			newSub := sub
			newSub.Fields = p.reconcileFields(sub.Fields, rawSub)
			newSec.Subsections = append(newSec.Subsections, newSub)
		}
		out.Sections = append(out.Sections, newSec)
	}
	if !matched {
		return nil, false
	}
	return tracker.EnsureData(out), true
}

// reconcileFields 载荷字段按名寻址，形如 {prompt, value}；只覆盖 value。
// 未嵌入提示词的禁用字段原样带过，不参与回显契约。
// Payload fields are addressed by name with a {prompt, value} entry per field;
// only value is overwritten. Disabled fields were never shown to the model and
// are carried through unchanged instead of joining the echo contract.
func (p *Parser) reconcileFields(fields []tracker.Field, raw map[string]any) []tracker.Field {
	out := make([]tracker.Field, 0, len(fields))
	for _, f := range fields {
		if !f.Enabled {
			out = append(out, f)
			continue
		}
		entry, ok := raw[f.Name].(map[string]any)
		if !ok {
			continue
		}
		value, present := entry["value"]
		if !present {
			continue
		}
		f.Value = p.coerceValue(f, value)
		out = append(out, f)
	}
	return out
}

// coerceValue 清单字段的值经迁移器与编解码器归一化后再入树
// Inventory-named fields route their values through the migrator and codec
// before entering the tree.
func (p *Parser) coerceValue(f tracker.Field, value any) any {
	if f.Name != inventoryName {
		return value
	}
	res := p.codec.Migrate(value)
	inv := res.Inventory
	inv.OnPerson = p.codec.CleanItemString(inv.OnPerson)
	inv.Stored = p.codec.ValidateStored(inv.Stored)
	inv.Assets = p.codec.CleanItemString(inv.Assets)
	return inv
}

// extractHTML 抽出内联 style/script 块，单独保留
// extractHTML removes inline style/script blocks and retains them separately.
func extractHTML(raw string) (text, html string) {
	blocks := htmlPattern.FindAllString(raw, -1)
	if len(blocks) == 0 {
		return raw, ""
	}
	return htmlPattern.ReplaceAllString(raw, ""), strings.Join(blocks, "\n")
}
