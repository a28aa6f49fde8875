// Package prompt 组装出站提示词：把已提交基线改写为 {name: {prompt, value}} 形式
// 的 JSON 嵌入系统提示，并在上下文预算内裁剪历史。
// Package prompt assembles the outgoing prompt: it rewrites the committed
// baseline as {name: {prompt, value}} JSON embedded in the system prompt and
// trims history against the context budget.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"tracker/internal/tracker"
)

// BuildPayload 把追踪树序列化为保持树序的 JSON 对象。每个启用字段改写为
// {prompt, value}；禁用字段不出现在载荷里。section/subsection 即使为空也要
// 输出，模型回显契约要求完整复述结构。
// BuildPayload serializes a tracker tree as order-preserving JSON. Each
// enabled field is rewritten as {prompt, value}; disabled fields are omitted.
// Sections and subsections are emitted even when empty, since the echo
// contract requires the model to restate the full structure.
func BuildPayload(d *tracker.Data) ([]byte, error) {
	d = tracker.EnsureData(d)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sec := range d.Sections {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, sec.Name); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		wrote := false
		for _, f := range sec.Fields {
			if !f.Enabled {
				continue
			}
			if wrote {
				buf.WriteByte(',')
			}
			if err := writeField(&buf, f); err != nil {
				return nil, err
			}
			wrote = true
		}
		for _, sub := range sec.Subsections {
			if wrote {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, sub.Name); err != nil {
				return nil, err
			}
			buf.WriteByte('{')
			subWrote := false
			for _, f := range sub.Fields {
				if !f.Enabled {
					continue
				}
				if subWrote {
					buf.WriteByte(',')
				}
				if err := writeField(&buf, f); err != nil {
					return nil, err
				}
				subWrote = true
			}
			buf.WriteByte('}')
			wrote = true
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')

	// Pretty-print for the model; indent also validates the construction.
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent tracker payload: %w", err)
	}
	return pretty.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, name string) error {
	key, err := json.Marshal(name)
	if err != nil {
		return fmt.Errorf("marshal key %q: %w", name, err)
	}
	buf.Write(key)
	buf.WriteByte(':')
	return nil
}

func writeField(buf *bytes.Buffer, f tracker.Field) error {
	if err := writeKey(buf, f.Name); err != nil {
		return err
	}
	entry := struct {
		Prompt string `json:"prompt"`
		Value  any    `json:"value"`
	}{Prompt: f.Prompt, Value: f.Value}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal field %q: %w", f.Name, err)
	}
	buf.Write(data)
	return nil
}
