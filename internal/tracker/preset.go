package tracker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Preset 打包一棵追踪树及其系统提示词，用于导出/导入
// Preset wraps a tracker tree with its system prompt for export/import.
type Preset struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
	TrackerData  *Data  `json:"trackerData"`
	ExportedAt   string `json:"exportedAt"`
}

// ExportPreset 序列化为带缩进的 JSON；经 ImportPreset 往返无损
// ExportPreset serializes to pretty-printed JSON. Round-trips through
// ImportPreset with no lossy transformation.
func ExportPreset(name, systemPrompt string, d *Data) ([]byte, error) {
	p := Preset{
		Name:         strings.TrimSpace(name),
		SystemPrompt: systemPrompt,
		TrackerData:  EnsureData(d.Clone()),
		ExportedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal preset: %w", err)
	}
	return data, nil
}

// ImportPreset 解析导出的 preset 并修复树不变式
// ImportPreset parses an exported preset and repairs tree invariants.
func ImportPreset(data []byte) (Preset, error) {
	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("parse preset: %w", err)
	}
	p.TrackerData = EnsureData(p.TrackerData)
	return p, nil
}

// ExportData 序列化一棵裸树
// ExportData serializes a bare tracker tree.
func ExportData(d *Data) ([]byte, error) {
	data, err := json.MarshalIndent(EnsureData(d.Clone()), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tracker: %w", err)
	}
	return data, nil
}

// ImportData 解析一棵裸树
// ImportData parses a bare tracker tree.
func ImportData(data []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse tracker: %w", err)
	}
	return EnsureData(&d), nil
}

// DefaultTemplate 返回初始追踪模板，保证新会话有可协调的结构
// DefaultTemplate returns the starter tracker so a fresh session has a
// reconcilable template.
func DefaultTemplate() *Data {
	story := NewSection("Story")
	story.Fields = append(story.Fields,
		NewField("Location", "Where the current scene takes place.", FieldText, "Unknown"),
		NewField("Time", "The in-story date and time of day.", FieldText, "Unknown"),
	)
	plot := NewSubsection("Plot")
	plot.Fields = append(plot.Fields,
		NewField("Current Goal", "What the protagonist is trying to accomplish right now.", FieldText, "None"),
		NewField("Tension", "Narrative tension from 0 to 10.", FieldNumber, 0),
	)
	story.Subsections = append(story.Subsections, plot)

	characters := NewSection("Characters")
	protagonist := NewSubsection("Protagonist")
	protagonist.Fields = append(protagonist.Fields,
		NewField("Health", "Current health as a percentage.", FieldText, "100%"),
		NewField("Mood", "Current emotional state in a few words.", FieldText, "Neutral"),
		NewField("Inventory", "Items carried, stored and owned, as the inventory object.", FieldText, "None"),
	)
	characters.Subsections = append(characters.Subsections, protagonist)

	return EnsureData(&Data{Sections: []Section{story, characters}})
}
