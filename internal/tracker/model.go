// Package tracker 定义故事追踪树的规范数据模型：Section → Subsection → Field。
// Package tracker defines the canonical story-tracker tree: sections hold
// optional section-level fields plus subsections, subsections hold fields.
package tracker

import (
	"github.com/google/uuid"
)

// FieldType 字段值类型
// FieldType is the declared value type of a field.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// Field 单个被追踪的值；Prompt 描述模型应如何更新 Value
// Field is one tracked value. Prompt is the instruction shown to the model
// describing how to update Value; Value holds the current state.
type Field struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Value   any       `json:"value"`
	Prompt  string    `json:"prompt"`
	Type    FieldType `json:"type"`
	Enabled bool      `json:"enabled"`
}

// Subsection 归属于唯一 Section 的字段分组
// Subsection is a named group of fields owned by exactly one section.
type Subsection struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Fields    []Field `json:"fields"`
	Collapsed bool    `json:"collapsed"`
}

// Section 顶层分组；可携带 section 级字段
// Section is a top-level group; it may carry section-level fields in addition
// to subsections.
type Section struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Fields      []Field      `json:"fields,omitempty"`
	Subsections []Subsection `json:"subsections"`
	Collapsed   bool         `json:"collapsed"`
}

// Data 追踪树的唯一根
// Data is the single root of the tracker tree.
type Data struct {
	Sections []Section `json:"sections"`
}

// NewSection 创建带新 id、不变式完整的 section
// NewSection returns a fully-initialized section with a fresh id.
func NewSection(name string) Section {
	return Section{
		ID:          newNodeID(),
		Name:        name,
		Fields:      []Field{},
		Subsections: []Subsection{},
	}
}

// NewSubsection 创建带新 id 的 subsection
// NewSubsection returns a fully-initialized subsection with a fresh id.
func NewSubsection(name string) Subsection {
	return Subsection{
		ID:     newNodeID(),
		Name:   name,
		Fields: []Field{},
	}
}

// NewField 创建带新 id 的 field
// NewField returns a fully-initialized field with a fresh id.
func NewField(name, prompt string, typ FieldType, value any) Field {
	if typ == "" {
		typ = FieldText
	}
	f := Field{
		ID:      newNodeID(),
		Name:    name,
		Value:   value,
		Prompt:  prompt,
		Type:    typ,
		Enabled: true,
	}
	normalizeFieldValue(&f)
	return f
}

// normalizeFieldValue 数字字段的值统一以 float64 承载，与 JSON 反序列化的
// 结果一致，快照经存储往返后不发生类型漂移。
// Number-typed values are carried as float64, matching what JSON
// deserialization produces, so snapshots keep the same value type after a
// storage round trip.
func normalizeFieldValue(f *Field) {
	if f.Type != FieldNumber {
		return
	}
	switch v := f.Value.(type) {
	case int:
		f.Value = float64(v)
	case int32:
		f.Value = float64(v)
	case int64:
		f.Value = float64(v)
	case uint:
		f.Value = float64(v)
	case uint64:
		f.Value = float64(v)
	case float32:
		f.Value = float64(v)
	}
}

func newNodeID() string {
	return uuid.New().String()
}

// EnsureData 就地修复缺失的 subsections/fields 数组；幂等，重复调用无副作用。
// EnsureData repairs a tree missing subsections/fields arrays in place.
// Idempotent: repeated calls are no-ops. A nil tree is returned as an empty one.
func EnsureData(d *Data) *Data {
	if d == nil {
		return &Data{Sections: []Section{}}
	}
	if d.Sections == nil {
		d.Sections = []Section{}
	}
	for i := range d.Sections {
		s := &d.Sections[i]
		if s.Subsections == nil {
			s.Subsections = []Subsection{}
		}
		if s.Fields == nil {
			s.Fields = []Field{}
		}
		for j := range s.Fields {
			normalizeFieldValue(&s.Fields[j])
		}
		for j := range s.Subsections {
			sub := &s.Subsections[j]
			if sub.Fields == nil {
				sub.Fields = []Field{}
			}
			for k := range sub.Fields {
				normalizeFieldValue(&sub.Fields[k])
			}
		}
	}
	return d
}

// FindSectionByID 规范化后按 id 查找；未命中返回 nil，从不 panic
// FindSectionByID normalizes then searches by id. Returns nil on miss.
func FindSectionByID(d *Data, id string) *Section {
	if d == nil || id == "" {
		return nil
	}
	EnsureData(d)
	for i := range d.Sections {
		if d.Sections[i].ID == id {
			return &d.Sections[i]
		}
	}
	return nil
}

// FindSubsectionByID 在全树范围内按 id 查找 subsection
// FindSubsectionByID searches the whole tree for a subsection by id.
func FindSubsectionByID(d *Data, id string) *Subsection {
	if d == nil || id == "" {
		return nil
	}
	EnsureData(d)
	for i := range d.Sections {
		for j := range d.Sections[i].Subsections {
			if d.Sections[i].Subsections[j].ID == id {
				return &d.Sections[i].Subsections[j]
			}
		}
	}
	return nil
}

// FindFieldByID 在全树范围内按 id 查找 field（含 section 级字段）
// FindFieldByID searches section-level and subsection fields by id.
func FindFieldByID(d *Data, id string) *Field {
	if d == nil || id == "" {
		return nil
	}
	EnsureData(d)
	for i := range d.Sections {
		s := &d.Sections[i]
		for j := range s.Fields {
			if s.Fields[j].ID == id {
				return &s.Fields[j]
			}
		}
		for j := range s.Subsections {
			sub := &s.Subsections[j]
			for k := range sub.Fields {
				if sub.Fields[k].ID == id {
					return &sub.Fields[k]
				}
			}
		}
	}
	return nil
}

// Clone 深拷贝整棵树；快照之间不共享任何可变结构。
// Clone deep-copies the whole tree; snapshots never share mutable structure.
func (d *Data) Clone() *Data {
	if d == nil {
		return nil
	}
	out := &Data{Sections: make([]Section, 0, len(d.Sections))}
	for _, s := range d.Sections {
		out.Sections = append(out.Sections, s.clone())
	}
	return out
}

func (s Section) clone() Section {
	out := s
	out.Fields = cloneFields(s.Fields)
	out.Subsections = make([]Subsection, 0, len(s.Subsections))
	for _, sub := range s.Subsections {
		out.Subsections = append(out.Subsections, sub.clone())
	}
	return out
}

func (s Subsection) clone() Subsection {
	out := s
	out.Fields = cloneFields(s.Fields)
	return out
}

func cloneFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}
