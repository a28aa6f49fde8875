// Package inventory 实现物品清单微语法的编解码、存放地点校验与 v1→v2 迁移。
// Package inventory implements the item-list micro-grammar codec, stored
// location validation and the v1→v2 inventory migration.
package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CurrentVersion v2 是当前的清单载荷版本
// CurrentVersion is the current inventory payload version.
const CurrentVersion = 2

// EmptyList 空清单的序列化形式
// EmptyList is the serialized form of an empty item list.
const EmptyList = "None"

// Location 一个命名存放地点及其物品清单串
// Location is one named storage location and its serialized item list.
type Location struct {
	Name  string
	Items string
}

// Locations 保序的 地点名→清单 映射；JSON 形式为对象，键序即插入序。
// Locations is an insertion-ordered location→items map. Its JSON form is an
// object whose key order is the insertion (and display) order.
type Locations []Location

// Get 按名取清单串
// Get returns the item string for a location name.
func (l Locations) Get(name string) (string, bool) {
	for _, loc := range l {
		if loc.Name == name {
			return loc.Items, true
		}
	}
	return "", false
}

// Set 更新或按插入序追加
// Set updates an existing location or appends in insertion order.
func (l *Locations) Set(name, items string) {
	for i := range *l {
		if (*l)[i].Name == name {
			(*l)[i].Items = items
			return
		}
	}
	*l = append(*l, Location{Name: name, Items: items})
}

// Remove 删除地点；返回是否存在
// Remove deletes a location and reports whether it existed.
func (l *Locations) Remove(name string) bool {
	for i := range *l {
		if (*l)[i].Name == name {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return true
		}
	}
	return false
}

// MarshalJSON 以插入序输出对象
// MarshalJSON emits a JSON object preserving insertion order.
func (l Locations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, loc := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(loc.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(loc.Items)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 逐 token 解码以保留键序；非字符串值被忽略（交由迁移层兜底）。
// UnmarshalJSON decodes token by token to preserve key order. Non-string
// values are skipped; the migration layer handles malformed payloads.
func (l *Locations) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*l = Locations{}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("stored inventory: expected object, got %v", tok)
	}
	out := Locations{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var val any
		if err := dec.Decode(&val); err != nil {
			return err
		}
		if items, ok := val.(string); ok {
			out.Set(key, items)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}

// Inventory v2 清单载荷：随身、分地点存放与资产三部分，值均为清单串。
// Inventory is the v2 payload: items on person, items stored per location,
// and long-term assets. Every value is a serialized item list or "None".
type Inventory struct {
	Version  int       `json:"version"`
	OnPerson string    `json:"onPerson"`
	Stored   Locations `json:"stored"`
	Assets   string    `json:"assets"`
}

// Default 规范的空 v2 清单
// Default returns the canonical empty v2 inventory.
func Default() Inventory {
	return Inventory{
		Version:  CurrentVersion,
		OnPerson: EmptyList,
		Stored:   Locations{},
		Assets:   EmptyList,
	}
}

// Clone 深拷贝
// Clone deep-copies the inventory.
func (inv Inventory) Clone() Inventory {
	out := inv
	out.Stored = make(Locations, len(inv.Stored))
	copy(out.Stored, inv.Stored)
	return out
}
