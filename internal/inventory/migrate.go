package inventory

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// Source 标记迁移输入的来源形态
// Source tags what shape the migration input turned out to be.
type Source string

const (
	SourceV2      Source = "v2"
	SourceV1      Source = "v1"
	SourceNull    Source = "null"
	SourceDefault Source = "default"
)

// MigrateResult 迁移结果；Inventory 恒为合法 v2
// MigrateResult carries the normalized inventory. Inventory is always a valid
// v2 shape regardless of input.
type MigrateResult struct {
	Inventory Inventory
	Migrated  bool
	Source    Source
}

// Migrate 把来源不明的清单载荷归一化为 v2。对 {v2 对象, v1 字符串, nil, 其他}
// 全定义，处于加载可能损坏的持久化数据的热路径上，因此从不返回错误。
// Migrate normalizes an inventory payload of unknown provenance into the
// canonical v2 shape. Total over {v2 object, v1 string, nil, anything else};
// it sits on the hot path of loading possibly-corrupted persisted data and
// therefore never fails.
func (c *Codec) Migrate(input any) MigrateResult {
	switch v := input.(type) {
	case nil:
		return MigrateResult{Inventory: Default(), Source: SourceNull}

	case Inventory:
		return c.migrateStruct(v)

	case *Inventory:
		if v == nil {
			return MigrateResult{Inventory: Default(), Source: SourceNull}
		}
		return c.migrateStruct(*v)

	case string:
		return c.migrateString(v)

	case json.RawMessage:
		return c.migrateRaw([]byte(v))

	case []byte:
		return c.migrateRaw(v)

	case map[string]any:
		return c.migrateObject(v)

	default:
		c.log.Warn("unrecognized inventory payload shape, using default",
			zap.Any("input", input))
		return MigrateResult{Inventory: Default(), Source: SourceDefault}
	}
}

func (c *Codec) migrateStruct(inv Inventory) MigrateResult {
	if inv.Version != CurrentVersion {
		c.log.Warn("inventory object has unexpected version, using default",
			zap.Int("version", inv.Version))
		return MigrateResult{Inventory: Default(), Source: SourceDefault}
	}
	if inv.Stored == nil {
		inv.Stored = Locations{}
	}
	if strings.TrimSpace(inv.OnPerson) == "" {
		inv.OnPerson = EmptyList
	}
	if strings.TrimSpace(inv.Assets) == "" {
		inv.Assets = EmptyList
	}
	return MigrateResult{Inventory: inv, Source: SourceV2}
}

func (c *Codec) migrateString(s string) MigrateResult {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return MigrateResult{Inventory: Default(), Source: SourceNull}
	}
	inv := Default()
	inv.OnPerson = trimmed
	return MigrateResult{Inventory: inv, Migrated: true, Source: SourceV1}
}

func (c *Codec) migrateRaw(data []byte) MigrateResult {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return MigrateResult{Inventory: Default(), Source: SourceNull}
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		// Raw persisted data may be a bare v1 string without JSON quoting.
		return c.migrateString(trimmed)
	}
	if _, isMap := decoded.(map[string]any); isMap {
		return c.migrateObject(decoded.(map[string]any))
	}
	return c.Migrate(decoded)
}

func (c *Codec) migrateObject(obj map[string]any) MigrateResult {
	version, _ := obj["version"].(float64)
	if int(version) != CurrentVersion {
		c.log.Warn("inventory object lacks v2 version marker, using default",
			zap.Float64("version", version))
		return MigrateResult{Inventory: Default(), Source: SourceDefault}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		c.log.Warn("inventory object not re-encodable, using default", zap.Error(err))
		return MigrateResult{Inventory: Default(), Source: SourceDefault}
	}
	var inv Inventory
	if err := json.Unmarshal(data, &inv); err != nil {
		c.log.Warn("inventory object not decodable as v2, using default", zap.Error(err))
		return MigrateResult{Inventory: Default(), Source: SourceDefault}
	}
	return c.migrateStruct(inv)
}
