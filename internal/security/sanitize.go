// Package security 校验从模型输出与持久化数据进入核心的字符串：长度上限与危险属性名黑名单。
// Package security validates strings entering the core from model output and
// persisted data: length limits and a block-list of dangerous property names.
package security

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// MaxItemNameLength 单个物品名的最大长度（按 rune 计）
	// MaxItemNameLength is the maximum item name length in runes.
	MaxItemNameLength = 500
	// MaxLocationNameLength 存放地点名的最大长度
	// MaxLocationNameLength is the maximum location name length in runes.
	MaxLocationNameLength = 200
)

// blockedPropertyNames 可能造成原型污染或遮蔽内建对象成员的属性名（大小写不敏感）。
// Property names that could cause prototype pollution in a consumer or shadow
// built-in object members. Matched case-insensitively.
var blockedPropertyNames = map[string]struct{}{
	"__proto__":        {},
	"constructor":      {},
	"prototype":        {},
	"tostring":         {},
	"valueof":          {},
	"__definegetter__": {},
	"__definesetter__": {},
	"__lookupgetter__": {},
	"__lookupsetter__": {},
}

// Sanitizer 按策略清洗物品名与地点名；违规只降级处理并告警，从不上抛错误。
// Sanitizer applies the inventory security policy. Violations are degraded and
// logged, never surfaced as hard failures.
type Sanitizer struct {
	log *zap.Logger
}

func NewSanitizer(log *zap.Logger) *Sanitizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sanitizer{log: log}
}

// ItemName 清洗单个物品名；空或 "none" 视为拒绝，超长截断并告警
// ItemName sanitizes a single item name. Empty or "none" is rejected;
// over-length names are truncated with a logged warning.
func (s *Sanitizer) ItemName(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	if name == "" || strings.EqualFold(name, "none") {
		return "", false
	}
	if runes := []rune(name); len(runes) > MaxItemNameLength {
		s.log.Warn("item name exceeds maximum length, truncating",
			zap.Int("length", len(runes)),
			zap.Int("max", MaxItemNameLength))
		name = string(runes[:MaxItemNameLength])
	}
	return name, true
}

// LocationName 清洗存放地点名；命中黑名单的属性名被拒绝并告警
// LocationName sanitizes a storage location name. Block-listed property names
// are rejected with a logged warning.
func (s *Sanitizer) LocationName(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", false
	}
	if _, blocked := blockedPropertyNames[strings.ToLower(name)]; blocked {
		s.log.Warn("location name rejected by security policy", zap.String("name", name))
		return "", false
	}
	if runes := []rune(name); len(runes) > MaxLocationNameLength {
		s.log.Warn("location name exceeds maximum length, truncating",
			zap.Int("length", len(runes)),
			zap.Int("max", MaxLocationNameLength))
		name = string(runes[:MaxLocationNameLength])
	}
	return name, true
}
