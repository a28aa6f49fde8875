package inventory

import (
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"tracker/internal/security"
)

// DefaultMaxItems 单个清单的物品数量上限
// DefaultMaxItems caps the number of items in a single list.
const DefaultMaxItems = 100

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	listMarker     = regexp.MustCompile(`^(?:[-•*]\s+|\d+[.)]\s+|[a-zA-Z][.)]\s+)`)
	markdownNoiser = strings.NewReplacer("**", "", "__", "", "~~", "", "`", "", "*", "")
)

// Codec 解析/序列化清单微语法；所有候选物品都经过 sanitizer。
// Codec parses and serializes the item-list micro-grammar. Every candidate
// item passes through the sanitizer, which may reject or truncate it.
type Codec struct {
	san      *security.Sanitizer
	log      *zap.Logger
	maxItems int
}

func NewCodec(log *zap.Logger, maxItems int) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Codec{
		san:      security.NewSanitizer(log),
		log:      log,
		maxItems: maxItems,
	}
}

// ParseItems 从任意模型产出的文本解析出有序物品名列表。
// ParseItems turns arbitrary model-produced text into a clean ordered list of
// item names. "" and "none" parse to an empty list.
func (c *Codec) ParseItems(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "none") {
		return []string{}
	}

	s = unwrapBrackets(s)
	s = unwrapQuotes(s)
	s = c.newlinesToCommas(s)
	s = markdownNoiser.Replace(s)
	s = whitespaceRun.ReplaceAllString(s, " ")

	items := make([]string, 0, 8)
	truncated := false
	for _, part := range c.splitTopLevel(s) {
		item := strings.TrimSpace(part)
		item = listMarker.ReplaceAllString(item, "")
		item = unwrapQuotes(strings.TrimSpace(item))
		item = strings.TrimSpace(item)
		if item == "" || strings.EqualFold(item, "none") {
			continue
		}
		item = capitalizeFirst(item)
		cleaned, ok := c.san.ItemName(item)
		if !ok {
			continue
		}
		if len(items) >= c.maxItems {
			truncated = true
			break
		}
		items = append(items, cleaned)
	}
	if truncated {
		c.log.Warn("item list exceeds maximum, truncating", zap.Int("max", c.maxItems))
	}
	return items
}

// SerializeItems 以 ", " 连接；空清单输出字面量 "None"
// SerializeItems joins with ", ", or returns the literal "None" when empty.
func (c *Codec) SerializeItems(items []string) string {
	if len(items) == 0 {
		return EmptyList
	}
	return strings.Join(items, ", ")
}

// CleanItemString 解析-清洗-重序列化一个清单串
// CleanItemString parses, re-sanitizes and re-serializes an item string.
func (c *Codec) CleanItemString(raw string) string {
	return c.SerializeItems(c.ParseItems(raw))
}

// ValidateStored 保留通过地点名校验的条目并规范化其清单串。
// 地点是结构性的：即使内容归一化为 "None" 也保留条目。
// ValidateStored keeps entries whose location names pass the sanitizer and
// normalizes their item strings. Locations are structural: an entry whose
// contents normalize to "None" is preserved rather than dropped.
func (c *Codec) ValidateStored(raw Locations) Locations {
	out := Locations{}
	for _, loc := range raw {
		name, ok := c.san.LocationName(loc.Name)
		if !ok {
			continue
		}
		out.Set(name, c.CleanItemString(loc.Items))
	}
	return out
}

// newlinesToCommas 括号深度为 0 时换行视作分隔逗号；括号内的换行折叠成单个空格，
// 使单个物品的括注描述可以跨行而不被切开。
// At paren depth 0 a newline acts as a separating comma; inside parentheses
// newlines collapse to a single space so one item's parenthetical description
// may span lines without being split.
func (c *Codec) newlinesToCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
			b.WriteRune(r)
		case ')':
			if depth > 0 {
				depth--
			}
			b.WriteRune(r)
		case '\r':
			// handled with the following \n
		case '\n':
			if depth > 0 {
				b.WriteRune(' ')
			} else {
				b.WriteRune(',')
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitTopLevel 仅在括号深度 0 处按逗号切分；多余的闭括号被容忍，深度钳制为非负。
// splitTopLevel splits on commas at paren depth 0. Unbalanced closing parens
// are tolerated with the depth clamped to zero.
func (c *Codec) splitTopLevel(s string) []string {
	parts := make([]string, 0, 8)
	var cur strings.Builder
	depth := 0
	unbalanced := false
	for _, r := range s {
		switch r {
		case '(':
			depth++
			cur.WriteRune(r)
		case ')':
			depth--
			if depth < 0 {
				depth = 0
				unbalanced = true
			}
			cur.WriteRune(r)
		case ',':
			if depth == 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			} else {
				cur.WriteRune(r)
			}
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	if unbalanced {
		c.log.Warn("unbalanced closing parenthesis in item list, depth clamped")
	}
	return parts
}

// unwrapBrackets 逐层剥掉包裹整串的 [..] / {..}
// unwrapBrackets repeatedly strips one layer of wrapping brackets or braces.
func unwrapBrackets(s string) string {
	for {
		s = strings.TrimSpace(s)
		if len(s) < 2 {
			return s
		}
		first, last := s[0], s[len(s)-1]
		if (first == '[' && last == ']') || (first == '{' && last == '}') {
			s = s[1 : len(s)-1]
			continue
		}
		return s
	}
}

// unwrapQuotes 只在引号对确实包裹整串时剥掉它：内部若出现同类未转义引号，
// 说明首引号早已闭合（如 `"sword", "shield"`），原样返回。
// unwrapQuotes strips one layer of wrapping quotes, but only when the pair
// really wraps the whole string. An unescaped quote of the same kind inside
// means the opening quote closed earlier, as in `"sword", "shield"`, so the
// string is returned untouched.
func unwrapQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	q := s[0]
	if (q != '"' && q != '\'') || s[len(s)-1] != q {
		return s
	}
	inner := s[1 : len(s)-1]
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' {
			i++
			continue
		}
		if inner[i] == q {
			return s
		}
	}
	return inner
}

// capitalizeFirst 只把首字符大写，其余原样保留
// capitalizeFirst upper-cases only the first character.
func capitalizeFirst(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
