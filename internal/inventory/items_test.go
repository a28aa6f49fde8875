package inventory

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestCodec(t *testing.T, maxItems int) *Codec {
	t.Helper()
	return NewCodec(nil, maxItems)
}

func TestParseItems(t *testing.T) {
	c := newTestCodec(t, 0)

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", []string{}},
		{"none literal", "None", []string{}},
		{"none mixed case", "nOnE", []string{}},
		{"simple list", "sword, shield, potion", []string{"Sword", "Shield", "Potion"}},
		{"markdown and bullets", "**Sword**\n- rope\n* `lantern`", []string{"Sword", "Rope", "Lantern"}},
		{"numbered list", "1. sword\n2) shield", []string{"Sword", "Shield"}},
		{"wrapping brackets", `["sword", "shield"]`, []string{"Sword", "Shield"}},
		{"wrapping quotes", `"sword, shield"`, []string{"Sword", "Shield"}},
		{"quoted elements without brackets", `"sword", "shield"`, []string{"Sword", "Shield"}},
		{"single-quoted elements", `['rope', 'lantern']`, []string{"Rope", "Lantern"}},
		{
			"parenthetical commas survive",
			"Sword (gold-inlaid, cursed), Shield",
			[]string{"Sword (gold-inlaid, cursed)", "Shield"},
		},
		{
			"newline inside parens folds to space",
			"Sword (gold-inlaid,\ncursed), Shield",
			[]string{"Sword (gold-inlaid, cursed)", "Shield"},
		},
		{"embedded none dropped", "sword, none, shield", []string{"Sword", "Shield"}},
		{"unbalanced close paren tolerated", "sword), shield", []string{"Sword)", "Shield"}},
		{"whitespace runs collapse", "long   sword,  old\tshield", []string{"Long sword", "Old shield"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ParseItems(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseItems(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestParseItemsSpecimen(t *testing.T) {
	c := newTestCodec(t, 0)
	raw := "Sword (gold-inlaid, cursed), Shield, **Potion**\n- Rope"
	want := []string{"Sword (gold-inlaid, cursed)", "Shield", "Potion", "Rope"}
	if diff := cmp.Diff(want, c.ParseItems(raw)); diff != "" {
		t.Errorf("specimen mismatch (-want +got):\n%s", diff)
	}
}

func TestParseItemsMaxItems(t *testing.T) {
	c := newTestCodec(t, 3)
	got := c.ParseItems("a, b, c, d, e")
	if len(got) != 3 {
		t.Fatalf("got %d items, want 3", len(got))
	}
}

func TestSerializeItems(t *testing.T) {
	c := newTestCodec(t, 0)
	if got := c.SerializeItems(nil); got != EmptyList {
		t.Errorf("empty list = %q, want %q", got, EmptyList)
	}
	if got := c.SerializeItems([]string{"Sword", "Shield"}); got != "Sword, Shield" {
		t.Errorf("join = %q", got)
	}
}

func TestCleanItemStringRoundTripLaw(t *testing.T) {
	c := newTestCodec(t, 0)
	// 清洗一次后的串再清洗必须是不动点
	// A cleaned string must be a fixed point of another clean.
	inputs := []string{
		"sword (gold-inlaid, cursed), **shield**\n- rope",
		"None",
		"[lantern]",
		"a, , b",
	}
	for _, raw := range inputs {
		once := c.CleanItemString(raw)
		twice := c.CleanItemString(once)
		if once != twice {
			t.Errorf("CleanItemString not idempotent for %q: %q -> %q", raw, once, twice)
		}
	}
}

func TestValidateStored(t *testing.T) {
	c := newTestCodec(t, 0)
	raw := Locations{
		{Name: "Home", Items: "chest,  rope"},
		{Name: "__proto__", Items: "evil"},
		{Name: "Vault", Items: "none"},
	}
	got := c.ValidateStored(raw)

	if _, ok := got.Get("__proto__"); ok {
		t.Error("blocked location name survived validation")
	}
	if items, ok := got.Get("Home"); !ok || items != "Chest, Rope" {
		t.Errorf("Home = %q, %v", items, ok)
	}
	// 地点是结构性的：清空的清单仍保留条目
	// Locations are structural: an emptied list keeps its entry.
	if items, ok := got.Get("Vault"); !ok || items != EmptyList {
		t.Errorf("Vault = %q, %v; want preserved with %q", items, ok, EmptyList)
	}
}

func TestCapitalizeFirstPreservesRest(t *testing.T) {
	if got := capitalizeFirst("iron SWORD"); got != "Iron SWORD" {
		t.Errorf("capitalizeFirst = %q", got)
	}
	if got := capitalizeFirst(""); got != "" {
		t.Errorf("capitalizeFirst empty = %q", got)
	}
}

func TestUnwrapHelpers(t *testing.T) {
	if got := unwrapBrackets("[[a, b]]"); got != "a, b" {
		t.Errorf("unwrapBrackets = %q", got)
	}
	if got := unwrapBrackets("[a, b"); got != "[a, b" {
		t.Errorf("unmatched bracket should stay: %q", got)
	}
	if got := unwrapQuotes(`"a"`); got != "a" {
		t.Errorf("unwrapQuotes = %q", got)
	}
	if got := unwrapQuotes(`"a`); !strings.HasPrefix(got, `"`) {
		t.Errorf("unmatched quote should stay: %q", got)
	}
	if got := unwrapQuotes(`"a", "b"`); got != `"a", "b"` {
		t.Errorf("quote pair closing early must not strip: %q", got)
	}
	if got := unwrapQuotes(`"a \"b\" c"`); got != `a \"b\" c` {
		t.Errorf("escaped inner quotes should still unwrap: %q", got)
	}
}
