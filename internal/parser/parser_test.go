package parser

import (
	"strings"
	"testing"

	"tracker/internal/inventory"
	"tracker/internal/tracker"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	return New(nil, nil)
}

// testTemplate 构造固定的小模板，便于断言
// testTemplate builds a small fixed template for assertions.
func testTemplate() *tracker.Data {
	story := tracker.NewSection("Story")
	story.Fields = append(story.Fields,
		tracker.NewField("Location", "where", tracker.FieldText, "Unknown"))
	plot := tracker.NewSubsection("Plot")
	plot.Fields = append(plot.Fields,
		tracker.NewField("Tension", "0-10", tracker.FieldNumber, 5),
		tracker.NewField("Resolved", "done?", tracker.FieldBoolean, false))
	story.Subsections = append(story.Subsections, plot)

	hero := tracker.NewSection("Hero")
	hero.Fields = append(hero.Fields,
		tracker.NewField("Mood", "feels", tracker.FieldText, "Neutral"),
		tracker.NewField("Inventory", "items", tracker.FieldText, "None"))

	return tracker.EnsureData(&tracker.Data{Sections: []tracker.Section{story, hero}})
}

func fieldIn(t *testing.T, d *tracker.Data, path ...string) *tracker.Field {
	t.Helper()
	for i := range d.Sections {
		sec := &d.Sections[i]
		if sec.Name != path[0] {
			continue
		}
		if len(path) == 2 {
			for j := range sec.Fields {
				if sec.Fields[j].Name == path[1] {
					return &sec.Fields[j]
				}
			}
			return nil
		}
		for j := range sec.Subsections {
			sub := &sec.Subsections[j]
			if sub.Name != path[1] {
				continue
			}
			for k := range sub.Fields {
				if sub.Fields[k].Name == path[2] {
					return &sub.Fields[k]
				}
			}
		}
		return nil
	}
	return nil
}

func TestParseResponseFullEcho(t *testing.T) {
	p := newTestParser(t)
	raw := "The docks at dawn.\n```json\n{" +
		`"Story":{"Location":{"prompt":"where","value":"Harbor"},` +
		`"Plot":{"Tension":{"value":7},"Resolved":{"value":false}}},` +
		`"Hero":{"Mood":{"value":"Wary"},"Inventory":{"value":"sword, shield"}}` +
		"}\n```\nShe steps ashore."

	res := p.ParseResponse(raw, testTemplate())
	if res.Tracker == nil {
		t.Fatal("expected a reconciled tracker")
	}
	if res.CleanedText != "The docks at dawn.\n\nShe steps ashore." {
		t.Errorf("cleaned text = %q", res.CleanedText)
	}
	if f := fieldIn(t, res.Tracker, "Story", "Location"); f == nil || f.Value != "Harbor" {
		t.Errorf("Location = %+v", f)
	}
	if f := fieldIn(t, res.Tracker, "Story", "Plot", "Tension"); f == nil || f.Value != float64(7) {
		t.Errorf("Tension = %+v", f)
	}
	if f := fieldIn(t, res.Tracker, "Hero", "Mood"); f == nil || f.Value != "Wary" {
		t.Errorf("Mood = %+v", f)
	}
}

func TestParseResponseFalsyValuesHonored(t *testing.T) {
	p := newTestParser(t)
	raw := "```json\n{" +
		`"Story":{"Location":{"value":""},"Plot":{"Tension":{"value":0},"Resolved":{"value":false}}}` +
		"}\n```"

	res := p.ParseResponse(raw, testTemplate())
	if res.Tracker == nil {
		t.Fatal("expected a reconciled tracker")
	}
	if f := fieldIn(t, res.Tracker, "Story", "Location"); f == nil || f.Value != "" {
		t.Errorf("empty string not honored: %+v", f)
	}
	if f := fieldIn(t, res.Tracker, "Story", "Plot", "Tension"); f == nil || f.Value != float64(0) {
		t.Errorf("zero not honored: %+v", f)
	}
	if f := fieldIn(t, res.Tracker, "Story", "Plot", "Resolved"); f == nil || f.Value != false {
		t.Errorf("false not honored: %+v", f)
	}
}

func TestParseResponseDropsUnechoedNodes(t *testing.T) {
	p := newTestParser(t)
	// Hero 整段未回显；Plot 中只回显 Tension
	// The Hero section is not echoed; within Plot only Tension is.
	raw := "```json\n{" +
		`"Story":{"Location":{"value":"Harbor"},"Plot":{"Tension":{"value":3}}}` +
		"}\n```"

	res := p.ParseResponse(raw, testTemplate())
	if res.Tracker == nil {
		t.Fatal("expected a reconciled tracker")
	}
	if len(res.Tracker.Sections) != 1 || res.Tracker.Sections[0].Name != "Story" {
		t.Fatalf("unechoed section survived: %+v", res.Tracker.Sections)
	}
	if fieldIn(t, res.Tracker, "Story", "Plot", "Resolved") != nil {
		t.Error("unechoed field survived")
	}
	if fieldIn(t, res.Tracker, "Story", "Plot", "Tension") == nil {
		t.Error("echoed field lost")
	}
}

func TestParseResponseIgnoresExtraPayloadNodes(t *testing.T) {
	p := newTestParser(t)
	raw := "```json\n{" +
		`"Story":{"Location":{"value":"Harbor"},"Invented":{"value":"x"}},` +
		`"Fabricated":{"Thing":{"value":1}}` +
		"}\n```"

	res := p.ParseResponse(raw, testTemplate())
	if res.Tracker == nil {
		t.Fatal("expected a reconciled tracker")
	}
	for _, sec := range res.Tracker.Sections {
		if sec.Name == "Fabricated" {
			t.Error("payload-only section entered the tree")
		}
		for _, f := range sec.Fields {
			if f.Name == "Invented" {
				t.Error("payload-only field entered the tree")
			}
		}
	}
}

func TestParseResponseDisabledFieldsCarriedUnchanged(t *testing.T) {
	p := newTestParser(t)
	template := testTemplate()
	f := fieldIn(t, template, "Hero", "Mood")
	f.Enabled = false
	f.Value = "Hidden"

	// 载荷试图改写禁用字段；该字段未参与回显契约，原值保留
	// The payload tries to rewrite the disabled field; it never joined the
	// echo contract so its value is kept.
	raw := "```json\n{" +
		`"Hero":{"Mood":{"value":"Hijacked"},"Inventory":{"value":"None"}}` +
		"}\n```"

	res := p.ParseResponse(raw, template)
	if res.Tracker == nil {
		t.Fatal("expected a reconciled tracker")
	}
	got := fieldIn(t, res.Tracker, "Hero", "Mood")
	if got == nil || got.Value != "Hidden" || got.Enabled {
		t.Errorf("disabled field not carried through unchanged: %+v", got)
	}
}

func TestParseResponseFirstValidBlockWins(t *testing.T) {
	p := newTestParser(t)
	raw := "Intro.\n```\nnot json at all\n```\nMiddle.\n" +
		"```json\n{\"Story\":{\"Location\":{\"value\":\"First\"}}}\n```\n" +
		"```json\n{\"Story\":{\"Location\":{\"value\":\"Second\"}}}\n```"

	res := p.ParseResponse(raw, testTemplate())
	if res.Tracker == nil {
		t.Fatal("expected a reconciled tracker")
	}
	if f := fieldIn(t, res.Tracker, "Story", "Location"); f.Value != "First" {
		t.Errorf("Location = %v, want the first valid block", f.Value)
	}
	// 第一个合法块被剔除，后续块保留在叙事里
	// The winning block is excised; later blocks stay in the narrative.
	if !strings.Contains(res.CleanedText, "Second") {
		t.Errorf("later block should remain in text: %q", res.CleanedText)
	}
	if strings.Contains(res.CleanedText, "First") {
		t.Errorf("winning block not excised: %q", res.CleanedText)
	}
	if !strings.Contains(res.CleanedText, "not json at all") {
		t.Errorf("non-payload fence should stay: %q", res.CleanedText)
	}
}

func TestParseResponseInventoryCoercion(t *testing.T) {
	p := newTestParser(t)
	raw := "```json\n{" +
		`"Hero":{"Mood":{"value":"Calm"},"Inventory":{"value":"- sword\n- **shield**"}}` +
		"}\n```"

	res := p.ParseResponse(raw, testTemplate())
	if res.Tracker == nil {
		t.Fatal("expected a reconciled tracker")
	}
	f := fieldIn(t, res.Tracker, "Hero", "Inventory")
	inv, ok := f.Value.(inventory.Inventory)
	if !ok {
		t.Fatalf("inventory value type %T", f.Value)
	}
	if inv.OnPerson != "Sword, Shield" {
		t.Errorf("onPerson = %q", inv.OnPerson)
	}
	if inv.Version != inventory.CurrentVersion {
		t.Errorf("version = %d", inv.Version)
	}
}

func TestParseResponseHTMLExtraction(t *testing.T) {
	p := newTestParser(t)
	raw := "Before.<style>.x{color:red}</style>After.<script>alert(1)</script>"

	res := p.ParseResponse(raw, testTemplate())
	if res.Tracker != nil {
		t.Error("no payload should mean nil tracker")
	}
	if !strings.Contains(res.HTML, "<style>") || !strings.Contains(res.HTML, "<script>") {
		t.Errorf("HTML blocks not captured: %q", res.HTML)
	}
	if strings.Contains(res.CleanedText, "style") || strings.Contains(res.CleanedText, "script") {
		t.Errorf("HTML not removed from text: %q", res.CleanedText)
	}
}

func TestParseResponseNoPayloadIsNotAnError(t *testing.T) {
	p := newTestParser(t)
	res := p.ParseResponse("Just narrative.\n\n\n\nWith gaps.", testTemplate())
	if res.Tracker != nil {
		t.Error("tracker should be nil without a payload")
	}
	if res.CleanedText != "Just narrative.\n\nWith gaps." {
		t.Errorf("newline collapse failed: %q", res.CleanedText)
	}
}

func TestParseResponseNilTemplate(t *testing.T) {
	p := newTestParser(t)
	res := p.ParseResponse("```json\n{\"Story\":{}}\n```", nil)
	if res.Tracker != nil {
		t.Error("nil template cannot reconcile")
	}
}
