package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"tracker/internal/chat"
	"tracker/internal/prompt"
	"tracker/internal/provider"
	"tracker/internal/session"
	"tracker/internal/storage"
	"tracker/internal/tracker"
)

// scriptedProvider 按脚本逐次返回回复，并记录最后一次请求
// scriptedProvider returns scripted replies in order and records the last
// request for assertions.
type scriptedProvider struct {
	replies []string
	calls   int
	model   string
	lastReq provider.ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req provider.ChatRequest, cb *provider.StreamCallbacks) (provider.ChatResponse, error) {
	p.lastReq = req
	if p.calls >= len(p.replies) {
		return provider.ChatResponse{}, fmt.Errorf("no scripted reply for call %d", p.calls)
	}
	reply := p.replies[p.calls]
	p.calls++
	if cb != nil && cb.OnTextChunk != nil {
		cb.OnTextChunk(reply)
	}
	return provider.ChatResponse{Content: reply, FinishReason: "stop"}, nil
}

func (p *scriptedProvider) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{{ID: p.model}}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) CurrentModel() string { return p.model }

func (p *scriptedProvider) SetModel(model string) error {
	p.model = model
	return nil
}

// echoReply 按回显契约构造一条回复：叙事 + 完整复述模板的围栏块
// echoReply builds a contract-conforming reply: narrative plus a fenced block
// restating the whole template with the given mutation applied.
func echoReply(t *testing.T, template *tracker.Data, narrative string, mutate func(*tracker.Data)) string {
	t.Helper()
	echo := template.Clone()
	if mutate != nil {
		mutate(echo)
	}
	payload, err := prompt.BuildPayload(echo)
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}
	return narrative + "\n```json\n" + string(payload) + "\n```"
}

func setFieldValue(t *testing.T, d *tracker.Data, secName, fieldName string, value any) {
	t.Helper()
	sec := findSection(d, secName)
	if sec == nil {
		t.Fatalf("section %s not found", secName)
	}
	f := findField(sec.Fields, fieldName)
	if f == nil {
		t.Fatalf("field %s/%s not found", secName, fieldName)
	}
	f.Value = value
}

func fieldValue(t *testing.T, d *tracker.Data, secName, fieldName string) any {
	t.Helper()
	sec := findSection(d, secName)
	if sec == nil {
		t.Fatalf("section %s not found", secName)
	}
	f := findField(sec.Fields, fieldName)
	if f == nil {
		t.Fatalf("field %s/%s not found", secName, fieldName)
	}
	return f.Value
}

func newTestOrchestrator(p provider.Provider, store storage.Store, autoUpdate bool) *Orchestrator {
	return New(p, Options{
		Store:      store,
		AutoUpdate: autoUpdate,
	})
}

func TestRunTurnCommitsParsedTracker(t *testing.T) {
	template := tracker.DefaultTemplate()
	reply := echoReply(t, template, "The ship docks at dawn.", func(d *tracker.Data) {
		setFieldValue(t, d, "Story", "Location", "Harbor")
	})
	p := &scriptedProvider{replies: []string{reply}, model: "test-model"}
	o := newTestOrchestrator(p, nil, true)

	display, err := o.RunTurn(context.Background(), "We arrive at the docks.", nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if display != "The ship docks at dawn." {
		t.Errorf("display = %q, want narrative without the fenced block", display)
	}
	if got := fieldValue(t, o.TrackerData(), "Story", "Location"); got != "Harbor" {
		t.Errorf("live Location = %v, want Harbor", got)
	}
	st := o.State()
	if st.Committed == nil {
		t.Fatal("Committed baseline not set after a non-swipe turn")
	}
	if got := fieldValue(t, st.Committed, "Story", "Location"); got != "Harbor" {
		t.Errorf("committed Location = %v, want Harbor", got)
	}
	msgs := o.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != chat.RoleAssistant || last.Tracker == nil {
		t.Errorf("last message role=%s tracker=%v, want assistant with snapshot", last.Role, last.Tracker)
	}
	// The outgoing system prompt must carry the baseline payload.
	if !strings.Contains(p.lastReq.Messages[0].Content, `"Location"`) {
		t.Error("outgoing system prompt is missing the tracker payload")
	}
}

func TestSwipeRetainsCommittedBaseline(t *testing.T) {
	template := tracker.DefaultTemplate()
	first := echoReply(t, template, "You reach the harbor.", func(d *tracker.Data) {
		setFieldValue(t, d, "Story", "Location", "Harbor")
	})
	second := echoReply(t, template, "You scale the cliffs instead.", func(d *tracker.Data) {
		setFieldValue(t, d, "Story", "Location", "Cliffs")
	})
	p := &scriptedProvider{replies: []string{first, second}, model: "test-model"}
	o := newTestOrchestrator(p, nil, true)

	if _, err := o.RunTurn(context.Background(), "Onward.", nil); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	before := len(o.Messages())

	if _, err := o.Swipe(context.Background(), nil); err != nil {
		t.Fatalf("Swipe: %v", err)
	}
	if got := len(o.Messages()); got != before {
		t.Errorf("message count after swipe = %d, want %d (reply replaced, not appended)", got, before)
	}
	st := o.State()
	if got := fieldValue(t, st.Live, "Story", "Location"); got != "Cliffs" {
		t.Errorf("live Location after swipe = %v, want Cliffs", got)
	}
	if got := fieldValue(t, st.Committed, "Story", "Location"); got != "Harbor" {
		t.Errorf("committed Location after swipe = %v, want the retained Harbor baseline", got)
	}
}

func TestSwipeSeedsBaselineWhenNoneExists(t *testing.T) {
	template := tracker.DefaultTemplate()
	reply := echoReply(t, template, "Again, then.", func(d *tracker.Data) {
		setFieldValue(t, d, "Story", "Location", "Crossroads")
	})
	p := &scriptedProvider{replies: []string{reply}, model: "test-model"}
	o := newTestOrchestrator(p, nil, true)
	// A prior assistant reply that never produced a parse: no baseline yet.
	o.messages = []chat.Message{
		{Role: chat.RoleUser, Content: "Hello."},
		{Role: chat.RoleAssistant, Content: "A plain reply."},
	}
	o.ResetTracker()

	if _, err := o.Swipe(context.Background(), nil); err != nil {
		t.Fatalf("Swipe: %v", err)
	}
	st := o.State()
	if st.Committed == nil {
		t.Fatal("first-ever parse during a swipe must seed the baseline")
	}
	if got := fieldValue(t, st.Committed, "Story", "Location"); got != "Crossroads" {
		t.Errorf("seeded baseline Location = %v, want Crossroads", got)
	}
}

func TestSwipeWithoutAssistantReply(t *testing.T) {
	p := &scriptedProvider{model: "test-model"}
	o := newTestOrchestrator(p, nil, true)
	if _, err := o.Swipe(context.Background(), nil); err == nil {
		t.Fatal("Swipe with no assistant reply should fail")
	}
}

func TestGenerationMutex(t *testing.T) {
	p := &scriptedProvider{model: "test-model"}
	o := newTestOrchestrator(p, nil, true)
	o.ResetTracker()
	o.messages = []chat.Message{{Role: chat.RoleUser, Content: "Hi."}}

	if err := o.State().BeginGeneration(); err != nil {
		t.Fatalf("BeginGeneration: %v", err)
	}
	_, err := o.ForceUpdate(context.Background(), nil)
	if !errors.Is(err, session.ErrGenerationInProgress) {
		t.Errorf("ForceUpdate during generation = %v, want ErrGenerationInProgress", err)
	}
	o.State().FinishGeneration()
}

func TestPlainTurnWhenAutoUpdateOff(t *testing.T) {
	p := &scriptedProvider{replies: []string{"Just a story beat."}, model: "test-model"}
	o := newTestOrchestrator(p, nil, false)

	display, err := o.RunTurn(context.Background(), "Tell me more.", nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if display != "Just a story beat." {
		t.Errorf("display = %q", display)
	}
	if o.State() != nil && o.State().Committed != nil {
		t.Error("plain turn must not advance the baseline")
	}
	// The outgoing prompt must not carry a tracker payload.
	if strings.Contains(p.lastReq.Messages[0].Content, "Current tracker state") {
		t.Error("plain turn leaked the tracker contract into the prompt")
	}
}

func TestTreeEditingCommands(t *testing.T) {
	p := &scriptedProvider{model: "test-model"}
	o := newTestOrchestrator(p, nil, true)
	ctx := context.Background()

	run := func(input string) string {
		t.Helper()
		out, err := o.RunInput(ctx, input, nil)
		if err != nil {
			t.Fatalf("RunInput(%q): %v", input, err)
		}
		return out
	}

	run("/section add Quests")
	run("/field add Quests Objective :: What the party is pursuing.")
	run("/field set Quests/Objective Find the lighthouse key")

	tree := run("/tracker")
	if !strings.Contains(tree, "Objective: Find the lighthouse key") {
		t.Errorf("tracker render missing edited field:\n%s", tree)
	}

	if out := run("/field rm Quests/Objective"); !strings.Contains(out, "Removed") {
		t.Errorf("field rm = %q", out)
	}
	if out := run("/section rm Quests"); !strings.Contains(out, "Removed") {
		t.Errorf("section rm = %q", out)
	}
	if out := run("/section rm Quests"); !strings.Contains(out, "No such section") {
		t.Errorf("removing a missing section = %q", out)
	}
}

func TestInventoryCommands(t *testing.T) {
	p := &scriptedProvider{model: "test-model"}
	o := newTestOrchestrator(p, nil, true)
	ctx := context.Background()

	out, err := o.RunInput(ctx, "/inventory add Rope, Lantern", nil)
	if err != nil {
		t.Fatalf("inventory add: %v", err)
	}
	if !strings.Contains(out, "Rope") || !strings.Contains(out, "Lantern") {
		t.Errorf("inventory add = %q", out)
	}

	out, err = o.RunInput(ctx, "/inventory rm Rope", nil)
	if err != nil {
		t.Fatalf("inventory rm: %v", err)
	}
	if strings.Contains(out, "Rope") || !strings.Contains(out, "Lantern") {
		t.Errorf("inventory rm = %q", out)
	}

	out, err = o.RunInput(ctx, "/inventory rm Rope", nil)
	if err != nil {
		t.Fatalf("inventory rm repeat: %v", err)
	}
	if !strings.Contains(out, "Not carrying") {
		t.Errorf("removing an absent item = %q", out)
	}
}

func TestSessionPersistenceRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tracker.db")
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	template := tracker.DefaultTemplate()
	reply := echoReply(t, template, "The harbor at last.", func(d *tracker.Data) {
		setFieldValue(t, d, "Story", "Location", "Harbor")
	})
	p := &scriptedProvider{replies: []string{reply}, model: "test-model"}

	o := newTestOrchestrator(p, store, true)
	meta, err := o.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := o.RunTurn(context.Background(), "Sail on.", nil); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	resumed := newTestOrchestrator(&scriptedProvider{model: "test-model"}, store, true)
	got, err := resumed.ResumeSession(meta.ID)
	if err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if got.ID != meta.ID {
		t.Errorf("resumed session ID = %s, want %s", got.ID, meta.ID)
	}
	msgs := resumed.Messages()
	if len(msgs) != 2 {
		t.Fatalf("resumed %d messages, want 2", len(msgs))
	}
	if msgs[1].Tracker == nil {
		t.Error("assistant snapshot lost across resume")
	}
	if v := fieldValue(t, resumed.State().Live, "Story", "Location"); v != "Harbor" {
		t.Errorf("resumed live Location = %v, want Harbor", v)
	}
	if resumed.State().Committed == nil {
		t.Error("committed baseline lost across resume")
	}
}

func TestParseSlashCommand(t *testing.T) {
	tests := []struct {
		input   string
		command string
		args    string
		ok      bool
	}{
		{"/help", "help", "", true},
		{"  /tracker update ", "tracker", "update", true},
		{"/MODEL qwen-plus", "model", "qwen-plus", true},
		{"hello there", "", "", false},
		{"/", "", "", true},
	}
	for _, tt := range tests {
		command, args, ok := parseSlashCommand(tt.input)
		if command != tt.command || args != tt.args || ok != tt.ok {
			t.Errorf("parseSlashCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.input, command, args, ok, tt.command, tt.args, tt.ok)
		}
	}
}
