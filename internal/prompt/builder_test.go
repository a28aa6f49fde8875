package prompt

import (
	"strings"
	"testing"

	"tracker/internal/chat"
)

func TestBuilderMessages(t *testing.T) {
	b := NewBuilder("You narrate a nautical tale.", 16000)
	history := []chat.Message{
		{Role: chat.RoleUser, Content: "We set sail."},
		{Role: chat.RoleAssistant, Content: "The wind rises."},
	}

	out, err := b.Messages(history, payloadTemplate())
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d messages, want system + 2 history", len(out))
	}

	sys := out[0]
	if sys.Role != chat.RoleSystem {
		t.Fatalf("first message role = %s", sys.Role)
	}
	// 系统提示 = 人设 + 回复契约 + 基线载荷
	// The system prompt stacks persona, reply contract and baseline payload.
	for _, want := range []string{
		"You narrate a nautical tale.",
		"```json",
		"Current tracker state:",
		`"Location"`,
	} {
		if !strings.Contains(sys.Content, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if out[1].Content != "We set sail." || out[2].Content != "The wind rises." {
		t.Error("history not carried in order")
	}
}

func TestBuilderTrimsOldestFirst(t *testing.T) {
	b := NewBuilder("", 600)
	long := strings.Repeat("word ", 200)
	history := []chat.Message{
		{Role: chat.RoleUser, Content: long},
		{Role: chat.RoleAssistant, Content: long},
		{Role: chat.RoleUser, Content: "latest"},
	}

	out, err := b.Messages(history, payloadTemplate())
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	last := out[len(out)-1]
	if last.Content != "latest" {
		t.Fatalf("newest message must survive trimming, got %q", last.Content)
	}
	if len(out) >= 4 {
		t.Errorf("expected oldest messages dropped, kept %d", len(out))
	}
}

func TestBuilderDefaultLimit(t *testing.T) {
	b := NewBuilder("x", 0)
	if b.ContextLimit() != 16000 {
		t.Errorf("default limit = %d", b.ContextLimit())
	}
}

func TestTokenizerCounts(t *testing.T) {
	tok := DefaultTokenizer()
	if tok.CountText("") != 0 {
		t.Error("empty text should count zero")
	}
	english := tok.CountText("a plain english sentence of some length")
	if english <= 0 {
		t.Fatal("english count not positive")
	}
	// 每条消息带固定结构开销 / per-message structural overhead
	msg := chat.Message{Role: chat.RoleUser, Content: "hi"}
	if tok.CountMessage(msg) <= tok.CountText("hi") {
		t.Error("message overhead missing")
	}
}

func TestHeuristicTokenCount(t *testing.T) {
	// CJK 字符按 ~1.5 token 计，密度远高于 ASCII
	// CJK characters weigh ~1.5 tokens each, far denser than ASCII.
	cjk := heuristicTokenCount("追踪器正在更新当前场景")
	ascii := heuristicTokenCount("tracker update now")
	if cjk <= ascii {
		t.Errorf("cjk=%d should exceed ascii=%d for similar lengths", cjk, ascii)
	}
	if heuristicTokenCount("a") < 1 {
		t.Error("estimate must be at least 1")
	}
}
