package format

import (
	"strings"
	"testing"

	"answer-engine/web/types"
)

func TestNormalizeAnswerText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"curly_quotes", "Use a “shim” and you’re done", "Use a \"shim\" and you're done"},
		{
			"list_after_text_gets_blank_line",
			"**Steps:**\n- Remove the door\n- Loosen the screws",
			"**Steps:**\n\n- Remove the door\n- Loosen the screws",
		},
		{
			"existing_blank_line_untouched",
			"Intro.\n\n- item one\n- item two",
			"Intro.\n\n- item one\n- item two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAnswerText(tt.in); got != tt.want {
				t.Errorf("NormalizeAnswerText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderAnswerHTML(t *testing.T) {
	html := RenderAnswerHTML("## Fix\n\nTighten the **top** hinge.")
	if !strings.Contains(html, "<h2") {
		t.Error("heading not rendered")
	}
	if !strings.Contains(html, "<strong>top</strong>") {
		t.Error("bold text not rendered")
	}
}

func TestRenderAnswerPage(t *testing.T) {
	entry := &types.AnswerEntry{
		Question:   "Why does my door sag? <script>",
		AnswerText: "Tighten the top hinge.",
		Sources: []types.AnswerSource{
			{Title: "hinge-guide", Source: "knowledge_base"},
		},
	}

	page := RenderAnswerPage(entry)
	if !strings.Contains(page, "&lt;script&gt;") {
		t.Error("question not HTML-escaped")
	}
	if !strings.Contains(page, "Tighten the top hinge.") {
		t.Error("answer body missing")
	}
	if !strings.Contains(page, "hinge-guide") {
		t.Error("sources section missing")
	}
}
