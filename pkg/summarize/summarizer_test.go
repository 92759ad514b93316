package summarize

import (
	"strings"
	"testing"

	"github.com/mgastelum/tubedigest-backend/pkg/config"
)

func TestNewOpenAISummarizerRequiresKey(t *testing.T) {
	if _, err := NewOpenAISummarizer(config.OpenAIConfig{Model: "gpt-4o-mini"}); err == nil {
		t.Fatal("expected missing api key to be rejected")
	}
}

func TestBuildUserPromptIncludesSections(t *testing.T) {
	prompt := buildUserPrompt(VideoInput{
		Title:           "How to brew coffee",
		Description:     "A deep dive into pour-over technique.",
		ChannelTitle:    "Coffee Lab",
		DurationSeconds: 754,
	})

	for _, want := range []string{"Channel: Coffee Lab", "Title: How to brew coffee", "Duration: 12m34s", "Description:"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildUserPromptOmitsEmptySections(t *testing.T) {
	prompt := buildUserPrompt(VideoInput{Title: "Short one"})
	if strings.Contains(prompt, "Channel:") || strings.Contains(prompt, "Duration:") || strings.Contains(prompt, "Description:") {
		t.Errorf("prompt should omit empty sections, got %q", prompt)
	}
}

func TestTruncateCapsLongInput(t *testing.T) {
	long := strings.Repeat("x", 5000)
	if got := truncate(long, 2000); len(got) != 2000 {
		t.Errorf("expected 2000 chars, got %d", len(got))
	}
	if got := truncate("short", 2000); got != "short" {
		t.Errorf("expected passthrough, got %q", got)
	}
}
