package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mgastelum/tubedigest-backend/pkg/config"
)

const systemPrompt = `You summarize YouTube videos for busy professionals.
Given the channel, video title, description, and duration, produce a
concise summary of 3 to 5 bullet points covering the key takeaways.
Plain text only, no markdown headers.`

// VideoInput carries everything known about the video to summarize.
type VideoInput struct {
	Title           string
	Description     string
	ChannelTitle    string
	DurationSeconds int64
}

// Summarizer produces short digests of video content.
type Summarizer interface {
	Summarize(ctx context.Context, input VideoInput) (string, error)
}

// OpenAISummarizer implements Summarizer on the OpenAI chat completion API.
type OpenAISummarizer struct {
	client *openai.Client
	model  string
}

// NewOpenAISummarizer builds a summarizer from the configured API key and model.
func NewOpenAISummarizer(cfg config.OpenAIConfig) (*OpenAISummarizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	return &OpenAISummarizer{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Model,
	}, nil
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, input VideoInput) (string, error) {
	if strings.TrimSpace(input.Title) == "" {
		return "", fmt.Errorf("video title is required")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(input)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("chat completion returned empty summary")
	}
	return summary, nil
}

func buildUserPrompt(input VideoInput) string {
	var b strings.Builder
	if channel := strings.TrimSpace(input.ChannelTitle); channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", channel)
	}
	fmt.Fprintf(&b, "Title: %s\n", input.Title)
	if input.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", (time.Duration(input.DurationSeconds) * time.Second).String())
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		fmt.Fprintf(&b, "\nDescription:\n%s\n", truncate(desc, 2000))
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
