package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Summaries used instead of calling the model.
const (
	NoConversationSummary = "No conversation captured - caller may have hung up immediately or line was silent."
	UnavailableSummary    = "Summary not available."
)

const summaryInstruction = `Summarize this call transcript. If the transcript shows only an AI greeting with no caller response, state "No conversation - caller hung up immediately." Otherwise, format with clear section headings and bullet points. Use dash (-) for bullets, NO asterisks. Sections: "What They Wanted", "Key Details", "Action Items". Keep it professional and easy to read. Be honest - do not invent details if the caller said nothing.`

// minSummaryInput is the shortest transcript worth sending to the model.
const minSummaryInput = 30

// Summarizer writes the owner-facing summary of a call.
type Summarizer struct {
	models ContentGenerator
	model  string
}

func NewSummarizer(models ContentGenerator, model string) *Summarizer {
	return &Summarizer{models: models, model: model}
}

func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if len(strings.TrimSpace(transcript)) < minSummaryInput {
		return NoConversationSummary, nil
	}

	resp, err := s.models.GenerateContent(ctx, s.model, genai.Text(transcript), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(summaryInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.3),
		MaxOutputTokens:   300,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("summarize: empty response")
	}
	return text, nil
}
