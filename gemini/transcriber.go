package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const transcribeInstruction = `Transcribe this phone call recording in English. Write one line per sentence or pause, prefixed with the start time as [mm:ss]. Output only the transcript. If nobody speaks, output nothing.`

// Transcriber turns a call recording into timestamped text. It is used when
// the live session produced no transcript.
type Transcriber struct {
	models ContentGenerator
	model  string
}

func NewTranscriber(models ContentGenerator, model string) *Transcriber {
	return &Transcriber{models: models, model: model}
}

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("transcribe: empty recording")
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribeInstruction),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}
	resp, err := t.models.GenerateContent(ctx, t.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
