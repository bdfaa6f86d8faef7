package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultVisionTimeout = 60 * time.Second
	noTextMarker         = "NO_TEXT"

	ocrInstruction = `You are an OCR engine. Transcribe all text visible in the image exactly as written, in reading order.
Write equations in plain text or LaTeX. Do not describe the image and do not add commentary.
If the image contains no text, reply with exactly: ` + noTextMarker
)

// VisionRecognizer reads text out of images with a vision-capable chat model.
type VisionRecognizer struct {
	model  openai.ChatModel
	client *openai.Client
}

// NewVisionRecognizer builds a recognizer against an OpenAI-compatible API.
// An empty baseURL targets api.openai.com.
func NewVisionRecognizer(apiKey, baseURL, model string) (*VisionRecognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	cli := openai.NewClient(opts...)
	return &VisionRecognizer{
		model:  openai.ChatModel(model),
		client: &cli,
	}, nil
}

// Recognize returns the transcribed text, or "" when the model reports none.
func (v *VisionRecognizer) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	if v == nil || v.client == nil {
		return "", fmt.Errorf("nil vision recognizer")
	}
	reqCtx, cancel := context.WithTimeout(ctx, defaultVisionTimeout)
	defer cancel()

	resp, err := v.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model:       v.model,
		Messages:    imageMessages(ocrInstruction, dataURL(image, mimeType)),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision: no choices returned")
	}
	return cleanTranscript(resp.Choices[0].Message.Content), nil
}

func imageMessages(system, imageURL string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						{
							OfImageURL: &openai.ChatCompletionContentPartImageParam{
								ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
									URL: imageURL,
								},
							},
						},
					},
				},
			},
		},
	}
}

func dataURL(image []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
}

func cleanTranscript(content string) string {
	text := strings.TrimSpace(content)
	if text == noTextMarker {
		return ""
	}
	return text
}
