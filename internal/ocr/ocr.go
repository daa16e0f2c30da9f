// Package ocr extracts the readable text of uploaded images.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/api/option"

	"github.com/RichardoC/studypad/internal/think"
)

// DefaultPrompt asks a vision model for a plain transcription.
const DefaultPrompt = `Extract all readable text from this image.
Preserve the structure (headings, lists, tables, formulas) as closely as plain text allows.
Reply with the extracted text only, without commentary.`

const annotateTimeout = 60 * time.Second

var ErrNoImage = errors.New("image URL is required")

type Extractor interface {
	Extract(ctx context.Context, imageURL, prompt string) (string, error)
}

// VisionLLMExtractor asks a multimodal chat model to transcribe the image.
type VisionLLMExtractor struct {
	model     llms.Model
	maxTokens int
}

func NewVisionLLMExtractor(model llms.Model, maxTokens int) *VisionLLMExtractor {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &VisionLLMExtractor{model: model, maxTokens: maxTokens}
}

func (e *VisionLLMExtractor) Extract(ctx context.Context, imageURL, prompt string) (string, error) {
	if strings.TrimSpace(imageURL) == "" {
		return "", ErrNoImage
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}
	msgs := []llms.MessageContent{{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.ImageURLPart(imageURL),
			llms.TextPart(prompt),
		},
	}}
	resp, err := e.model.GenerateContent(ctx, msgs,
		llms.WithTemperature(0),
		llms.WithMaxTokens(e.maxTokens))
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return think.Answer(resp.Choices[0].Content), nil
}

// CloudVisionExtractor runs Google Cloud Vision document text detection. The
// prompt is ignored.
type CloudVisionExtractor struct {
	client *vision.ImageAnnotatorClient
}

func NewCloudVisionExtractor(ctx context.Context, opts ...option.ClientOption) (*CloudVisionExtractor, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &CloudVisionExtractor{client: client}, nil
}

func (e *CloudVisionExtractor) Extract(ctx context.Context, imageURL, _ string) (string, error) {
	if strings.TrimSpace(imageURL) == "" {
		return "", ErrNoImage
	}
	ctx, cancel := context.WithTimeout(ctx, annotateTimeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Source: &visionpb.ImageSource{ImageUri: imageURL}},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
			},
		}},
	}
	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	return textFromResponse(resp)
}

func (e *CloudVisionExtractor) Close() error {
	return e.client.Close()
}

func textFromResponse(resp *visionpb.BatchAnnotateImagesResponse) (string, error) {
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	if fta := r0.FullTextAnnotation; fta != nil {
		return strings.TrimSpace(fta.Text), nil
	}
	return "", nil
}
