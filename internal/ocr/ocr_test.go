package ocr

import (
	"context"
	"errors"
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type visionModel struct {
	reply string
	err   error
	got   []llms.MessageContent
}

func (m *visionModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.got = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *visionModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestVisionLLMExtractor(t *testing.T) {
	model := &visionModel{reply: "reading the page</think>\n# Cell biology\n- mitochondria\n"}
	e := NewVisionLLMExtractor(model, 0)

	text, err := e.Extract(context.Background(), "https://storage.example/cells.png", "")
	require.NoError(t, err)
	assert.Equal(t, "# Cell biology\n- mitochondria", text)

	require.Len(t, model.got, 1)
	parts := model.got[0].Parts
	require.Len(t, parts, 2)
	image, ok := parts[0].(llms.ImageURLContent)
	require.True(t, ok)
	assert.Equal(t, "https://storage.example/cells.png", image.URL)
	assert.Equal(t, llms.TextContent{Text: DefaultPrompt}, parts[1])
}

func TestVisionLLMExtractorErrors(t *testing.T) {
	e := NewVisionLLMExtractor(&visionModel{err: errors.New("model does not support images")}, 0)

	_, err := e.Extract(context.Background(), "https://storage.example/x.png", "custom")
	assert.ErrorContains(t, err, "does not support images")

	_, err = e.Extract(context.Background(), " ", "custom")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestTextFromResponse(t *testing.T) {
	text, err := textFromResponse(&visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{
			FullTextAnnotation: &visionpb.TextAnnotation{Text: " Photosynthesis\n6CO2 + 6H2O \n"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Photosynthesis\n6CO2 + 6H2O", text)

	text, err = textFromResponse(&visionpb.BatchAnnotateImagesResponse{})
	require.NoError(t, err)
	assert.Empty(t, text)
}
