package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini is a Backend that reads frames with Google Gemini
type Gemini struct {
	modelName string
}

// NewGemini creates a new Gemini backend. The license passed to Load is the API key.
func NewGemini(modelName string) *Gemini {
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	return &Gemini{modelName: modelName}
}

// Supported always reports true, Gemini runs remotely
func (g *Gemini) Supported(ctx context.Context) bool {
	return true
}

// Open creates the Gemini client and checks that the model exists
func (g *Gemini) Open(ctx context.Context, settings LoadSettings) (FrameReader, error) {
	if settings.License == "" {
		return nil, fmt.Errorf("gemini api key is required: %w", ErrLicense)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(settings.License))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	settings.report(50)

	model := client.GenerativeModel(g.modelName)
	if _, err := model.Info(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("fetching gemini model info: %w", err)
	}
	settings.report(90)

	return &geminiReader{client: client, model: model}, nil
}

type geminiReader struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// ReadFrame asks the model for the document fields visible in frame
func (g *geminiReader) ReadFrame(ctx context.Context, frame Frame) (*FrameData, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pngData, _, err := prepareFrame(frame)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects the format suffix ("png"), not the MIME type
	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(idScanPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	data, err := parseFrameJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing document data: %w", err)
	}
	return data, nil
}

// Close closes the Gemini client
func (g *geminiReader) Close() error {
	return g.client.Close()
}
