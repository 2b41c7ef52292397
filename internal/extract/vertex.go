package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/documentprovenance/internal/gcp"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ContentGenerator is satisfied by *genai.GenerativeModel.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexExtractor extracts text and metadata with Gemini models on Vertex AI.
type VertexExtractor struct {
	textModel     ContentGenerator
	metadataModel ContentGenerator
}

// NewVertexExtractor uses the models configured on a gcp.VertexClient.
func NewVertexExtractor(client *gcp.VertexClient) *VertexExtractor {
	return &VertexExtractor{textModel: client.TextModel, metadataModel: client.MetadataModel}
}

// NewVertexExtractorWithModels wires arbitrary generators, mainly for tests.
func NewVertexExtractorWithModels(text, metadata ContentGenerator) *VertexExtractor {
	return &VertexExtractor{textModel: text, metadataModel: metadata}
}

func (e *VertexExtractor) ExtractText(ctx context.Context, file File) ([]byte, error) {
	resp, err := e.textModel.GenerateContent(ctx, filePart(file), genai.Text(gcp.TextUserPrompt))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate text from gemini: %v", ErrExtractionService, err)
	}
	text, ok := responseText(resp)
	if !ok {
		return nil, fmt.Errorf("%w: gemini returned no text candidates for %s", ErrExtractionService, file.Name)
	}
	return []byte(text), nil
}

func (e *VertexExtractor) ExtractMetadata(ctx context.Context, file File) (map[string]any, error) {
	resp, err := e.metadataModel.GenerateContent(ctx, filePart(file), genai.Text(gcp.MetadataUserPrompt))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate metadata from gemini: %v", ErrExtractionService, err)
	}
	text, ok := responseText(resp)
	if !ok {
		return nil, fmt.Errorf("%w: gemini returned no metadata candidates for %s", ErrExtractionService, file.Name)
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return ParseMetadata([]byte(strings.TrimSpace(text)))
}

func filePart(file File) genai.Part {
	mimeType := file.ContentType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	data := file.Body
	if mimeType == "application/pdf" {
		data = optimizePDF(file)
	}
	return genai.Blob{MIMEType: mimeType, Data: data}
}

// optimizePDF shrinks the inline payload. Files pdfcpu cannot read are sent as-is.
func optimizePDF(file File) []byte {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(file.Body), &out, cfg); err != nil {
		slog.Warn("PDF optimization failed, sending original bytes.", "fileName", file.Name, "error", err)
		return file.Body
	}
	return out.Bytes()
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	var sb strings.Builder
	found := false
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
			found = true
		}
	}
	return strings.TrimSpace(sb.String()), found
}
