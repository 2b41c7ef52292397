package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Text Extraction Model Prompts ---
const TextSystemPrompt = "You are a document text extractor. Your task is to return the complete plain text content of the provided document, in reading order, without commentary."
const TextUserPrompt = `You will be provided with a document.

Return ONLY the document's text content:

Text: Preserve every sentence, heading and list item in reading order.
Tables: Render each table row on its own line with cells separated by tabs.
Images: Omit images entirely. Do not describe them.
Formatting: Do not add markdown, code fences, preambles or summaries.`

// --- Metadata Extraction Model Prompts ---
const MetadataSystemPrompt = "You are a document metadata extractor. You must output your response as a single valid JSON object."
const MetadataUserPrompt = `Analyze the provided document and report its metadata.

Follow these rules precisely:
1.  Output a single JSON object. Do not include any text before or after it.
2.  Use the key "title" for the document title when one can be identified.
3.  Use the keys "author", "language", "created" and "pageCount" when they can be identified.
4.  Omit any key whose value cannot be determined. Never invent values.

Example output format:
{
  "title": "Annual Report 2019",
  "author": "Jane Doe",
  "language": "en",
  "pageCount": 12
}`

// VertexClient holds the pre-configured generative models used for extraction.
type VertexClient struct {
	TextModel     *genai.GenerativeModel
	MetadataModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a new client holding the extraction models.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	textModel := baseClient.GenerativeModel(modelName)
	textModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(TextSystemPrompt)},
	}
	textModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	metadataModel := baseClient.GenerativeModel(modelName)
	metadataModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(MetadataSystemPrompt)},
	}
	metadataModel.GenerationConfig = genai.GenerationConfig{
		// Force JSON output; the response is parsed as an object.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		TextModel:     textModel,
		MetadataModel: metadataModel,
		baseClient:    baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
