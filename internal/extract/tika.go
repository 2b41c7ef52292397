package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	tikaTextPath = "/tika/form"
	tikaMetaPath = "/meta/form"

	// maxErrorBody bounds how much of a failed response is kept for the error.
	maxErrorBody = 512
)

// TikaClient calls an Apache Tika server's multipart form endpoints.
type TikaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTikaClient creates a client for the Tika server at baseURL.
func NewTikaClient(baseURL string, timeout time.Duration) (*TikaClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("TIKA_URL must be provided to create a tika client")
	}
	return &TikaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// ExtractText returns the plain text Tika extracts from the file.
func (c *TikaClient) ExtractText(ctx context.Context, file File) ([]byte, error) {
	return c.post(ctx, tikaTextPath, "text/plain", file)
}

// ExtractMetadata returns the metadata object Tika reports for the file.
func (c *TikaClient) ExtractMetadata(ctx context.Context, file File) (map[string]any, error) {
	body, err := c.post(ctx, tikaMetaPath, "application/json", file)
	if err != nil {
		return nil, err
	}
	return ParseMetadata(body)
}

func (c *TikaClient) post(ctx context.Context, path, accept string, file File) ([]byte, error) {
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile(file.Name, file.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart form: %w", err)
	}
	if _, err := part.Write(file.Body); err != nil {
		return nil, fmt.Errorf("failed to build multipart form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &form)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionService, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %v", ErrExtractionService, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %v", ErrExtractionService, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, fmt.Errorf("%w: POST %s returned %d: %s", ErrExtractionService, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
