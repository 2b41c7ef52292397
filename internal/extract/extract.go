// Package extract derives text and structured metadata from uploaded files
// by calling an external extraction service. Calls are one-shot; retrying is
// left to the caller.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrExtractionService indicates a transport failure or non-success response.
	ErrExtractionService = errors.New("extraction service error")

	// ErrMalformedResponse indicates the metadata response could not be parsed
	// as a JSON object.
	ErrMalformedResponse = errors.New("malformed extraction response")
)

// File is the document submitted for extraction.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Client extracts derived artifacts from a file.
type Client interface {
	ExtractText(ctx context.Context, file File) ([]byte, error)
	ExtractMetadata(ctx context.Context, file File) (map[string]any, error)
}

// ParseMetadata decodes a metadata response body. Only a JSON object is accepted.
func ParseMetadata(body []byte) (map[string]any, error) {
	var meta map[string]any
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedResponse)
	}
	return meta, nil
}

// Title returns the document title carried in extracted metadata, or "".
func Title(meta map[string]any) string {
	for _, key := range []string{"title", "dc:title"} {
		switch v := meta[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}
