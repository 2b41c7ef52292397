package notification

import (
	"fmt"
	"strings"
)

const (
	DocumentIDKey       = "document-id"
	OriginalFilenameKey = "original-filename"
)

var metadataPrefixes = []string{"x-amz-meta-", "x-goog-meta-"}

// ObjectMetadata is the typed form of the user metadata attached to an
// uploaded object.
type ObjectMetadata struct {
	DocumentID       string
	OriginalFilename string
}

// ParseObjectMetadata extracts the required keys from the raw metadata map.
// Lookup is case-insensitive and tolerates provider header prefixes.
func ParseObjectMetadata(raw map[string]string) (ObjectMetadata, error) {
	normalized := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		for _, prefix := range metadataPrefixes {
			key = strings.TrimPrefix(key, prefix)
		}
		normalized[key] = v
	}

	meta := ObjectMetadata{
		DocumentID:       strings.TrimSpace(normalized[DocumentIDKey]),
		OriginalFilename: strings.TrimSpace(normalized[OriginalFilenameKey]),
	}
	if meta.DocumentID == "" {
		return ObjectMetadata{}, fmt.Errorf("%w: %s", ErrMissingMetadata, DocumentIDKey)
	}
	if meta.OriginalFilename == "" {
		return ObjectMetadata{}, fmt.Errorf("%w: %s", ErrMissingMetadata, OriginalFilenameKey)
	}
	return meta, nil
}

// ObjectKey is the parsed form of <prefix>/<organizationId>/<fileId>.
type ObjectKey struct {
	Prefix         string
	OrganizationID string
	FileID         string
}

// ParseObjectKey splits an object key into its conventional segments.
func ParseObjectKey(key string) (ObjectKey, error) {
	parts := strings.Split(key, "/")
	if len(parts) < 3 || parts[1] == "" {
		return ObjectKey{}, fmt.Errorf("%w: %q", ErrInvalidObjectKey, key)
	}
	return ObjectKey{
		Prefix:         parts[0],
		OrganizationID: parts[1],
		FileID:         strings.Join(parts[2:], "/"),
	}, nil
}
