package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentprovenance/internal/models"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// NewStorageClient creates a Cloud Storage client.
func NewStorageClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return client, nil
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// An existing object is not a failure: callers write content-addressed or
// otherwise idempotent objects. It reports whether a new object was written.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) (bool, error) {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Debug("SKIPPING: object already exists.", "object", objectName)
			return false, nil
		}
		return false, fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Debug("SKIPPING: object already exists.", "object", objectName)
			return false, nil
		}
		return false, fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return true, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// ObjectSource reads uploaded objects together with their attributes.
type ObjectSource struct {
	client *storage.Client
}

// NewObjectSource wraps a storage client.
func NewObjectSource(client *storage.Client) *ObjectSource {
	return &ObjectSource{client: client}
}

// Fetch downloads the object body and its content type, length and user metadata.
func (s *ObjectSource) Fetch(ctx context.Context, bucket, key string) (*models.StoredObject, error) {
	handle := s.client.Bucket(bucket).Object(key)
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read attributes for gs://%s/%s: %w", bucket, key, err)
	}

	reader, err := handle.Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, key, err)
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object gs://%s/%s: %w", bucket, key, err)
	}

	return &models.StoredObject{
		Body:          body,
		ContentLength: attrs.Size,
		ContentType:   attrs.ContentType,
		Metadata:      attrs.Metadata,
	}, nil
}
