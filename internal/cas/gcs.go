package cas

import (
	"context"
	"errors"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentprovenance/internal/gcp"
)

const (
	blocksDir = "blocks"
	pinsDir   = "pins"
)

// GCSStore keeps blocks in a Cloud Storage bucket, one object per address.
// Writes use a DoesNotExist precondition so re-adding content is a no-op.
type GCSStore struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSStore stores blocks under prefix in the named bucket.
func NewGCSStore(client *storage.Client, bucketName, prefix string) (*GCSStore, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("CAS bucket must be provided to create a GCS store")
	}
	return &GCSStore{bucket: client.Bucket(bucketName), prefix: prefix}, nil
}

func (s *GCSStore) AddBytes(ctx context.Context, data []byte) (Address, error) {
	addr, err := RawAddress(data)
	if err != nil {
		return "", err
	}
	if _, err := gcp.SaveToGCSAtomically(ctx, s.bucket, s.blockName(addr), "application/octet-stream", data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return addr, nil
}

func (s *GCSStore) AddStructured(ctx context.Context, v any) (Address, error) {
	encoded, err := EncodeStructured(v)
	if err != nil {
		return "", err
	}
	addr, err := StructuredAddress(encoded)
	if err != nil {
		return "", err
	}
	if _, err := gcp.SaveToGCSAtomically(ctx, s.bucket, s.blockName(addr), "application/vnd.ipld.dag-cbor", encoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return addr, nil
}

// Pin records a marker object for addr. The block must already exist.
func (s *GCSStore) Pin(ctx context.Context, addr Address) error {
	if _, err := s.bucket.Object(s.blockName(addr)).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: unknown address %s", ErrPinFailed, addr)
		}
		return fmt.Errorf("%w: %s: %v", ErrPinFailed, addr, err)
	}
	if _, err := gcp.SaveToGCSAtomically(ctx, s.bucket, path.Join(s.prefix, pinsDir, addr.String()), "text/plain", []byte(addr)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPinFailed, addr, err)
	}
	return nil
}

func (s *GCSStore) blockName(addr Address) string {
	return path.Join(s.prefix, blocksDir, addr.String())
}
