// Package cas stores raw bytes and structured objects under addresses
// derived from their own content.
//
// Addresses are CIDv1 strings over a sha2-256 multihash. Raw bytes use the
// raw codec; structured objects are canonically encoded as dag-cbor first,
// which keeps them compact and lets provenance consumers address paths
// inside the object.
package cas

import (
	"context"
	"errors"
)

var (
	// ErrStoreUnavailable indicates a transport failure talking to the store.
	ErrStoreUnavailable = errors.New("content store unavailable")

	// ErrPinFailed indicates a pin request was rejected, either because the
	// address is unknown to the store or because the store is unreachable.
	ErrPinFailed = errors.New("pin failed")

	// ErrEncoding indicates a structured object could not be canonically encoded.
	ErrEncoding = errors.New("structured encoding failed")
)

// Address is the content address of a stored byte sequence or object.
type Address string

func (a Address) String() string { return string(a) }

// Store is a content-addressed store.
type Store interface {
	// AddBytes stores data and returns its address. Stored bytes are
	// retained without a separate pin.
	AddBytes(ctx context.Context, data []byte) (Address, error)

	// AddStructured canonically encodes v and stores the encoding.
	AddStructured(ctx context.Context, v any) (Address, error)

	// Pin marks a previously added structured object as durably retained.
	Pin(ctx context.Context, addr Address) error
}
