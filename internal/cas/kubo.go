package cas

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSShell is the subset of the Kubo RPC client used by KuboStore.
// *shell.Shell satisfies it.
type IPFSShell interface {
	Add(r io.Reader, options ...shell.AddOpts) (string, error)
	BlockPut(block []byte, format, mhtype string, mhlen int) (string, error)
	DagPut(data interface{}, inputCodec, storeCodec string) (string, error)
	Pin(path string) error
}

// KuboStore talks to an IPFS node over its HTTP RPC API.
type KuboStore struct {
	sh IPFSShell
}

// NewKuboStore connects to the Kubo RPC endpoint at url, e.g.
// "http://127.0.0.1:5001". A zero timeout leaves the client default.
func NewKuboStore(url string, timeout time.Duration) (*KuboStore, error) {
	if url == "" {
		return nil, fmt.Errorf("IPFS url must be provided to create a kubo store")
	}
	sh := shell.NewShell(url)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}
	return &KuboStore{sh: sh}, nil
}

// NewKuboStoreWithShell wraps an existing shell.
func NewKuboStoreWithShell(sh IPFSShell) *KuboStore {
	return &KuboStore{sh: sh}
}

// MaxRawBlockSize is the largest block a Kubo node accepts through block/put.
const MaxRawBlockSize = 1 << 20

// AddBytes stores data as a single raw block, so the address matches
// RawAddress. Data over MaxRawBlockSize is imported as a chunked UnixFS file
// instead, whose root address differs from RawAddress.
func (s *KuboStore) AddBytes(ctx context.Context, data []byte) (Address, error) {
	if len(data) > MaxRawBlockSize {
		slog.Warn("Content exceeds the raw block limit; storing as UnixFS.", "bytes", len(data))
		hash, err := detach(ctx, func() (string, error) {
			return s.sh.Add(bytes.NewReader(data), shell.CidVersion(1), shell.RawLeaves(true), shell.Pin(true))
		})
		if err != nil {
			return "", fmt.Errorf("%w: add: %v", ErrStoreUnavailable, err)
		}
		return Address(hash), nil
	}

	want, err := RawAddress(data)
	if err != nil {
		return "", err
	}
	hash, err := detach(ctx, func() (string, error) {
		return s.sh.BlockPut(data, "raw", "sha2-256", -1)
	})
	if err != nil {
		return "", fmt.Errorf("%w: block put: %v", ErrStoreUnavailable, err)
	}
	if hash != want.String() {
		return "", fmt.Errorf("%w: block put returned %s, expected %s", ErrStoreUnavailable, hash, want)
	}
	// block/put does not pin; added bytes are always retained.
	if err := s.Pin(ctx, want); err != nil {
		return "", err
	}
	return want, nil
}

func (s *KuboStore) AddStructured(ctx context.Context, v any) (Address, error) {
	encoded, err := EncodeStructured(v)
	if err != nil {
		return "", err
	}
	hash, err := detach(ctx, func() (string, error) {
		return s.sh.DagPut(encoded, "dag-cbor", "dag-cbor")
	})
	if err != nil {
		return "", fmt.Errorf("%w: dag put: %v", ErrStoreUnavailable, err)
	}
	return Address(hash), nil
}

func (s *KuboStore) Pin(ctx context.Context, addr Address) error {
	_, err := detach(ctx, func() (string, error) {
		return "", s.sh.Pin(addr.String())
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPinFailed, addr, err)
	}
	return nil
}

// detach runs fn and returns early when ctx is done. The RPC client has no
// context support, so an abandoned call finishes in the background and its
// result is discarded.
func detach(ctx context.Context, fn func() (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	type result struct {
		val string
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
