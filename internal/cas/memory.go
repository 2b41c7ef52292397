package cas

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store and is safe for concurrent use. Its
// addresses match KuboStore and GCSStore for any input up to MaxRawBlockSize;
// larger inputs are stored by Kubo as UnixFS and get a different address.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[Address][]byte
	pins   map[Address]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks: make(map[Address][]byte),
		pins:   make(map[Address]bool),
	}
}

func (s *MemoryStore) AddBytes(ctx context.Context, data []byte) (Address, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	addr, err := RawAddress(data)
	if err != nil {
		return "", err
	}
	s.put(addr, data)
	return addr, nil
}

func (s *MemoryStore) AddStructured(ctx context.Context, v any) (Address, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	encoded, err := EncodeStructured(v)
	if err != nil {
		return "", err
	}
	addr, err := StructuredAddress(encoded)
	if err != nil {
		return "", err
	}
	s.put(addr, encoded)
	return addr, nil
}

func (s *MemoryStore) Pin(ctx context.Context, addr Address) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPinFailed, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[addr]; !ok {
		return fmt.Errorf("%w: unknown address %s", ErrPinFailed, addr)
	}
	s.pins[addr] = true
	return nil
}

// Get returns a copy of the bytes stored under addr.
func (s *MemoryStore) Get(addr Address) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[addr]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Pinned reports whether addr has been pinned.
func (s *MemoryStore) Pinned(addr Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pins[addr]
}

// Len returns the number of distinct stored blocks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

func (s *MemoryStore) put(addr Address, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[addr]; !ok {
		s.blocks[addr] = append([]byte(nil), data...)
	}
}
