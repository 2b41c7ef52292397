package cas

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

var structuredEncMode cbor.EncMode

func init() {
	// dag-cbor: length-first map key order, floats always 64-bit.
	opts := cbor.CoreDetEncOptions()
	opts.Sort = cbor.SortLengthFirst
	opts.ShortestFloat = cbor.ShortestFloatNone
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cas: invalid cbor options: %v", err))
	}
	structuredEncMode = em
}

// EncodeStructured returns the canonical dag-cbor encoding of v.
// Structurally equal values always encode to identical bytes.
func EncodeStructured(v any) ([]byte, error) {
	b, err := structuredEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return b, nil
}

// DecodeStructured decodes a dag-cbor encoding produced by EncodeStructured.
func DecodeStructured(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return nil
}

// RawAddress computes the address of data stored as raw bytes.
func RawAddress(data []byte) (Address, error) {
	return addressOf(cid.Raw, data)
}

// StructuredAddress computes the address of an already encoded dag-cbor block.
func StructuredAddress(encoded []byte) (Address, error) {
	return addressOf(cid.DagCBOR, encoded)
}

// ParseAddress validates that s is a well-formed CID.
func ParseAddress(s string) (Address, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("invalid content address %q: %w", s, err)
	}
	return Address(c.String()), nil
}

func addressOf(codec uint64, data []byte) (Address, error) {
	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return Address(cid.NewCidV1(codec, hash).String()), nil
}
