package notification

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates a malformed notification. It is returned before
	// any network call is made for the offending event.
	ErrValidation = errors.New("invalid notification")

	// ErrMissingMetadata indicates the stored object lacks a required
	// metadata key.
	ErrMissingMetadata = fmt.Errorf("%w: missing object metadata", ErrValidation)

	// ErrInvalidObjectKey indicates the object key does not follow the
	// <prefix>/<organizationId>/<fileId> convention.
	ErrInvalidObjectKey = fmt.Errorf("%w: invalid object key", ErrValidation)
)
