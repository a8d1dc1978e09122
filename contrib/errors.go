package contrib

import "errors"

var (
	// ErrInvalidSize is returned when a structure is constructed
	// with a participant count of zero.
	ErrInvalidSize = errors.New("invalid participant count")

	// ErrInvalidArgument is returned when a bitstring, bitset, or snapshot
	// has the wrong length or content for the configured participant count.
	// The structure is left unmodified.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange is returned when a participant ID
	// is not less than the configured participant count.
	ErrOutOfRange = errors.New("participant ID out of range")

	// ErrSizeMismatch is returned when merging or comparing two structures
	// configured for different participant counts.
	ErrSizeMismatch = errors.New("participant count mismatch")
)
