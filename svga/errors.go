package svga

import "errors"

var (
	// ErrMalformedInput is returned for guest data that fails validation,
	// e.g. a rejected shader or a corrupt snapshot section.
	ErrMalformedInput = errors.New("malformed input")

	// ErrOutOfRange is returned for ids, offsets or sizes beyond a limit.
	ErrOutOfRange = errors.New("out of range")

	// ErrDuplicateID is returned when defining an id that is already in use.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrUnknownID is returned when an id does not refer to a live object.
	ErrUnknownID = errors.New("unknown id")

	// ErrOutOfMemory is returned when a host allocation fails. Partial
	// allocations of the failing operation are rolled back.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrUnsupportedVersion is returned by snapshot loading when a section
	// version matches no known layout.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")

	// ErrTooManyDescriptors is returned when a guest-backed object would need
	// more scatter/gather descriptors than allowed.
	ErrTooManyDescriptors = errors.New("too many descriptors")
)
