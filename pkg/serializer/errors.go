package serializer

import "errors"

var (
	// ErrNotResource is returned when a value is not a model resource
	ErrNotResource = errors.New("value is not a model resource")

	// ErrContextMissingResource is returned when relationship resolution
	// finished without registering the referenced resource
	ErrContextMissingResource = errors.New("context doesn't contain resource")
)

// IsProtocolError returns true if the error was caused by an inconsistent document graph
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrContextMissingResource)
}
