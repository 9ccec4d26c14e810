package schema

import "errors"

// Configuration errors. They describe a broken model declaration and are never
// caused by server data.
var (
	// ErrMissingType is returned when a model resolves to no resource type
	ErrMissingType = errors.New("json:api resource type not specified")

	// ErrUnregisteredModel is returned when a model id or Go type has no metadata
	ErrUnregisteredModel = errors.New("model not registered")

	// ErrNoFactory is returned when a model has no instance factory
	ErrNoFactory = errors.New("model has no instance factory")

	// ErrDuplicateGoType is returned when two models share one Go type
	ErrDuplicateGoType = errors.New("go type already registered")

	// ErrInvalidTypeRef is returned when a relationship has no target model
	ErrInvalidTypeRef = errors.New("relationship target not specified")

	// ErrEmptyCollection is returned when metadata is requested for an empty slice
	ErrEmptyCollection = errors.New("cannot resolve metadata of an empty collection")

	// ErrUnknownDiscriminator is returned when the discriminator field is not an attribute
	ErrUnknownDiscriminator = errors.New("discriminator field is not a declared attribute")
)

// IsUnregistered returns true if the error is ErrUnregisteredModel
func IsUnregistered(err error) bool {
	return errors.Is(err, ErrUnregisteredModel)
}
