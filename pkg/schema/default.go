package schema

// Default is the process-wide registry used by the package-level functions
var Default = NewRegistry()

// RegisterModel declares a model on the default registry
func RegisterModel(id string, config ModelConfig) (*ModelMetadata, error) {
	return Default.RegisterModel(id, config)
}

// RegisterAttribute declares an attribute on the default registry
func RegisterAttribute(id, property string, config AttributeConfig) error {
	return Default.RegisterAttribute(id, property, config)
}

// RegisterRelationship declares a relationship on the default registry
func RegisterRelationship(id, property string, config RelationshipConfig) error {
	return Default.RegisterRelationship(id, property, config)
}

// Define starts a Builder on the default registry
func Define(id string, config ModelConfig) *Builder {
	return NewBuilder(Default, id, config)
}

// MetadataOf resolves metadata of an instance from the default registry
func MetadataOf(v interface{}) (*ModelMetadata, error) {
	return Default.MetadataOf(v)
}

// Lookup resolves metadata by model id from the default registry
func Lookup(id string) (*ModelMetadata, error) {
	return Default.Lookup(id)
}
