package tracking

// Get returns the current value of a tracked field, or nil if it was never set
func Get(inst Trackable, field string) interface{} {
	v, _ := Lookup(inst, field)
	return v
}

// Lookup returns the current value of a tracked field and whether it was set
func Lookup(inst Trackable, field string) (interface{}, bool) {
	s := stateOf(inst)
	if s == nil {
		return nil, false
	}
	return s.Value(field)
}

// Set updates a tracked field
func Set(inst Trackable, field string, value interface{}) {
	if s := stateOf(inst); s != nil {
		s.SetFieldValue(field, value)
	}
}

// IsChanged reports whether a field differs from its last flushed value
func IsChanged(inst Trackable, field string) bool {
	s := stateOf(inst)
	return s != nil && s.Changed(field)
}

// HasChanges reports whether any field of the instance has changed
func HasChanges(inst Trackable) bool {
	s := stateOf(inst)
	return s != nil && s.HasChanges()
}

// IsNew reports whether the instance was never flushed. Instances without
// state are considered new.
func IsNew(inst Trackable) bool {
	s := stateOf(inst)
	return s == nil || s.IsNew()
}

// Flush confirms the instance's current values
func Flush(inst Trackable, recursive bool) {
	if s := stateOf(inst); s != nil {
		s.Flush(recursive)
	}
}

// ChangedFields lists the changed fields of the instance
func ChangedFields(inst Trackable) []string {
	s := stateOf(inst)
	if s == nil {
		return nil
	}
	return s.ChangedFields()
}
