// Package tracking provides change tracking for model instances.
// It records the current and last flushed value of every tracked field so that
// serializers can emit only what changed since the last server round trip.
package tracking

import (
	"reflect"
	"sync"
)

// Trackable is implemented by anything that owns a tracking State
type Trackable interface {
	TrackingState() *State
}

// FieldChange represents a change to a single field
type FieldChange struct {
	Field    string
	OldValue interface{}
	NewValue interface{}
}

type fieldState struct {
	current     interface{}
	lastFlushed interface{}
}

// State holds the tracked fields of one instance. The zero value is a new,
// unflushed instance with no fields.
type State struct {
	mu        sync.Mutex
	confirmed bool
	flushed   bool
	fields    map[string]*fieldState
	order     []string
}

// NewState creates an empty state for a new instance
func NewState() *State {
	return &State{fields: make(map[string]*fieldState)}
}

// IsNew reports whether the instance has never been flushed
func (s *State) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.confirmed
}

// SetNew overrides the new flag, e.g. when cloning a persisted instance
func (s *State) SetNew(isNew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = !isNew
}

// Value returns the current value of a field and whether it was ever set
func (s *State) Value(field string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fields[field]
	if !ok {
		return nil, false
	}
	return f.current, true
}

// PreviousValue returns the last flushed value of a field
func (s *State) PreviousValue(field string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fields[field]
	if !ok {
		return nil
	}
	return f.lastFlushed
}

// SetFieldValue updates a field value and marks the state as needing a flush
func (s *State) SetFieldValue(field string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fields == nil {
		s.fields = make(map[string]*fieldState)
	}

	f, ok := s.fields[field]
	if !ok {
		s.fields[field] = &fieldState{current: value}
		s.order = append(s.order, field)
	} else {
		f.current = value
	}
	s.flushed = false
}

// Changed returns true if the specified field differs from its last flushed value
func (s *State) Changed(field string) bool {
	return s.changed(field, map[*State]bool{s: true})
}

// HasChanges returns true if any tracked field has changed
func (s *State) HasChanges() bool {
	return s.hasChanges(make(map[*State]bool))
}

// ChangedFields returns the changed fields in the order they were first set
func (s *State) ChangedFields() []string {
	fields := s.fieldNames()
	changed := make([]string, 0, len(fields))
	for _, field := range fields {
		if s.Changed(field) {
			changed = append(changed, field)
		}
	}
	return changed
}

// Changes returns the FieldChange of every changed field
func (s *State) Changes() map[string]*FieldChange {
	result := make(map[string]*FieldChange)
	for _, field := range s.ChangedFields() {
		s.mu.Lock()
		f := s.fields[field]
		result[field] = &FieldChange{
			Field:    field,
			OldValue: f.lastFlushed,
			NewValue: f.current,
		}
		s.mu.Unlock()
	}
	return result
}

// Flush confirms the current values as the new baseline and clears the new flag.
// With recursive set, tracked values held by the fields are flushed too.
func (s *State) Flush(recursive bool) {
	s.flush(recursive, make(map[*State]bool))
}

func (s *State) flush(recursive bool, visited map[*State]bool) {
	if visited[s] {
		return
	}
	visited[s] = true

	s.mu.Lock()
	if !s.flushed {
		s.confirmed = true
		for _, f := range s.fields {
			f.lastFlushed = snapshot(f.current)
		}
		s.flushed = true
	}

	// A flushed state is still walked: values it holds may have changed since.
	var nested []*State
	if recursive {
		for _, field := range s.order {
			nested = appendStates(nested, s.fields[field].lastFlushed)
		}
	}
	s.mu.Unlock()

	for _, n := range nested {
		n.flush(true, visited)
	}
}

// Fields returns the names of all tracked fields in the order they were first set
func (s *State) Fields() []string {
	return s.fieldNames()
}

func (s *State) fieldNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// changed never holds the lock while descending into nested states, so
// cyclic graphs cannot deadlock.
func (s *State) changed(field string, seen map[*State]bool) bool {
	s.mu.Lock()
	f, ok := s.fields[field]
	if !ok {
		s.mu.Unlock()
		return false
	}
	current, last := f.current, f.lastFlushed
	s.mu.Unlock()

	if isSequence(current) && isSequence(last) {
		return sequenceChanged(last, current, seen)
	}

	if sameValue(current, last) {
		if nested := stateOf(current); nested != nil {
			return nested.hasChanges(seen)
		}
		return false
	}

	return true
}

// hasChanges treats a state already on the current path as unchanged; its own
// fields are evaluated by the caller that first reached it.
func (s *State) hasChanges(seen map[*State]bool) bool {
	if seen[s] {
		return false
	}
	seen[s] = true

	for _, field := range s.fieldNames() {
		if s.changed(field, seen) {
			return true
		}
	}
	return false
}

// sequenceChanged compares two sequences as sets of identities: reordering is
// not a change, but a dirty tracked element is.
func sequenceChanged(last, current interface{}, seen map[*State]bool) bool {
	lv := reflect.ValueOf(last)
	cv := reflect.ValueOf(current)

	if lv.Len() != cv.Len() {
		return true
	}

	for i := 0; i < cv.Len(); i++ {
		item := cv.Index(i).Interface()
		if !containsValue(lv, item) {
			return true
		}
		if nested := stateOf(item); nested != nil && nested.hasChanges(seen) {
			return true
		}
	}

	return false
}

func containsValue(seq reflect.Value, item interface{}) bool {
	for i := 0; i < seq.Len(); i++ {
		if sameValue(seq.Index(i).Interface(), item) {
			return true
		}
	}
	return false
}

// sameValue is identity for reference kinds and equality for everything else
func sameValue(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Map, reflect.Func:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}

	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func isSequence(v interface{}) bool {
	if v == nil {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

// snapshot shallow-copies slices so later in-place edits stay detectable
func snapshot(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Slice || val.IsNil() {
		return v
	}

	cp := reflect.MakeSlice(val.Type(), val.Len(), val.Len())
	reflect.Copy(cp, val)
	return cp.Interface()
}

func appendStates(states []*State, v interface{}) []*State {
	if st := stateOf(v); st != nil {
		return append(states, st)
	}
	if !isSequence(v) {
		return states
	}

	val := reflect.ValueOf(v)
	for i := 0; i < val.Len(); i++ {
		if st := stateOf(val.Index(i).Interface()); st != nil {
			states = append(states, st)
		}
	}
	return states
}

func stateOf(v interface{}) *State {
	t, ok := v.(Trackable)
	if !ok || isNilPointer(v) {
		return nil
	}
	return t.TrackingState()
}

func isNilPointer(v interface{}) bool {
	val := reflect.ValueOf(v)
	return val.Kind() == reflect.Ptr && val.IsNil()
}
