package schema

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct{ Name string }
type office struct{ Title string }
type shape struct{}
type circle struct{}

func TestRegistry_RegisterModel(t *testing.T) {
	r := NewRegistry()

	meta, err := r.RegisterModel("user", ModelConfig{
		Type: "users",
		New:  func() interface{} { return &user{} },
	})
	require.NoError(t, err)

	assert.Equal(t, "users", meta.Type)
	assert.Equal(t, "/users", meta.ResourcePath())
	assert.True(t, meta.HasFactory())
	assert.Equal(t, reflect.TypeOf(&user{}), meta.GoType())

	inst, err := meta.NewInstance()
	require.NoError(t, err)
	assert.IsType(t, &user{}, inst)

	assert.True(t, r.Exists("user"))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_CustomPath(t *testing.T) {
	r := NewRegistry()

	meta, err := r.RegisterModel("role", ModelConfig{Type: "user-roles", Path: "/roles"})
	require.NoError(t, err)
	assert.Equal(t, "/roles", meta.ResourcePath())
}

func TestRegistry_MissingType(t *testing.T) {
	r := NewRegistry()

	_, err := r.RegisterModel("broken", ModelConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingType))
	assert.False(t, r.Exists("broken"))
}

func TestRegistry_FieldsBeforeModel(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterAttribute("user", "name", AttributeConfig{}))
	require.NoError(t, r.RegisterAttribute("user", "email", AttributeConfig{Field: "email-address"}))
	require.NoError(t, r.RegisterRelationship("user", "office", RelationshipConfig{Resource: Ref("office")}))

	meta, err := r.RegisterModel("user", ModelConfig{Type: "users"})
	require.NoError(t, err)

	attrs := meta.Attributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, "name", attrs[0].WireName())
	assert.Equal(t, "email-address", attrs[1].WireName())

	rel := meta.Relationship("office")
	require.NotNil(t, rel)
	assert.False(t, rel.IsArray)
	assert.Equal(t, "office", rel.WireName())
}

func TestRegistry_RedeclaredAttributeReplaces(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterAttribute("user", "name", AttributeConfig{}))
	require.NoError(t, r.RegisterAttribute("user", "name", AttributeConfig{Field: "full-name"}))

	meta, ok := r.Get("user")
	require.True(t, ok)
	require.Len(t, meta.Attributes(), 1)
	assert.Equal(t, "full-name", meta.Attribute("name").WireName())
}

func TestRegistry_RelationshipWithoutTarget(t *testing.T) {
	r := NewRegistry()

	err := r.RegisterRelationship("user", "office", RelationshipConfig{})
	assert.True(t, errors.Is(err, ErrInvalidTypeRef))
}

func TestRegistry_Extends(t *testing.T) {
	r := NewRegistry()

	_, err := NewBuilder(r, "user", ModelConfig{Type: "users", New: func() interface{} { return &user{} }}).
		Attr("name").
		Attribute("email", AttributeConfig{Field: "mail"}).
		HasOne("office", Ref("office")).
		Register()
	require.NoError(t, err)

	admin, err := NewBuilder(r, "administrator", ModelConfig{Extends: "user"}).
		Attr("public").
		Attribute("email", AttributeConfig{Field: "admin-mail"}).
		Register()
	require.NoError(t, err)

	assert.Equal(t, "users", admin.Type)
	assert.Equal(t, "user", admin.Extends)
	assert.NotNil(t, admin.Attribute("name"))
	assert.NotNil(t, admin.Attribute("public"))
	assert.NotNil(t, admin.Relationship("office"))
	assert.Equal(t, "admin-mail", admin.Attribute("email").WireName())
	assert.False(t, admin.HasFactory(), "factory is not inherited")

	parent, _ := r.Get("user")
	assert.Nil(t, parent.Attribute("public"), "parent is not modified")
	assert.Equal(t, "mail", parent.Attribute("email").WireName())
}

func TestRegistry_ExtendsUnknownParent(t *testing.T) {
	r := NewRegistry()

	_, err := r.RegisterModel("administrator", ModelConfig{Extends: "user"})
	assert.True(t, IsUnregistered(err))
}

func TestRegistry_DiscriminatorNotInheritedAsMap(t *testing.T) {
	r := NewRegistry()

	_, err := NewBuilder(r, "shape", ModelConfig{
		Type:               "shapes",
		DiscriminatorField: "shapeType",
		DiscriminatorMap:   map[string]string{"circle": "circle"},
		New:                func() interface{} { return &shape{} },
	}).Attr("shapeType").Register()
	require.NoError(t, err)

	circleMeta, err := NewBuilder(r, "circle", ModelConfig{
		Extends: "shape",
		New:     func() interface{} { return &circle{} },
	}).Attr("radius").Register()
	require.NoError(t, err)

	assert.Equal(t, "shapes", circleMeta.Type)
	assert.Equal(t, "shapeType", circleMeta.DiscriminatorField)
	assert.Nil(t, circleMeta.DiscriminatorMap)
	require.NoError(t, r.ValidateAll())
}

func TestRegistry_DuplicateGoType(t *testing.T) {
	r := NewRegistry()

	_, err := r.RegisterModel("user", ModelConfig{Type: "users", New: func() interface{} { return &user{} }})
	require.NoError(t, err)

	_, err = r.RegisterModel("member", ModelConfig{Type: "members", New: func() interface{} { return &user{} }})
	assert.True(t, errors.Is(err, ErrDuplicateGoType))

	_, err = r.RegisterModel("user", ModelConfig{New: func() interface{} { return &user{} }})
	assert.NoError(t, err, "re-registering the same model is allowed")
}

func TestRegistry_MetadataOf(t *testing.T) {
	r := NewRegistry()
	_, err := r.RegisterModel("user", ModelConfig{Type: "users", New: func() interface{} { return &user{} }})
	require.NoError(t, err)

	tests := []struct {
		name    string
		value   interface{}
		wantErr error
	}{
		{name: "instance", value: &user{}},
		{name: "typed slice", value: []*user{{}, {}}},
		{name: "interface slice", value: []interface{}{&user{}}},
		{name: "empty slice", value: []*user{}, wantErr: ErrEmptyCollection},
		{name: "unregistered", value: &office{}, wantErr: ErrUnregisteredModel},
		{name: "nil", value: nil, wantErr: ErrUnregisteredModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := r.MetadataOf(tt.value)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "users", meta.Type)
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	_, err := r.RegisterModel("user", ModelConfig{Type: "users", New: func() interface{} { return &user{} }})
	require.NoError(t, err)

	byID, err := r.Resolve(Ref("user"))
	require.NoError(t, err)
	byType, err := r.Resolve(RefOf[*user]())
	require.NoError(t, err)
	assert.Same(t, byID, byType)

	_, err = r.Resolve(TypeRef{})
	assert.True(t, errors.Is(err, ErrInvalidTypeRef))

	_, err = r.Resolve(Ref("ghost"))
	assert.True(t, IsUnregistered(err))

	assert.Equal(t, "*schema.user", RefOf[*user]().String())
	assert.Equal(t, "user", Ref("user").String())
}

func TestRegistry_ForwardReference(t *testing.T) {
	r := NewRegistry()

	_, err := NewBuilder(r, "post", ModelConfig{Type: "posts", New: func() interface{} { return &user{} }}).
		HasOne("author", Ref("author")).
		Register()
	require.NoError(t, err, "targets may be registered later")

	err = r.ValidateAll()
	assert.True(t, IsUnregistered(err))

	_, err = r.RegisterModel("author", ModelConfig{Type: "authors", New: func() interface{} { return &office{} }})
	require.NoError(t, err)
	assert.NoError(t, r.ValidateAll())
}

func TestRegistry_ValidateAll(t *testing.T) {
	t.Run("target without factory", func(t *testing.T) {
		r := NewRegistry()
		NewBuilder(r, "user", ModelConfig{Type: "users"}).HasOne("office", Ref("office")).MustRegister()
		NewBuilder(r, "office", ModelConfig{Type: "offices"}).MustRegister()

		err := r.ValidateAll()
		assert.True(t, errors.Is(err, ErrNoFactory))
	})

	t.Run("discriminator field without attribute", func(t *testing.T) {
		r := NewRegistry()
		NewBuilder(r, "shape", ModelConfig{Type: "shapes", DiscriminatorField: "kind"}).MustRegister()

		err := r.ValidateAll()
		assert.True(t, errors.Is(err, ErrUnknownDiscriminator))
	})

	t.Run("unknown discriminator target", func(t *testing.T) {
		r := NewRegistry()
		NewBuilder(r, "shape", ModelConfig{
			Type:               "shapes",
			DiscriminatorField: "kind",
			DiscriminatorMap:   map[string]string{"square": "square"},
		}).Attr("kind").MustRegister()

		err := r.ValidateAll()
		require.Error(t, err)
		assert.True(t, IsUnregistered(err))
		assert.True(t, strings.Contains(err.Error(), "square"))
	})
}

func TestRegistry_ListAndClear(t *testing.T) {
	r := NewRegistry()
	NewBuilder(r, "b", ModelConfig{Type: "bs"}).MustRegister()
	NewBuilder(r, "a", ModelConfig{Type: "as"}).MustRegister()

	assert.Equal(t, []string{"a", "b"}, r.List())
	assert.Len(t, r.All(), 2)

	r.Clear()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.List())
}

func TestBuilder_CollectsErrors(t *testing.T) {
	r := NewRegistry()

	b := NewBuilder(r, "user", ModelConfig{Type: "users"}).
		Attr("").
		HasOne("office", TypeRef{})

	assert.Len(t, b.GetErrors(), 2)

	_, err := b.Register()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTypeRef))
	assert.False(t, r.Exists("user"))

	assert.Panics(t, func() { b.MustRegister() })
}

func TestBuilder_FailedRegisterLeavesNoEntry(t *testing.T) {
	r := NewRegistry()

	_, err := NewBuilder(r, "broken", ModelConfig{}).
		Attr("name").
		HasOne("office", Ref("office")).
		Register()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingType))
	assert.False(t, r.Exists("broken"))
	assert.Equal(t, 0, r.Count())
}

func TestBuilder_FailedRegisterKeepsExistingEntry(t *testing.T) {
	r := NewRegistry()
	original := NewBuilder(r, "user", ModelConfig{Type: "users"}).Attr("email").MustRegister()

	_, err := NewBuilder(r, "user", ModelConfig{Extends: "ghost"}).
		Attr("name").
		Register()
	assert.True(t, IsUnregistered(err))

	current, ok := r.Get("user")
	require.True(t, ok)
	assert.Same(t, original, current)
	assert.Nil(t, current.Attribute("name"))
}

func TestBuilder_TypedAttr(t *testing.T) {
	r := NewRegistry()

	meta := NewBuilder(r, "user", ModelConfig{Type: "users"}).
		TypedAttr("age", 0).
		MustRegister()

	assert.Equal(t, reflect.TypeOf(0), meta.Attribute("age").Type)
}

func TestTimeSerializer(t *testing.T) {
	s := TimeSerializer{}
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	encoded, err := s.Serialize(ts)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:00:00Z", encoded)

	decoded, err := s.Deserialize(encoded)
	require.NoError(t, err)
	assert.True(t, ts.Equal(decoded.(time.Time)))

	nilValue, err := s.Serialize(nil)
	require.NoError(t, err)
	assert.Nil(t, nilValue)

	_, err = s.Deserialize(42)
	assert.Error(t, err)
}

func TestSerializerFuncs_PassThrough(t *testing.T) {
	var s SerializerFuncs

	v, err := s.Serialize("x")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	v, err = s.Deserialize("y")
	require.NoError(t, err)
	assert.Equal(t, "y", v)
}
