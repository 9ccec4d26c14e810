package serializer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/jsonapi-store/internal/fixtures"
	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/model"
	"github.com/conduit-lang/jsonapi-store/pkg/schema"
	"github.com/conduit-lang/jsonapi-store/pkg/tracking"
)

func newSerializer(t *testing.T) *ResourceSerializer {
	t.Helper()
	return NewResourceSerializer(fixtures.NewRegistry())
}

func newUser() *fixtures.User {
	user := &fixtures.User{}
	user.SetEmail("test@test.com")
	user.SetName("Test User")
	user.SetRoles(fixtures.NewUserRole(user, "advertiser"), fixtures.NewUserRole(user, "publisher"))

	office := &fixtures.Office{}
	office.SetTitle("Test office")
	office.SetAddress("Test address")
	user.SetOffice(office)

	return user
}

func assertPayload(t *testing.T, expected string, payload interface{}) {
	t.Helper()
	encoded, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, expected, string(encoded))
}

func TestResourceSerializer_SerializeAsID(t *testing.T) {
	s := newSerializer(t)

	office := &fixtures.Office{}
	office.ID = "test"
	office.SetTitle("Test office")

	id, err := s.SerializeAsID(office)
	require.NoError(t, err)
	assert.Equal(t, &jsonapi.ResourceIdentifier{Type: "offices", ID: "test"}, id)

	id, err = s.SerializeAsID(nil)
	require.NoError(t, err)
	assert.Nil(t, id)

	var missing *fixtures.Office
	id, err = s.SerializeAsID(missing)
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestResourceSerializer_SerializeNew(t *testing.T) {
	s := newSerializer(t)

	payload, err := s.Serialize(newUser())
	require.NoError(t, err)

	assertPayload(t, `{
		"type": "users",
		"attributes": {"email": "test@test.com", "name": "Test User"},
		"relationships": {
			"office": {"data": {"type": "offices", "attributes": {"title": "Test office", "address": "Test address"}}},
			"roles": {"data": [
				{"type": "user-roles", "attributes": {"role": "advertiser", "status": null}},
				{"type": "user-roles", "attributes": {"role": "publisher", "status": null}}
			]}
		}
	}`, payload)
}

func TestResourceSerializer_SerializeNewWithoutRelationships(t *testing.T) {
	s := newSerializer(t)

	office := &fixtures.Office{}
	office.SetTitle("HQ")
	office.SetAddress("Main street")

	payload, err := s.Serialize(office)
	require.NoError(t, err)

	assert.Empty(t, payload.ID)
	assert.Nil(t, payload.Relationships)
	assertPayload(t, `{"type": "offices", "attributes": {"title": "HQ", "address": "Main street"}}`, payload)
}

func TestResourceSerializer_SerializeEmptyNew(t *testing.T) {
	s := newSerializer(t)

	payload, err := s.Serialize(&fixtures.User{})
	require.NoError(t, err)

	assertPayload(t, `{
		"type": "users",
		"attributes": {"email": null, "name": null},
		"relationships": {"office": {"data": null}, "roles": {"data": []}}
	}`, payload)
}

func TestResourceSerializer_SerializeUpdated(t *testing.T) {
	s := newSerializer(t)

	user := newUser()
	user.ID = "test"
	tracking.Flush(user, true)

	user.SetEmail("test2@test.com")

	payload, err := s.Serialize(user)
	require.NoError(t, err)

	assertPayload(t, `{"type": "users", "id": "test", "attributes": {"email": "test2@test.com"}}`, payload)
}

func TestResourceSerializer_SerializeWithoutChanges(t *testing.T) {
	s := newSerializer(t)

	user := newUser()
	user.ID = "test"
	tracking.Flush(user, true)

	payload, err := s.Serialize(user)
	require.NoError(t, err)

	assertPayload(t, `{"type": "users", "id": "test"}`, payload)
}

func TestResourceSerializer_ChangedRelationshipOnly(t *testing.T) {
	s := newSerializer(t)

	user := newUser()
	user.ID = "1"
	user.Office().ID = "1"
	tracking.Flush(user, true)

	office := &fixtures.Office{}
	office.ID = "2"
	tracking.Flush(office, true)
	user.SetOffice(office)

	payload, err := s.Serialize(user)
	require.NoError(t, err)

	assertPayload(t, `{
		"type": "users",
		"id": "1",
		"relationships": {"office": {"data": {"type": "offices", "id": "2"}}}
	}`, payload)
}

func TestResourceSerializer_DirtyRelationshipTargetIsEmbedded(t *testing.T) {
	s := newSerializer(t)

	user := newUser()
	user.ID = "1"
	user.Office().ID = "7"
	tracking.Flush(user, true)

	user.Office().SetTitle("Renamed")

	payload, err := s.Serialize(user)
	require.NoError(t, err)

	assertPayload(t, `{
		"type": "users",
		"id": "1",
		"relationships": {"office": {"data": {"type": "offices", "id": "7", "attributes": {"title": "Renamed"}}}}
	}`, payload)
}

func TestResourceSerializer_ExistingRelationship(t *testing.T) {
	s := newSerializer(t)

	office := &fixtures.Office{}
	office.ID = "test"
	tracking.Flush(office, true)

	user := &fixtures.User{}
	user.SetOffice(office)

	payload, err := s.Serialize(user)
	require.NoError(t, err)

	assertPayload(t, `{
		"type": "users",
		"attributes": {"email": null, "name": null},
		"relationships": {"office": {"data": {"type": "offices", "id": "test"}}, "roles": {"data": []}}
	}`, payload)
}

func TestResourceSerializer_CustomAttributeSerializer(t *testing.T) {
	s := newSerializer(t)

	resource := &fixtures.CustomAttribute{}
	resource.SetName("TEST")

	payload, err := s.Serialize(resource)
	require.NoError(t, err)

	assertPayload(t, `{"type": "custom-attributes", "attributes": {"name": "test"}}`, payload)
}

func TestResourceSerializer_CustomFieldNames(t *testing.T) {
	s := newSerializer(t)

	user := newUser()
	user.ID = "test"
	tracking.Flush(user, true)

	obj := &fixtures.CustomFields{}
	obj.SetTitle("test")
	obj.SetCustomer(user)

	payload, err := s.Serialize(obj)
	require.NoError(t, err)

	assertPayload(t, `{
		"type": "custom-fields-resources",
		"attributes": {"name": "test"},
		"relationships": {"user": {"data": {"type": "users", "id": "test"}}, "offices": {"data": []}}
	}`, payload)
}

func TestResourceSerializer_DiscriminatorAlwaysEmitted(t *testing.T) {
	s := newSerializer(t)

	circle := fixtures.NewCircle()
	circle.ID = "1"
	circle.SetRadius(2)
	tracking.Flush(circle, true)

	circle.SetRadius(3)

	payload, err := s.Serialize(circle)
	require.NoError(t, err)

	assertPayload(t, `{"type": "shapes", "id": "1", "attributes": {"shapeType": "circle", "radius": 3}}`, payload)
}

func TestResourceSerializer_Cycles(t *testing.T) {
	s := newSerializer(t)

	set := &fixtures.AdSet{}
	set.ID = "s1"
	model.Set(set, "name", "Homepage")

	position := &fixtures.AdPosition{}
	position.ID = "p1"
	model.Set(position, "code", "top")
	model.Set(position, "adSet", set)
	model.Set(set, "positions", []*fixtures.AdPosition{position})

	payload, err := s.Serialize(set)
	require.NoError(t, err)

	assertPayload(t, `{
		"type": "ad-sets",
		"id": "s1",
		"attributes": {"name": "Homepage"},
		"relationships": {"positions": {"data": [{
			"type": "ad-positions",
			"id": "p1",
			"attributes": {"position": null, "code": "top"},
			"relationships": {"adSet": {"data": {"type": "ad-sets", "id": "s1"}}}
		}]}}
	}`, payload)
}

func TestResourceSerializer_Unregistered(t *testing.T) {
	s := NewResourceSerializer(schema.NewRegistry())

	_, err := s.Serialize(&fixtures.Office{})
	assert.True(t, schema.IsUnregistered(err))

	_, err = s.Serialize(nil)
	assert.True(t, errors.Is(err, ErrNotResource))
}

func TestResourceSerializer_SerializerError(t *testing.T) {
	s := newSerializer(t)

	resource := &fixtures.CustomAttribute{}
	model.Set(resource, "name", 42)

	_, err := s.Serialize(resource)
	assert.Error(t, err)
}

func parseDocument(t *testing.T, body string) *jsonapi.Document {
	t.Helper()
	doc, err := jsonapi.Parse([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}

func deserializeOne(t *testing.T, s *ResourceSerializer, body, modelID string) model.Resource {
	t.Helper()
	doc := parseDocument(t, body)
	metadata, err := s.Registry().Lookup(modelID)
	require.NoError(t, err)

	r, err := s.Deserialize(doc.Data.One, metadata, NewDeserializationContext(doc.Included))
	require.NoError(t, err)
	return r
}

const userDocument = `{
	"data": {
		"type": "users",
		"id": "1",
		"attributes": {"email": "test@test.com", "name": "Test User"},
		"relationships": {
			"office": {"data": {"type": "offices", "id": "1"}},
			"roles": {"data": [{"type": "user-roles", "id": "1-advertiser"}, {"type": "user-roles", "id": "1-publisher"}]}
		}
	},
	"included": [
		{"type": "offices", "id": "1", "attributes": {"title": "Test office", "address": "Test address"}},
		{"type": "user-roles", "id": "1-advertiser", "attributes": {"role": "advertiser", "status": "active"}},
		{"type": "user-roles", "id": "1-publisher", "attributes": {"role": "publisher", "status": "active"}}
	]
}`

func TestResourceSerializer_Deserialize(t *testing.T) {
	s := newSerializer(t)

	parsed := deserializeOne(t, s, userDocument, fixtures.UserModel)

	user, ok := parsed.(*fixtures.User)
	require.True(t, ok)
	assert.Equal(t, "1", user.ID)
	assert.Equal(t, "test@test.com", user.Email())
	assert.Equal(t, "Test User", user.Name())

	office := user.Office()
	require.NotNil(t, office)
	assert.Equal(t, "1", office.ID)
	assert.Equal(t, "Test office", office.Title())
	assert.Equal(t, "Test address", office.Address())

	roles := user.Roles()
	require.Len(t, roles, 2)
	for _, role := range roles {
		assert.Equal(t, "active", role.Status())
		expected := "publisher"
		if role.ID == "1-advertiser" {
			expected = "advertiser"
		}
		assert.Equal(t, expected, role.Role())
	}

	assert.False(t, tracking.IsNew(user))
	assert.False(t, tracking.HasChanges(user))
	assert.False(t, tracking.IsNew(office))
}

func TestResourceSerializer_DeserializeSparseFieldset(t *testing.T) {
	s := newSerializer(t)

	parsed := deserializeOne(t, s, `{
		"data": {
			"type": "users",
			"id": "1",
			"attributes": {"email": "test@test.com"},
			"relationships": {
				"office": {"data": null},
				"roles": {"data": [{"type": "user-roles", "id": "1-advertiser"}, {"type": "user-roles", "id": "1-publisher"}]}
			}
		}
	}`, fixtures.UserModel)

	user := parsed.(*fixtures.User)
	assert.Equal(t, "test@test.com", user.Email())

	_, set := tracking.Lookup(user, "name")
	assert.False(t, set, "absent attributes are left untouched")

	assert.Nil(t, user.Office())
	roles := user.Roles()
	require.Len(t, roles, 2)
	assert.Equal(t, "1-advertiser", roles[0].ID)
	assert.Empty(t, roles[0].Role(), "roles without included data are stubs")
}

func TestResourceSerializer_DeserializeCustomFields(t *testing.T) {
	s := newSerializer(t)

	parsed := deserializeOne(t, s, `{
		"data": {
			"type": "custom-fields-resources",
			"id": "test",
			"attributes": {"name": "test"},
			"relationships": {"user": {"data": {"type": "users", "id": "test"}}}
		}
	}`, fixtures.CustomFieldsModel)

	obj := parsed.(*fixtures.CustomFields)
	assert.Equal(t, "test", obj.ID)
	assert.Equal(t, "test", obj.Title())
	require.NotNil(t, obj.Customer())
	assert.Equal(t, "test", obj.Customer().ID)
}

func TestResourceSerializer_DeserializeCustomAttributeSerializer(t *testing.T) {
	s := newSerializer(t)

	parsed := deserializeOne(t, s, `{
		"data": {"type": "custom-attributes", "id": "1", "attributes": {"name": "test"}}
	}`, fixtures.CustomAttributeModel)

	assert.Equal(t, "TEST", parsed.(*fixtures.CustomAttribute).Name())
}

func TestResourceSerializer_CustomSerializerRoundTrip(t *testing.T) {
	s := newSerializer(t)

	original := &fixtures.CustomAttribute{}
	original.SetName("MIXED")

	payload, err := s.Serialize(original)
	require.NoError(t, err)
	assert.Equal(t, "mixed", payload.Attributes["name"])

	payload.ID = "9"
	metadata, err := s.Registry().Lookup(fixtures.CustomAttributeModel)
	require.NoError(t, err)

	parsed, err := s.Deserialize(payload, metadata, NewDeserializationContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "MIXED", parsed.(*fixtures.CustomAttribute).Name())
}

func TestResourceSerializer_AttributeRoundTrip(t *testing.T) {
	s := newSerializer(t)

	values := []interface{}{"text", float64(42), true, nil, []interface{}{"a", float64(1)}, map[string]interface{}{"k": "v"}}

	for _, value := range values {
		user := &fixtures.User{}
		model.Set(user, "name", value)

		payload, err := s.Serialize(user)
		require.NoError(t, err)

		encoded, err := json.Marshal(&jsonapi.Document{Data: jsonapi.Single(payload)})
		require.NoError(t, err)

		doc := parseDocument(t, string(encoded))
		metadata, _ := s.Registry().Lookup(fixtures.UserModel)
		parsed, err := s.Deserialize(doc.Data.One, metadata, NewDeserializationContext(nil))
		require.NoError(t, err)

		assert.Equal(t, value, tracking.Get(parsed, "name"))
	}
}

func TestResourceSerializer_DeserializeMalformedRelationships(t *testing.T) {
	s := newSerializer(t)

	parsed := deserializeOne(t, s, `{
		"data": {
			"type": "custom-fields-resources",
			"id": "test",
			"relationships": {
				"user": {"data": {"type": "users"}},
				"offices": {"data": [{"type": "offices"}, {"id": "1"}]}
			}
		}
	}`, fixtures.CustomFieldsModel)

	obj := parsed.(*fixtures.CustomFields)
	assert.Nil(t, obj.Customer())
	assert.Empty(t, obj.Offices())

	parsed = deserializeOne(t, s, `{
		"data": {
			"type": "custom-fields-resources",
			"id": "test",
			"relationships": {"user": {"data": [{"type": "users", "id": "1"}]}, "offices": {"data": null}}
		}
	}`, fixtures.CustomFieldsModel)

	obj = parsed.(*fixtures.CustomFields)
	assert.Nil(t, obj.Customer(), "to-one with array linkage resolves to nil")
	offices, set := tracking.Lookup(obj, "offices")
	assert.True(t, set)
	assert.Empty(t, offices)
}

func TestResourceSerializer_SharedReferences(t *testing.T) {
	s := newSerializer(t)

	parsed := deserializeOne(t, s, `{
		"data": {
			"type": "posts",
			"id": "1",
			"relationships": {
				"author": {"data": {"type": "users", "id": "1"}},
				"moderator": {"data": {"type": "users", "id": "1"}}
			}
		},
		"included": [{"type": "users", "id": "1", "attributes": {"name": "Jane"}}]
	}`, fixtures.PostModel)

	post := parsed.(*fixtures.Post)
	require.NotNil(t, post.Author())
	assert.Same(t, post.Author(), post.Moderator())
	assert.Equal(t, "Jane", post.Author().Name())
}

func TestResourceSerializer_Discriminator(t *testing.T) {
	s := newSerializer(t)

	parsed := deserializeOne(t, s, `{
		"data": {"type": "shapes", "id": "1", "attributes": {"shapeType": "circle", "radius": 5}}
	}`, fixtures.ShapeModel)

	circle, ok := parsed.(*fixtures.Circle)
	require.True(t, ok, "got %T", parsed)
	assert.Equal(t, "circle", circle.ShapeType())
	assert.Equal(t, float64(5), circle.Radius())
	assert.False(t, tracking.HasChanges(circle))

	parsed = deserializeOne(t, s, `{
		"data": {"type": "shapes", "id": "2", "attributes": {"shapeType": "rectangle", "width": 3, "height": "4"}}
	}`, fixtures.ShapeModel)

	rectangle, ok := parsed.(*fixtures.Rectangle)
	require.True(t, ok, "got %T", parsed)
	assert.Equal(t, 3, rectangle.Width())
	assert.Equal(t, 4, rectangle.Height())

	parsed = deserializeOne(t, s, `{
		"data": {"type": "shapes", "id": "3", "attributes": {"shapeType": "hexagon"}}
	}`, fixtures.ShapeModel)
	assert.IsType(t, &fixtures.Shape{}, parsed, "unknown tags use the base model")
}

func TestResourceSerializer_DiscriminatorUnregisteredTarget(t *testing.T) {
	r := schema.NewRegistry()
	schema.NewBuilder(r, "shape", schema.ModelConfig{
		Type:               "shapes",
		DiscriminatorField: "kind",
		DiscriminatorMap:   map[string]string{"ghost": "ghost"},
		New:                func() interface{} { return &fixtures.Shape{} },
	}).Attr("kind").MustRegister()

	s := NewResourceSerializer(r)
	metadata, _ := r.Lookup("shape")

	_, err := s.Deserialize(&jsonapi.Resource{Type: "shapes", ID: "1", Attributes: map[string]any{"kind": "ghost"}},
		metadata, NewDeserializationContext(nil))
	assert.True(t, schema.IsUnregistered(err))
}

func TestResourceSerializer_InheritedModel(t *testing.T) {
	s := newSerializer(t)

	parsed := deserializeOne(t, s, `{
		"data": {
			"type": "users",
			"id": "1",
			"attributes": {"name": "Root", "public": true},
			"relationships": {"permissions": {"data": [{"type": "permissions", "id": "read"}]}}
		},
		"included": [{"type": "permissions", "id": "read", "attributes": {"name": "Read"}}]
	}`, fixtures.AdministratorModel)

	admin := parsed.(*fixtures.Administrator)
	assert.Equal(t, "Root", admin.Name())
	assert.True(t, admin.IsPublic())
	require.Len(t, admin.Permissions(), 1)
	assert.Equal(t, "Read", admin.Permissions()[0].Name())
}

func TestResourceSerializer_DeserializeCycle(t *testing.T) {
	s := newSerializer(t)

	parsed := deserializeOne(t, s, `{
		"data": {
			"type": "ad-sets",
			"id": "s1",
			"attributes": {"name": "Homepage"},
			"relationships": {"positions": {"data": [{"type": "ad-positions", "id": "p1"}, {"type": "ad-positions", "id": "p2"}]}}
		},
		"included": [
			{"type": "ad-positions", "id": "p1", "attributes": {"position": "1", "code": "top"},
			 "relationships": {"adSet": {"data": {"type": "ad-sets", "id": "s1"}}}},
			{"type": "ad-positions", "id": "p2", "attributes": {"position": 2, "code": "side"},
			 "relationships": {"adSet": {"data": {"type": "ad-sets", "id": "s1"}}}}
		]
	}`, fixtures.AdSetModel)

	set := parsed.(*fixtures.AdSet)
	positions := set.Positions()
	require.Len(t, positions, 2)

	for _, position := range positions {
		assert.Same(t, set, position.AdSet())
	}
	assert.Equal(t, 1, positions[0].Position())
	assert.Equal(t, 2, positions[1].Position())

	assert.False(t, tracking.HasChanges(set))
	assert.False(t, tracking.IsNew(positions[0]))

	positions[1].ID = "p2"
	model.Set(positions[1], "code", "bottom")
	assert.True(t, tracking.IsChanged(set, "positions"))
}

func TestResourceSerializer_ContextRegistersBeforeRelationships(t *testing.T) {
	s := newSerializer(t)
	metadata, _ := s.Registry().Lookup(fixtures.UserModel)

	ctx := NewDeserializationContext(nil)
	user, err := s.Deserialize(&jsonapi.Resource{Type: "users", ID: "1"}, metadata, ctx)
	require.NoError(t, err)

	registered, ok := ctx.Resource("users", "1")
	require.True(t, ok)
	assert.Same(t, user, registered)

	_, err = s.Deserialize(&jsonapi.Resource{Type: "users"}, metadata, ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ctx.Len(), "resources without id are not registered")
}

func TestResourceSerializer_DeserializeReusesRegisteredInstance(t *testing.T) {
	s := newSerializer(t)
	metadata, _ := s.Registry().Lookup(fixtures.UserModel)

	ctx := NewDeserializationContext(nil)
	first, err := s.Deserialize(&jsonapi.Resource{Type: "users", ID: "1", Attributes: map[string]any{"name": "Ann"}}, metadata, ctx)
	require.NoError(t, err)

	second, err := s.Deserialize(&jsonapi.Resource{Type: "users", ID: "1"}, metadata, ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "Ann", second.(*fixtures.User).Name())

	other, err := s.Deserialize(&jsonapi.Resource{Type: "users"}, metadata, ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}
