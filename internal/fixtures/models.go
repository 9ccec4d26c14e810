// Package fixtures declares a small family of models used across package tests:
// users with offices and roles, posts with two user references, a polymorphic
// shape hierarchy, a self-referencing node, and models exercising custom wire
// names and serializers.
package fixtures

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/jsonapi-store/pkg/model"
	"github.com/conduit-lang/jsonapi-store/pkg/schema"
)

// Model ids
const (
	UserModel            = "user"
	OfficeModel          = "office"
	UserRoleModel        = "user-role"
	PostModel            = "post"
	PermissionModel      = "permission"
	AdministratorModel   = "administrator"
	ShapeModel           = "shape"
	CircleModel          = "circle"
	RectangleModel       = "rectangle"
	CustomAttributeModel = "custom-attribute"
	CustomFieldsModel    = "custom-fields"
	AdSetModel           = "ad-set"
	AdPositionModel      = "ad-position"
	NodeModel            = "node"
)

type Office struct{ model.Base }

func (o *Office) Title() string { return model.Get[string](o, "title") }
func (o *Office) SetTitle(v string) { model.Set(o, "title", v) }
func (o *Office) Address() string { return model.Get[string](o, "address") }
func (o *Office) SetAddress(v string) { model.Set(o, "address", v) }

type UserRole struct{ model.Base }

// NewUserRole creates a role whose id is derived from the user id
func NewUserRole(user *User, role string) *UserRole {
	r := &UserRole{}
	r.SetRole(role)
	if user != nil && user.ID != "" && role != "" {
		r.ID = user.ID + "-" + role
	}
	return r
}

func (r *UserRole) Role() string { return model.Get[string](r, "role") }
func (r *UserRole) SetRole(v string) { model.Set(r, "role", v) }
func (r *UserRole) Status() string { return model.Get[string](r, "status") }
func (r *UserRole) SetStatus(v string) { model.Set(r, "status", v) }

type User struct{ model.Base }

func (u *User) Email() string { return model.Get[string](u, "email") }
func (u *User) SetEmail(v string) { model.Set(u, "email", v) }
func (u *User) Name() string { return model.Get[string](u, "name") }
func (u *User) SetName(v string) { model.Set(u, "name", v) }
func (u *User) Office() *Office { return model.Get[*Office](u, "office") }
func (u *User) SetOffice(v *Office) { model.Set(u, "office", v) }
func (u *User) Roles() []*UserRole { return model.GetMany[*UserRole](u, "roles") }
func (u *User) SetRoles(v ...*UserRole) { model.Set(u, "roles", v) }

type Permission struct{ model.Base }

func (p *Permission) Name() string { return model.Get[string](p, "name") }
func (p *Permission) SetName(v string) { model.Set(p, "name", v) }

type Administrator struct{ model.Base }

func (a *Administrator) Name() string { return model.Get[string](a, "name") }
func (a *Administrator) SetName(v string) { model.Set(a, "name", v) }
func (a *Administrator) IsPublic() bool { return model.Get[bool](a, "isPublic") }
func (a *Administrator) SetPublic(v bool) { model.Set(a, "isPublic", v) }
func (a *Administrator) Office() *Office { return model.Get[*Office](a, "office") }
func (a *Administrator) Permissions() []*Permission { return model.GetMany[*Permission](a, "permissions") }
func (a *Administrator) SetPermissions(v ...*Permission) { model.Set(a, "permissions", v) }

type Post struct{ model.Base }

func (p *Post) Author() *User { return model.Get[*User](p, "author") }
func (p *Post) SetAuthor(v *User) { model.Set(p, "author", v) }
func (p *Post) Moderator() *User { return model.Get[*User](p, "moderator") }
func (p *Post) SetModerator(v *User) { model.Set(p, "moderator", v) }

type Shape struct{ model.Base }

func (s *Shape) ShapeType() string { return model.Get[string](s, "shapeType") }

type Circle struct{ model.Base }

// NewCircle creates a circle with its discriminator set
func NewCircle() *Circle {
	c := &Circle{}
	model.Set(c, "shapeType", "circle")
	return c
}

func (c *Circle) ShapeType() string { return model.Get[string](c, "shapeType") }
func (c *Circle) Radius() float64 { return model.Get[float64](c, "radius") }
func (c *Circle) SetRadius(v float64) { model.Set(c, "radius", v) }

type Rectangle struct{ model.Base }

// NewRectangle creates a rectangle with its discriminator set
func NewRectangle() *Rectangle {
	r := &Rectangle{}
	model.Set(r, "shapeType", "rectangle")
	return r
}

func (r *Rectangle) ShapeType() string { return model.Get[string](r, "shapeType") }
func (r *Rectangle) Width() int { return model.Get[int](r, "width") }
func (r *Rectangle) SetWidth(v int) { model.Set(r, "width", v) }
func (r *Rectangle) Height() int { return model.Get[int](r, "height") }
func (r *Rectangle) SetHeight(v int) { model.Set(r, "height", v) }

type CustomAttribute struct{ model.Base }

func (c *CustomAttribute) Name() string { return model.Get[string](c, "name") }
func (c *CustomAttribute) SetName(v string) { model.Set(c, "name", v) }

type CustomFields struct{ model.Base }

func (c *CustomFields) Title() string { return model.Get[string](c, "title") }
func (c *CustomFields) SetTitle(v string) { model.Set(c, "title", v) }
func (c *CustomFields) Customer() *User { return model.Get[*User](c, "customer") }
func (c *CustomFields) SetCustomer(v *User) { model.Set(c, "customer", v) }
func (c *CustomFields) Offices() []*Office { return model.GetMany[*Office](c, "offices") }

type AdSet struct{ model.Base }

func (a *AdSet) Name() string { return model.Get[string](a, "name") }
func (a *AdSet) Positions() []*AdPosition { return model.GetMany[*AdPosition](a, "positions") }

type AdPosition struct{ model.Base }

func (a *AdPosition) Position() int { return model.Get[int](a, "position") }
func (a *AdPosition) Code() string { return model.Get[string](a, "code") }
func (a *AdPosition) AdSet() *AdSet { return model.Get[*AdSet](a, "adSet") }

type Node struct{ model.Base }

func (n *Node) Name() string { return model.Get[string](n, "name") }
func (n *Node) SetName(v string) { model.Set(n, "name", v) }
func (n *Node) Parent() *Node { return model.Get[*Node](n, "parent") }
func (n *Node) SetParent(v *Node) { model.Set(n, "parent", v) }

// NameSerializer writes names in lower case and reads them in upper case
var NameSerializer = schema.SerializerFuncs{
	Encode: func(v interface{}) (interface{}, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("name must be a string, got %T", v)
		}
		return strings.ToLower(s), nil
	},
	Decode: func(v interface{}) (interface{}, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("name must be a string, got %T", v)
		}
		return strings.ToUpper(s), nil
	},
}

// Register declares every fixture model on the registry
func Register(r *schema.Registry) error {
	builders := []*schema.Builder{
		schema.NewBuilder(r, OfficeModel, schema.ModelConfig{
			Type: "offices",
			New:  func() interface{} { return &Office{} },
		}).Attr("title").Attr("address"),

		schema.NewBuilder(r, UserRoleModel, schema.ModelConfig{
			Type: "user-roles",
			New:  func() interface{} { return &UserRole{} },
		}).Attr("role").Attr("status"),

		schema.NewBuilder(r, UserModel, schema.ModelConfig{
			Type: "users",
			New:  func() interface{} { return &User{} },
		}).
			Attr("email").
			Attr("name").
			HasOne("office", schema.RefOf[*Office]()).
			HasMany("roles", schema.RefOf[*UserRole]()),

		schema.NewBuilder(r, PermissionModel, schema.ModelConfig{
			Type: "permissions",
			New:  func() interface{} { return &Permission{} },
		}).Attr("name"),

		schema.NewBuilder(r, AdministratorModel, schema.ModelConfig{
			Extends: UserModel,
			New:     func() interface{} { return &Administrator{} },
		}).
			Attribute("isPublic", schema.AttributeConfig{Field: "public"}).
			HasMany("permissions", schema.Ref(PermissionModel)),

		schema.NewBuilder(r, PostModel, schema.ModelConfig{
			Type: "posts",
			New:  func() interface{} { return &Post{} },
		}).
			HasOne("author", schema.Ref(UserModel)).
			HasOne("moderator", schema.Ref(UserModel)),

		schema.NewBuilder(r, ShapeModel, schema.ModelConfig{
			Type:               "shapes",
			DiscriminatorField: "shapeType",
			DiscriminatorMap: map[string]string{
				"circle":    CircleModel,
				"rectangle": RectangleModel,
			},
			New: func() interface{} { return &Shape{} },
		}).Attr("shapeType"),

		schema.NewBuilder(r, CircleModel, schema.ModelConfig{
			Extends: ShapeModel,
			New:     func() interface{} { return NewCircle() },
		}).Attr("radius"),

		schema.NewBuilder(r, RectangleModel, schema.ModelConfig{
			Extends: ShapeModel,
			New:     func() interface{} { return NewRectangle() },
		}).TypedAttr("width", 0).TypedAttr("height", 0),

		schema.NewBuilder(r, CustomAttributeModel, schema.ModelConfig{
			Type: "custom-attributes",
			New:  func() interface{} { return &CustomAttribute{} },
		}).Attribute("name", schema.AttributeConfig{Serializer: NameSerializer}),

		schema.NewBuilder(r, CustomFieldsModel, schema.ModelConfig{
			Type: "custom-fields-resources",
			New:  func() interface{} { return &CustomFields{} },
		}).
			Attribute("title", schema.AttributeConfig{Field: "name"}).
			Relationship("customer", schema.RelationshipConfig{Field: "user", Resource: schema.Ref(UserModel)}).
			HasMany("offices", schema.Ref(OfficeModel)),

		schema.NewBuilder(r, AdSetModel, schema.ModelConfig{
			Type: "ad-sets",
			New:  func() interface{} { return &AdSet{} },
		}).
			Attr("name").
			HasMany("positions", schema.Ref(AdPositionModel)),

		schema.NewBuilder(r, AdPositionModel, schema.ModelConfig{
			Type: "ad-positions",
			New:  func() interface{} { return &AdPosition{} },
		}).
			TypedAttr("position", 0).
			Attr("code").
			HasOne("adSet", schema.Ref(AdSetModel)),

		schema.NewBuilder(r, NodeModel, schema.ModelConfig{
			Type: "nodes",
			New:  func() interface{} { return &Node{} },
		}).
			Attr("name").
			HasOne("parent", schema.Ref(NodeModel)),
	}

	for _, b := range builders {
		if _, err := b.Register(); err != nil {
			return err
		}
	}

	return r.ValidateAll()
}

// NewRegistry returns a registry with every fixture model declared
func NewRegistry() *schema.Registry {
	r := schema.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}
