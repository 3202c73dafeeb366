package vesta

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	sqlgw "github.com/VestaRayanAfzar/vesta-driver-mssql/dialect/sql"
	"github.com/VestaRayanAfzar/vesta-driver-mssql/schema"
)

func testEntities() []*schema.Entity {
	return []*schema.Entity{
		{Name: "User", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true},
			{Name: "name", Type: schema.TypeString},
			{Name: "age", Type: schema.TypeInteger},
			{Name: "profile", Type: schema.TypeRelation, Relation: &schema.Relation{Target: "Profile", Kind: schema.OneToOne, Weak: true}},
			{Name: "posts", Type: schema.TypeRelation, Relation: &schema.Relation{Target: "Post", Kind: schema.Reverse}},
		}},
		{Name: "Profile", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true},
			{Name: "bio", Type: schema.TypeText},
		}},
		{Name: "Post", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true},
			{Name: "title", Type: schema.TypeString},
			{Name: "author", Type: schema.TypeRelation, Relation: &schema.Relation{Target: "User", Kind: schema.OneToOne}},
			{Name: "tags", Type: schema.TypeRelation, Relation: &schema.Relation{Target: "Tag", Kind: schema.ManyToMany}},
			{Name: "keywords", Type: schema.TypeList, ListOf: schema.TypeString},
			{Name: "views", Type: schema.TypeInteger},
		}},
		{Name: "Tag", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true},
			{Name: "name", Type: schema.TypeString},
		}},
		{Name: "Album", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true},
			{Name: "name", Type: schema.TypeString},
			{Name: "photos", Type: schema.TypeRelation, Relation: &schema.Relation{Target: "Photo", Kind: schema.Reverse, Weak: true}},
		}},
		{Name: "Photo", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true},
			{Name: "caption", Type: schema.TypeString},
			{Name: "album", Type: schema.TypeRelation, Relation: &schema.Relation{Target: "Album", Kind: schema.OneToOne}},
			{Name: "tags", Type: schema.TypeRelation, Relation: &schema.Relation{Target: "Tag", Kind: schema.ManyToMany}},
		}},
		{Name: "Session", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeString, Primary: true},
			{Name: "token", Type: schema.TypeString},
		}},
		{Name: "Article", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true},
			{Name: "slug", Type: schema.TypeString},
			{Name: "title", Type: schema.TypeString, Multilingual: true},
		}},
		{Name: "Doc", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeInteger, Primary: true},
			{Name: "data", Type: schema.TypeObject},
		}},
	}
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(testEntities())
	require.NoError(t, err)
	return reg
}

func testCompiler(t *testing.T, d string) *compiler {
	t.Helper()
	return &compiler{reg: testRegistry(t), dialect: d}
}

// mockClient returns a client backed by sqlmock with exact statement
// matching, so generated SQL is verified character for character.
func mockClient(t *testing.T, d string, opts ...ClientOption) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	drv := sqlgw.OpenDB(d, db)
	return NewClient(drv, testRegistry(t), opts...), mock
}
