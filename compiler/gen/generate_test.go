package gen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relorm/dialect/sql/schema"
	"github.com/syssam/relorm/entity"
)

func blog() *schema.Metadata {
	return &schema.Metadata{
		Columns: []schema.Column{
			{Table: "user", Name: "Id"}, {Table: "user", Name: "name"}, {Table: "user", Name: "age"},
			{Table: "admin", Name: "Id"}, {Table: "admin", Name: "level"},
			{Table: "post", Name: "Id"}, {Table: "post", Name: "title"}, {Table: "post", Name: "user_id"},
			{Table: "role", Name: "Id"}, {Table: "role", Name: "name"},
			{Table: "user_role", Name: "user_id"}, {Table: "user_role", Name: "role_id"},
			{Table: "audit_log", Name: "message"},
		},
		ForeignKeys: []schema.ForeignKey{
			{Table: "admin", Column: "Id", RefTable: "user", RefColumn: "Id"},
			{Table: "post", Column: "user_id", RefTable: "user", RefColumn: "Id"},
			{Table: "user_role", Column: "user_id", RefTable: "user", RefColumn: "Id"},
			{Table: "user_role", Column: "role_id", RefTable: "role", RefColumn: "Id"},
		},
	}
}

func TestDescriptors(t *testing.T) {
	t.Parallel()

	descs, err := Descriptors(blog(),
		WithKind("user", "age", entity.KindInt),
		WithNullable("USER", "AGE"),
		WithKind("admin", "level", entity.KindInt),
	)
	require.NoError(t, err)
	require.Len(t, descs, 4, "join tables and tables without identity are skipped")

	assert.Equal(t, entity.Descriptor{
		Name:  "User",
		Table: "user",
		Fields: []entity.FieldSpec{
			{Column: "name", Kind: entity.KindString},
			{Column: "age", Kind: entity.KindInt, Nullable: true},
		},
		Relations: []entity.RelationSpec{
			{Name: "posts", Kind: entity.OneToManyRelation, Target: "Post"},
			{Name: "roles", Kind: entity.ManyToManyRelation, Target: "Role"},
		},
	}, descs[0])
	assert.Equal(t, entity.Descriptor{
		Name:    "Admin",
		Table:   "admin",
		Extends: "User",
		Fields:  []entity.FieldSpec{{Column: "level", Kind: entity.KindInt}},
	}, descs[1])
	assert.Equal(t, []entity.FieldSpec{
		{Column: "title", Kind: entity.KindString},
		{Column: "user_id", Kind: entity.KindReference, Ref: "User"},
	}, descs[2].Fields)
	assert.Equal(t, []entity.RelationSpec{
		{Name: "users", Kind: entity.ManyToManyRelation, Target: "User"},
	}, descs[3].Relations)
}

func TestDescriptorsQualifyDuplicateRelations(t *testing.T) {
	t.Parallel()

	md := &schema.Metadata{
		Columns: []schema.Column{
			{Table: "user", Name: "Id"},
			{Table: "post", Name: "Id"}, {Table: "post", Name: "author_id"}, {Table: "post", Name: "editor_id"},
		},
		ForeignKeys: []schema.ForeignKey{
			{Table: "post", Column: "author_id", RefTable: "user", RefColumn: "Id"},
			{Table: "post", Column: "editor_id", RefTable: "user", RefColumn: "Id"},
		},
	}
	descs, err := Descriptors(md)
	require.NoError(t, err)
	require.Len(t, descs[0].Relations, 2)
	assert.Equal(t, "posts", descs[0].Relations[0].Name)
	assert.Equal(t, "posts_editor_id", descs[0].Relations[1].Name)
}

func TestDescriptorsInvalid(t *testing.T) {
	t.Parallel()

	md := &schema.Metadata{
		Columns: []schema.Column{
			{Table: "user", Name: "Id"}, {Table: "user", Name: "name"},
			{Table: "admin", Name: "Id"}, {Table: "admin", Name: "name"},
		},
		ForeignKeys: []schema.ForeignKey{
			{Table: "admin", Column: "Id", RefTable: "user", RefColumn: "Id"},
		},
	}
	_, err := Descriptors(md)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared by both")
}

func TestConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := NewConfig(WithPackage("not a package"))
	assert.ErrorIs(t, err, ErrMissingConfig)
	_, err = NewConfig(WithKind("post", "user_id", entity.KindReference))
	assert.ErrorIs(t, err, ErrMissingConfig)
}

// squeeze collapses whitespace so assertions do not depend on alignment.
func squeeze(src []byte) string {
	return strings.Join(strings.Fields(string(src)), " ")
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	src, err := Generate(blog(), "models/entities.go",
		WithPackage("models"),
		WithKind("user", "age", entity.KindInt),
		WithNullable("user", "age"),
	)
	require.NoError(t, err)
	out := squeeze(src)

	assert.True(t, strings.HasPrefix(out, "// Code generated by relorm. DO NOT EDIT."))
	assert.Contains(t, out, "package models")
	assert.Contains(t, out, "var UserDescriptor = entity.Descriptor{")
	assert.Contains(t, out, `Column: "age", Kind: entity.KindInt, Nullable: true`)
	assert.Contains(t, out, `Column: "user_id", Kind: entity.KindReference, Ref: "User"`)
	assert.Contains(t, out, `Extends: "User"`)
	assert.Contains(t, out, `Kind: entity.ManyToManyRelation, Name: "roles", Target: "Role"`)
	assert.Contains(t, out, "func Registry() (*entity.Registry, error) { return entity.NewRegistry(UserDescriptor, AdminDescriptor, PostDescriptor, RoleDescriptor) }")
	assert.NotContains(t, out, "UserRoleDescriptor")
}

func TestWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "models", "entities.go")
	require.NoError(t, Write(blog(), path, WithHeader("")))
	src, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(src), "package models"))
}
