package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relorm"
)

func TestReference(t *testing.T) {
	t.Parallel()
	c, mock := newClient(t)
	ctx := context.Background()

	p, err := c.New("Post")
	require.NoError(t, err)
	ref, err := p.Reference("user_id")
	require.NoError(t, err)
	assert.Equal(t, "User", ref.Target())

	fresh, err := c.New("User")
	require.NoError(t, err)
	assert.True(t, relorm.IsNotPersisted(ref.Set(fresh)))
	assert.True(t, relorm.IsTypeMismatch(ref.Set(proxy(t, c, "Role", 1))))
	assert.True(t, relorm.IsTypeMismatch(ref.Set("1")))
	assert.False(t, ref.IsSet())

	admin := proxy(t, c, "Admin", 7)
	require.NoError(t, ref.Set(admin), "inheritors are accepted")
	id, ok := ref.ID()
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	require.NoError(t, p.Set("user_id", 3))
	require.NoError(t, p.Set("title", "Hello"))
	data, err := p.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Hello", "user_id": int64(3)}, data)
	target, ok := ref.Get(ctx, false)
	require.True(t, ok)
	assert.Equal(t, "User", target.Name())
	assert.False(t, target.IsNew())

	mock.ExpectQuery("SELECT user.Id, user.name, user.age FROM user WHERE user.Id = ?").
		WithArgs(int64(3)).
		WillReturnError(errors.New("server has gone away"))
	ref.Load(ctx)
	assert.Equal(t, "user_id=User(3)", ref.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceDecodedOnLoad(t *testing.T) {
	t.Parallel()
	c, mock := newClient(t)
	ctx := context.Background()

	p := proxy(t, c, "Post", 10)
	mock.ExpectQuery("SELECT post.Id, post.title, post.user_id FROM post WHERE post.Id = ?").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "title", "user_id"}).AddRow(int64(10), "First", "1"))
	v, ok := p.Get(ctx, "user_id")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOneToMany(t *testing.T) {
	t.Parallel()
	c, mock := newClient(t)
	ctx := context.Background()

	u := proxy(t, c, "User", 1)
	posts, err := u.OneToMany("posts")
	require.NoError(t, err)
	assert.Equal(t, "Post", posts.Target())

	mock.ExpectQuery("SELECT post.Id FROM post WHERE post.user_id = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"Id"}).AddRow(int64(10)).AddRow(int64(11)))
	items, err := posts.Get(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	id, _ := items[1].ID()
	assert.Equal(t, int64(11), id)
	assert.False(t, items[0].IsNew())

	cached, err := posts.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, items, cached)

	mock.ExpectQuery("SELECT post.Id, post.title, post.user_id FROM post WHERE post.Id = ?").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "title", "user_id"}).AddRow(int64(10), "First", int64(1)))
	mock.ExpectQuery("SELECT post.Id, post.title, post.user_id FROM post WHERE post.Id = ?").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "title", "user_id"}).AddRow(int64(11), "Second", int64(1)))
	loaded, err := posts.GetLoaded(ctx, false)
	require.NoError(t, err)
	title, _ := loaded[1].Get(ctx, "title")
	assert.Equal(t, "Second", title)

	mock.ExpectQuery("SELECT post.Id FROM post WHERE post.user_id = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"Id"}))
	items, err = posts.Get(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, items)

	fresh, err := c.New("User")
	require.NoError(t, err)
	none, err := fresh.OneToMany("posts")
	require.NoError(t, err)
	items, err = none.Get(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = u.OneToMany("roles")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManyToMany(t *testing.T) {
	t.Parallel()
	c, mock := newClient(t)
	ctx := context.Background()

	u := proxy(t, c, "User", 1)
	roles, err := u.ManyToMany("roles")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT user_role.role_id FROM user_role WHERE user_role.user_id = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"role_id"}).AddRow(int64(2)))
	items, err := roles.Get(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	editor := proxy(t, c, "Role", 3)
	mock.ExpectExec("INSERT INTO user_role (role_id, user_id) VALUES (?, ?)").
		WithArgs(int64(3), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, roles.Add(ctx, editor))

	items, err = roles.Get(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Same(t, editor, items[1])

	mock.ExpectQuery("SELECT role.Id, role.name FROM role WHERE role.Id IN (?, ?)").
		WithArgs(int64(2), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "name"}).
			AddRow(int64(3), "editor").
			AddRow(int64(2), "admin"))
	loaded, err := roles.GetLoaded(ctx, false)
	require.NoError(t, err)
	first, _ := loaded[0].Get(ctx, "name")
	second, _ := loaded[1].Get(ctx, "name")
	assert.Equal(t, "admin", first)
	assert.Equal(t, "editor", second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManyToManyAddRejects(t *testing.T) {
	t.Parallel()
	c, mock := newClient(t)
	ctx := context.Background()

	u := proxy(t, c, "User", 1)
	roles, err := u.ManyToMany("roles")
	require.NoError(t, err)

	fresh, err := c.New("Role")
	require.NoError(t, err)
	assert.True(t, relorm.IsNotPersisted(roles.Add(ctx, fresh)))
	assert.True(t, relorm.IsTypeMismatch(roles.Add(ctx, proxy(t, c, "Post", 1))))
	assert.True(t, relorm.IsTypeMismatch(roles.Add(ctx, "editor")))

	mock.ExpectQuery("SELECT role.Id FROM role WHERE role.Id = ?").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"Id"}))
	assert.True(t, relorm.IsNotFound(roles.Add(ctx, 4)))

	owner, err := c.New("User")
	require.NoError(t, err)
	unsaved, err := owner.ManyToMany("roles")
	require.NoError(t, err)
	assert.True(t, relorm.IsNotPersisted(unsaved.Add(ctx, proxy(t, c, "Role", 2))))
	items, err := unsaved.GetLoaded(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManyToManyByID(t *testing.T) {
	t.Parallel()
	c, mock := newClient(t)
	ctx := context.Background()

	u := proxy(t, c, "User", 1)
	roles, err := u.ManyToMany("roles")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT role.Id FROM role WHERE role.Id = ?").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"Id"}).AddRow(int64(2)))
	mock.ExpectExec("INSERT INTO user_role (role_id, user_id) VALUES (?, ?)").
		WithArgs(int64(2), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, roles.Add(ctx, 2))

	mock.ExpectQuery("SELECT user_role.role_id FROM user_role WHERE user_role.user_id = ?").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"role_id"}))
	items, err := roles.GetLoaded(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, items, "no bulk read without identities")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManyToManyInheritedOwner(t *testing.T) {
	t.Parallel()
	c, mock := newClient(t)
	ctx := context.Background()

	a := proxy(t, c, "Admin", 9)
	roles, err := a.ManyToMany("roles")
	require.NoError(t, err)
	mock.ExpectQuery("SELECT user_role.role_id FROM user_role WHERE user_role.user_id = ?").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"role_id"}).AddRow("5"))
	items, err := roles.Get(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	id, _ := items[0].ID()
	assert.Equal(t, int64(5), id)
	require.NoError(t, mock.ExpectationsWereMet())
}
