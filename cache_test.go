package vesta

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/dialect"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	_, ok := mc.Get(ctx, "Tag:a")
	assert.False(t, ok)

	mc.Set(ctx, "Tag:a", []byte("1"))
	mc.Set(ctx, "Tag:b", []byte("2"))
	mc.Set(ctx, "Post:a", []byte("3"))
	assert.Equal(t, 3, mc.Len())

	v, ok := mc.Get(ctx, "Tag:a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	mc.DeletePrefix(ctx, "Tag:")
	assert.Equal(t, 1, mc.Len())
	_, ok = mc.Get(ctx, "Tag:b")
	assert.False(t, ok)
	_, ok = mc.Get(ctx, "Post:a")
	assert.True(t, ok)
}

func TestCacheKeyScopedByEntity(t *testing.T) {
	k := cacheKey("Tag", "SELECT 1", []any{1})
	assert.Contains(t, k, "Tag:")
	assert.NotEqual(t, k, cacheKey("Tag", "SELECT 1", []any{2}))
	assert.NotEqual(t, k, cacheKey("Tag", "SELECT 2", []any{1}))
}

func TestFindReadThroughCache(t *testing.T) {
	c, mock := mockClient(t, dialect.MySQL, WithCache(NewMemoryCache()))
	stmt := "SELECT `tag`.`id`, `tag`.`name` FROM `tags` AS `tag`"
	mock.ExpectQuery(stmt).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "go"))

	ctx := context.Background()
	recs, err := c.Find(ctx, NewQuery("Tag"))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// Second read is served from the cache; no statement expected.
	recs, err = c.Find(ctx, NewQuery("Tag"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "go", recs[0]["name"])

	// A write invalidates the entity's entries.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `tag`.`id` FROM `tags` AS `tag`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("DELETE FROM `tags` WHERE `id` = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	_, err = c.DeleteAll(ctx, "Tag", nil)
	require.NoError(t, err)

	mock.ExpectQuery(stmt).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	recs, err = c.Find(ctx, NewQuery("Tag"))
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteToRelatedEntityInvalidatesCache(t *testing.T) {
	// Cached Post reads embed Tag rows, so a Tag write must stale them
	// along with Tag's own entries.
	c, mock := mockClient(t, dialect.MySQL, WithCache(NewMemoryCache()))
	ctx := context.Background()

	main := "SELECT `post`.`id`, `post`.`title` FROM `posts` AS `post`"
	fan := "SELECT `j`.`post_id` AS `_fk`, `tag`.`id`, `tag`.`name`" +
		" FROM `post_tags` AS `j`" +
		" JOIN `tags` AS `tag` ON `j`.`tag_id` = `tag`.`id`" +
		" WHERE `j`.`post_id` IN (?)"
	expectFind := func(name string) {
		mock.ExpectQuery(main).
			WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(1, "first"))
		mock.ExpectQuery(fan).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"_fk", "id", "name"}).AddRow(1, 10, name))
	}

	q := NewQuery("Post").Select("id", "title").With("tags")
	expectFind("go")
	recs, err := c.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// Served from the cache; no statement expected.
	_, err = c.Find(ctx, q)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `id` FROM `tags` WHERE `id` = ?").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectExec("UPDATE `tags` SET `name` = ? WHERE `id` = ?").
		WithArgs("golang", 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `id`, `name` FROM `tags` WHERE `id` IN (?)").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(10, "golang"))
	mock.ExpectCommit()
	_, err = c.Update(ctx, "Tag", Record{"id": 10, "name": "golang"})
	require.NoError(t, err)

	// The rename is visible on the next read.
	expectFind("golang")
	recs, err = c.Find(ctx, q)
	require.NoError(t, err)
	tags := recs[0]["tags"].([]any)
	require.Len(t, tags, 1)
	assert.Equal(t, "golang", tags[0].(Record)["name"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionReadsBypassCache(t *testing.T) {
	c, mock := mockClient(t, dialect.MySQL, WithCache(NewMemoryCache()))
	stmt := "SELECT `tag`.`id`, `tag`.`name` FROM `tags` AS `tag`"
	ctx := context.Background()

	mock.ExpectQuery(stmt).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "go"))
	_, err := c.Find(ctx, NewQuery("Tag"))
	require.NoError(t, err)

	// A transaction-bound client must see its own uncommitted writes,
	// so it reads past the cache.
	mock.ExpectBegin()
	tx, err := c.Tx(ctx)
	require.NoError(t, err)
	mock.ExpectQuery(stmt).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "go"))
	_, err = c.WithTx(tx).Find(ctx, NewQuery("Tag"))
	require.NoError(t, err)
	mock.ExpectRollback()
	require.NoError(t, tx.Rollback())

	require.NoError(t, mock.ExpectationsWereMet())
}
