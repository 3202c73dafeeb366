package vesta

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/dialect"
)

func TestFindWithManyToMany(t *testing.T) {
	c, mock := mockClient(t, dialect.MySQL)
	mock.ExpectQuery("SELECT `post`.`id`, `post`.`title` FROM `posts` AS `post`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow(1, "first").
			AddRow(2, "second").
			AddRow(3, "third"))
	mock.ExpectQuery("SELECT `j`.`post_id` AS `_fk`, `tag`.`id`, `tag`.`name`" +
		" FROM `post_tags` AS `j`" +
		" JOIN `tags` AS `tag` ON `j`.`tag_id` = `tag`.`id`" +
		" WHERE `j`.`post_id` IN (?, ?, ?)").
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"_fk", "id", "name"}).
			AddRow(1, 10, "go").
			AddRow(1, 11, "db").
			AddRow(2, 10, "go"))

	recs, err := c.Find(context.Background(), NewQuery("Post").Select("id", "title").With("tags"))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	tags := recs[0]["tags"].([]any)
	require.Len(t, tags, 2)
	first := tags[0].(Record)
	assert.Equal(t, int64(10), first["id"])
	assert.Equal(t, "go", first["name"])
	assert.NotContains(t, first, "_fk")

	assert.Len(t, recs[1]["tags"].([]any), 1)
	// Owners without related rows get an empty slice, not nil.
	assert.Equal(t, []any{}, recs[2]["tags"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindWithReverse(t *testing.T) {
	c, mock := mockClient(t, dialect.MySQL)
	mock.ExpectQuery("SELECT `user`.`id`, `user`.`name` FROM `users` AS `user`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "bob"))
	// The inverse key column correlates and is stripped from the
	// attached rows.
	mock.ExpectQuery("SELECT `post`.`author` AS `_fk`, `post`.`id`, `post`.`title`, `post`.`views`" +
		" FROM `posts` AS `post`" +
		" WHERE `post`.`author` IN (?)").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"_fk", "id", "title", "views"}).
			AddRow(7, 1, "first", 3).
			AddRow(7, 2, "second", 0))

	recs, err := c.Find(context.Background(), NewQuery("User").Select("id", "name").With("posts"))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	posts := recs[0]["posts"].([]any)
	require.Len(t, posts, 2)
	post := posts[0].(Record)
	assert.Equal(t, "first", post["title"])
	assert.NotContains(t, post, "_fk")
	assert.NotContains(t, post, "author")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindWithListField(t *testing.T) {
	c, mock := mockClient(t, dialect.MySQL)
	mock.ExpectQuery("SELECT `post`.`id` FROM `posts` AS `post`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectQuery("SELECT `post_id` AS `_fk`, `value` FROM `post_keywords_list` WHERE `post_id` IN (?, ?)").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"_fk", "value"}).
			AddRow(1, "go").
			AddRow(1, "sql"))

	recs, err := c.Find(context.Background(), NewQuery("Post").Select("id", "keywords"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []any{"go", "sql"}, recs[0]["keywords"])
	assert.Equal(t, []any{}, recs[1]["keywords"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFanoutSkippedWithoutKeys(t *testing.T) {
	// When the projection excludes the primary key there is nothing to
	// correlate on; the relation initializes empty and no secondary
	// query runs.
	c, mock := mockClient(t, dialect.MySQL)
	mock.ExpectQuery("SELECT `post`.`title` FROM `posts` AS `post`").
		WillReturnRows(sqlmock.NewRows([]string{"title"}).AddRow("first"))

	recs, err := c.Find(context.Background(), NewQuery("Post").Select("title").With("tags"))
	require.NoError(t, err)
	assert.Equal(t, []any{}, recs[0]["tags"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOne(t *testing.T) {
	c, mock := mockClient(t, dialect.MySQL)
	mock.ExpectQuery("SELECT `tag`.`id`, `tag`.`name` FROM `tags` AS `tag` WHERE (`tag`.`id` = ?)").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := c.FindOne(context.Background(), NewQuery("Tag").Filter(EQ("id", 99)))
	assert.True(t, IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID(t *testing.T) {
	c, mock := mockClient(t, dialect.MySQL)
	mock.ExpectQuery("SELECT `tag`.`id`, `tag`.`name` FROM `tags` AS `tag` WHERE (`tag`.`id` = ?)").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(10, "go"))

	rec, err := c.FindByID(context.Background(), "Tag", 10)
	require.NoError(t, err)
	assert.Equal(t, "go", rec["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPage(t *testing.T) {
	c, mock := mockClient(t, dialect.MySQL)
	mock.ExpectQuery("SELECT `tag`.`id`, `tag`.`name` FROM `tags` AS `tag` ORDER BY `tag`.`id` ASC LIMIT 2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "go").AddRow(2, "db"))
	mock.ExpectQuery("SELECT COUNT(*) AS `total` FROM `tags` AS `tag`").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(41))

	page, err := c.FindPage(context.Background(), NewQuery("Tag").Paginate(1, 2))
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 41, page.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}
