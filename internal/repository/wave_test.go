package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"wavely/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaveRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewWaveRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "user_id", "title", "wave_type", "version", "comments", "comments_list"}).
			AddRow(5, 1, "Frieren ep 12", models.WaveTypeCommunity, 3, 1,
				`[{"id":"c1","user_id":2,"content":"so good","timestamp":"2026-01-01T00:00:00Z","likes":[]}]`)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "waves" WHERE "waves"."id" = $1 ORDER BY "waves"."id" LIMIT $2`)).
			WithArgs(5, 1).
			WillReturnRows(rows)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wave_likes" WHERE wave_id IN ($1) ORDER BY created_at`)).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"wave_id", "user_id"}).AddRow(5, 2).AddRow(5, 3))

		wave, err := repo.GetByID(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(3), wave.Version)
		require.Len(t, wave.CommentsList, 1)
		assert.Equal(t, "so good", wave.CommentsList[0].Content)
		assert.Equal(t, []uint{2, 3}, wave.LikedBy)
		assert.Equal(t, 2, wave.Likes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "waves" WHERE "waves"."id" = $1`)).
			WithArgs(99, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetByID(ctx, 99)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeNotFound, appErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWaveRepository_ReplaceDocument(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewWaveRepository(db)
	ctx := context.Background()

	t.Run("Version matches", func(t *testing.T) {
		wave := &models.Wave{ID: 5, UserID: 1, Title: "t", Version: 3}
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "waves" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.ReplaceDocument(ctx, wave, 3))
		assert.Equal(t, int64(4), wave.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Stale version", func(t *testing.T) {
		wave := &models.Wave{ID: 5, UserID: 1, Title: "t", Version: 3}
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "waves" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.ReplaceDocument(ctx, wave, 3)
		assert.ErrorIs(t, err, ErrVersionConflict)
		assert.Equal(t, int64(3), wave.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Driver error", func(t *testing.T) {
		wave := &models.Wave{ID: 5, Version: 3}
		boom := errors.New("connection reset")
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "waves" SET`)).WillReturnError(boom)
		mock.ExpectRollback()

		err := repo.ReplaceDocument(ctx, wave, 3)
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWaveRepository_ToggleLike(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewWaveRepository(db)
	ctx := context.Background()

	t.Run("Like", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "waves" WHERE id = $1`)).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO wave_likes`)).
			WithArgs(5, 2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "wave_likes" WHERE wave_id = $1`)).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE waves SET likes = $1 WHERE id = $2`)).
			WithArgs(4, 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		liked, likes, err := repo.ToggleLike(ctx, 5, 2)
		require.NoError(t, err)
		assert.True(t, liked)
		assert.Equal(t, 4, likes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unlike", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "waves" WHERE id = $1`)).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO wave_likes`)).
			WithArgs(5, 2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM wave_likes WHERE wave_id = $1 AND user_id = $2`)).
			WithArgs(5, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "wave_likes" WHERE wave_id = $1`)).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE waves SET likes = $1 WHERE id = $2`)).
			WithArgs(3, 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		liked, likes, err := repo.ToggleLike(ctx, 5, 2)
		require.NoError(t, err)
		assert.False(t, liked)
		assert.Equal(t, 3, likes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing wave", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "waves" WHERE id = $1`)).
			WithArgs(8).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectRollback()

		_, _, err := repo.ToggleLike(ctx, 8, 2)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeNotFound, appErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWaveRepository_List(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewWaveRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "waves" WHERE wave_type = $1 AND user_id IN ($2,$3) ORDER BY created_at DESC, id DESC LIMIT $4`)).
		WithArgs(models.WaveTypeCommunity, 2, 3, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}).
			AddRow(9, 2, now).
			AddRow(8, 3, now.Add(-time.Minute)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wave_likes" WHERE wave_id IN ($1,$2)`)).
		WithArgs(9, 8).
		WillReturnRows(sqlmock.NewRows([]string{"wave_id", "user_id"}))

	waves, err := repo.List(context.Background(), models.FeedQuery{
		WaveType:  models.WaveTypeCommunity,
		AuthorIDs: []uint{2, 3},
	})
	require.NoError(t, err)
	require.Len(t, waves, 2)
	assert.Equal(t, uint(9), waves[0].ID)
	assert.Empty(t, waves[0].LikedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClampPage(t *testing.T) {
	l, o := clampPage(0, -5)
	assert.Equal(t, defaultPageSize, l)
	assert.Equal(t, 0, o)
	l, _ = clampPage(1000, 0)
	assert.Equal(t, maxPageSize, l)
}
