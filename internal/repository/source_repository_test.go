package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestSourceRepository_Create(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	repo := NewSourceRepository(sqlxDB)

	source := &models.Source{
		Title:        "Engineering Handbook",
		Kind:         models.SourceKindUpload,
		EnabledKinds: []string{"prose", "code"},
	}

	mock.ExpectExec("INSERT INTO sources").
		WithArgs(
			sqlmock.AnyArg(), source.Title, source.Kind, models.SourceStatusPending,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), source)
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, source.ID)
	assert.Equal(t, models.SourceStatusPending, source.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceRepository_Get_NotFound(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	repo := NewSourceRepository(sqlxDB)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM sources").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSourceRepository_Get(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	repo := NewSourceRepository(sqlxDB)

	id := uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "title", "kind", "status", "collection_names", "enabled_kinds",
	}).AddRow(id, "Docs", "upload", "completed", []byte(`{"prose":"docs_prose"}`), "{prose}")

	mock.ExpectQuery("SELECT (.+) FROM sources").
		WithArgs(id).
		WillReturnRows(rows)

	source, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Docs", source.Title)
	assert.Equal(t, "docs_prose", source.CollectionNames[models.ContentKindProse])
	assert.True(t, source.KindEnabled(models.ContentKindProse))
	assert.False(t, source.KindEnabled(models.ContentKindCode))
}

func TestSourceRepository_SetCollectionName(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	repo := NewSourceRepository(sqlxDB)

	id := uuid.New()
	mock.ExpectExec("UPDATE sources").
		WithArgs("code", "handbook_code", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetCollectionName(context.Background(), id, models.ContentKindCode, "handbook_code")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceRepository_CollectionNameTaken(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	repo := NewSourceRepository(sqlxDB)

	id := uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("handbook_prose", id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := repo.CollectionNameTaken(context.Background(), "handbook_prose", id)
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestSourceRepository_Delete_NotFound(t *testing.T) {
	sqlxDB, mock := newMockDB(t)
	repo := NewSourceRepository(sqlxDB)

	id := uuid.New()
	mock.ExpectExec("DELETE FROM sources").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}
