package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-market-api/internal/models"
)

func catalogRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "description", "price", "start_at", "end_at", "registration_count", "created_at", "updated_at", "is_registered"})
}

func TestCatalogRepositoryListWithRegistrationFlag(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	now := time.Now()
	mock.ExpectQuery("EXISTS\\(SELECT 1 FROM test_registrations r WHERE r\\.test_id = i\\.id AND r\\.user_id = \\$1\\) AS is_registered\\s+FROM tests i ORDER BY i\\.created_at DESC").
		WithArgs("user-1").
		WillReturnRows(catalogRows().
			AddRow("item-1", "TOEIC", "Mock exam", "50000", now, now.Add(time.Hour), 12, now, now, true).
			AddRow("item-2", "TOPIK", "Mock exam", "60000", now, now.Add(time.Hour), 3, now, now, false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM tests i")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	items, total, err := repo.List(context.Background(), "user-1", models.ItemTypeTest, models.CatalogFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 2, total)
	assert.True(t, items[0].IsRegistered)
	assert.False(t, items[1].IsRegistered)
	assert.Equal(t, 12, items[0].RegistrationCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryListPopularSort(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery("FROM courses i ORDER BY i\\.registration_count DESC, i\\.created_at DESC").
		WithArgs("user-1").
		WillReturnRows(catalogRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses i")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), "user-1", models.ItemTypeCourse, models.CatalogFilter{Sort: models.CatalogSortPopular})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryListAvailableFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery("WHERE i\\.start_at <= \\$1 AND i\\.end_at >= \\$1").
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnRows(catalogRows())
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tests i WHERE i\\.start_at <= \\$1 AND i\\.end_at >= \\$1").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), "user-1", models.ItemTypeTest, models.CatalogFilter{Status: "available"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryFindDetailByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM tests i WHERE i\\.id = \\$2").
		WithArgs("user-1", "item-1").
		WillReturnRows(catalogRows().AddRow("item-1", "TOEIC", "Mock exam", "50000", now, now.Add(time.Hour), 12, now, now, true))

	detail, err := repo.FindDetailByID(context.Background(), "user-1", models.ItemTypeTest, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", detail.ID)
	assert.True(t, detail.IsRegistered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryUpdateRegistrationCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET registration_count = $2 WHERE id = $1")).
		WithArgs("item-1", 9).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateRegistrationCount(context.Background(), models.ItemTypeCourse, "item-1", 9))
	require.NoError(t, mock.ExpectationsWereMet())
}
