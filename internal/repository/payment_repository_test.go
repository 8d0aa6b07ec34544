package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-market-api/internal/models"
)

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "item_type", "item_id", "amount", "payment_method", "external_transaction_id", "status", "paid_at", "cancelled_at"})
}

func TestPaymentRepositoryFindByIDForUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, item_type, item_id, amount, payment_method, external_transaction_id, status, paid_at, cancelled_at FROM payments WHERE id = $1 FOR UPDATE")).
		WithArgs("pay-1").
		WillReturnRows(paymentRows().AddRow("pay-1", "user-1", "test", "item-1", "50000", "kakaopay", "KAKAO_user-1_item-1", "paid", time.Now(), nil))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	payment, err := repo.FindByIDForUpdateTx(context.Background(), tx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(50_000)))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreateTxDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	payment := &models.Payment{
		UserID:        "user-1",
		ItemType:      models.ItemTypeTest,
		ItemID:        "item-1",
		Amount:        decimal.NewFromInt(50_000),
		PaymentMethod: models.PaymentMethodKakaoPay,
	}
	require.NoError(t, repo.CreateTx(context.Background(), tx, payment))
	require.NoError(t, tx.Commit())

	assert.NotEmpty(t, payment.ID)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)
	assert.False(t, payment.PaidAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCancelTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	cancelledAt := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status = $2, cancelled_at = $3 WHERE id = $1")).
		WithArgs("pay-1", models.PaymentStatusCancelled, cancelledAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.CancelTx(context.Background(), tx, "pay-1", cancelledAt))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryListByUserFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery("SELECT id, user_id, item_type, item_id, amount, payment_method, external_transaction_id, status, paid_at, cancelled_at FROM payments WHERE user_id = .+ AND status = .+ AND item_type = .+ ORDER BY paid_at DESC").
		WithArgs("user-1", models.PaymentStatusPaid, models.ItemTypeTest).
		WillReturnRows(paymentRows().AddRow("pay-1", "user-1", "test", "item-1", "50000", "kakaopay", "KAKAO_user-1_item-1", "paid", time.Now(), nil))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payments WHERE user_id = .+ AND status = .+ AND item_type = .+").
		WithArgs("user-1", models.PaymentStatusPaid, models.ItemTypeTest).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	payments, total, err := repo.ListByUser(context.Background(), "user-1", models.PaymentFilter{
		Status:   models.PaymentStatusPaid,
		ItemType: models.ItemTypeTest,
	})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryListAllByUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, item_type, item_id, amount, payment_method, external_transaction_id, status, paid_at, cancelled_at FROM payments WHERE user_id = $1 ORDER BY paid_at DESC")).
		WithArgs("user-1").
		WillReturnRows(paymentRows().
			AddRow("pay-2", "user-1", "course", "item-2", "90000", "card", "CARD_user-1_item-2", "paid", time.Now(), nil).
			AddRow("pay-1", "user-1", "test", "item-1", "50000", "kakaopay", "KAKAO_user-1_item-1", "paid", time.Now().Add(-time.Hour), nil))

	payments, err := repo.ListAllByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "pay-2", payments[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
