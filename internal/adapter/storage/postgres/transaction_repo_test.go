package postgres

import (
	"context"
	"testing"
	"time"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txCols() []string {
	return []string{"id", "user_id", "type", "amount", "status", "details", "tx_hash", "notes", "created_at", "resolved_at"}
}

func newWithdrawal(userID uuid.UUID) *domain.Transaction {
	return &domain.Transaction{
		ID:     uuid.New(),
		UserID: userID,
		Type:   domain.TransactionTypeWithdrawal,
		Amount: decimal.NewFromInt(-50),
		Status: domain.TransactionStatusPending,
		Details: &domain.WithdrawalDetails{
			WalletAddress: "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8",
			Network:       domain.NetworkTRC20,
			Fee:           decimal.NewFromInt(1),
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, tx := beginTx(t)
	repo := NewTransactionRepo(mock)
	txn := newWithdrawal(uuid.New())

	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.UserID, txn.Type, txn.Amount, txn.Status,
			pgxmock.AnyArg(), txn.TxHash, txn.Notes, txn.CreatedAt, txn.ResolvedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), tx, txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Create_RejectsInvalid(t *testing.T) {
	mock, tx := beginTx(t)
	repo := NewTransactionRepo(mock)
	txn := newWithdrawal(uuid.New())
	txn.Amount = decimal.NewFromInt(50)

	err := repo.Create(context.Background(), tx, txn)
	assert.ErrorIs(t, err, domain.ErrAmountSign)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID_DecodesDetails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id, userID := uuid.New(), uuid.New()
	details := []byte(`{"wallet_address":"TJRabPrwbZy45sbavfcjinPJC18kjpRTv8","network":"TRC20","fee":"1"}`)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(txCols()).AddRow(
			id, userID, domain.TransactionTypeWithdrawal, "-50", domain.TransactionStatusPending,
			details, nil, nil, time.Now().UTC(), nil,
		))

	got, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsPendingWithdrawal())

	wd, ok := got.WithdrawalDetails()
	require.True(t, ok)
	assert.Equal(t, domain.NetworkTRC20, wd.Network)
	held, err := got.HeldAmount()
	require.NoError(t, err)
	assert.True(t, held.Equal(decimal.NewFromInt(51)))
}

func TestTransactionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransactionRepo_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"pending row resolved", 1, true},
		{"already terminal", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, tx := beginTx(t)
			repo := NewTransactionRepo(mock)
			id := uuid.New()
			hash := strPtr("0xabc")

			mock.ExpectExec("UPDATE transactions").
				WithArgs(id, domain.TransactionStatusCompleted, (*string)(nil), hash).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			ok, err := repo.Resolve(context.Background(), tx, id, domain.TransactionStatusCompleted, nil, hash)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransactionRepo_Resolve_NonTerminal(t *testing.T) {
	mock, tx := beginTx(t)
	repo := NewTransactionRepo(mock)

	_, err := repo.Resolve(context.Background(), tx, uuid.New(), domain.TransactionStatusPending, nil, nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	userID := uuid.New()
	status := domain.TransactionStatusCompleted
	commission := []byte(`{"level":1,"from_user_id":"` + uuid.NewString() + `","deposit_transaction_id":"` + uuid.NewString() + `","rate":"0.05"}`)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(userID, status).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	mock.ExpectQuery("SELECT .+ FROM transactions .+ LIMIT").
		WithArgs(userID, status, 100, 0).
		WillReturnRows(pgxmock.NewRows(txCols()).AddRow(
			uuid.New(), userID, domain.TransactionTypeReferralCommission, "5", status,
			commission, nil, nil, time.Now().UTC(), nil,
		))

	txns, total, err := repo.List(context.Background(), ports.TransactionListParams{
		UserID: &userID, Status: &status, Page: 0, PageSize: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txns, 1)
	cd, ok := txns[0].Details.(*domain.CommissionDetails)
	require.True(t, ok)
	assert.Equal(t, 1, cd.Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizePage(t *testing.T) {
	p, s := normalizePage(0, 0)
	assert.Equal(t, 1, p)
	assert.Equal(t, defaultPageSize, s)

	p, s = normalizePage(3, 1000)
	assert.Equal(t, 3, p)
	assert.Equal(t, maxPageSize, s)
}
