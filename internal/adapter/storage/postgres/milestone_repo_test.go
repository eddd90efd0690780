package postgres

import (
	"context"
	"testing"
	"time"

	"referral-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func milestoneCols() []string {
	return []string{"id", "user_id", "level", "target", "reward", "claimed", "claimed_at", "created_at"}
}

func TestMilestoneRepo_Create(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"inserted", 1, true},
		{"level already exists", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, tx := beginTx(t)
			repo := NewMilestoneRepo(mock)
			m := domain.NewMilestone(uuid.New(), domain.DefaultMilestoneLadder[0])

			mock.ExpectExec("INSERT INTO milestones .+ ON CONFLICT \\(user_id, level\\) DO NOTHING").
				WithArgs(m.ID, m.UserID, m.Level, m.Target, m.Reward, m.Claimed, m.ClaimedAt, m.CreatedAt).
				WillReturnResult(pgxmock.NewResult("INSERT", tt.affected))

			ok, err := repo.Create(context.Background(), tx, m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestMilestoneRepo_GetByIDForUpdate(t *testing.T) {
	mock, tx := beginTx(t)
	repo := NewMilestoneRepo(mock)
	id, userID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT .+ FROM milestones WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(milestoneCols()).
			AddRow(id, userID, 2, 10, "25", false, nil, time.Now().UTC()))

	m, err := repo.GetByIDForUpdate(context.Background(), tx, id)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 2, m.Level)
	assert.True(t, m.Reward.Equal(decimal.NewFromInt(25)))
	assert.Nil(t, m.ClaimedAt)

	mock.ExpectQuery("SELECT .+ FROM milestones").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	m, err = repo.GetByIDForUpdate(context.Background(), tx, id)
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestMilestoneRepo_MarkClaimed(t *testing.T) {
	mock, tx := beginTx(t)
	repo := NewMilestoneRepo(mock)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE milestones SET claimed = TRUE .+ AND claimed = FALSE").
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := repo.MarkClaimed(context.Background(), tx, id, at)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE milestones").
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = repo.MarkClaimed(context.Background(), tx, id, at)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMilestoneRepo_ListByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMilestoneRepo(mock)
	userID := uuid.New()
	claimedAt := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM milestones WHERE user_id").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows(milestoneCols()).
			AddRow(uuid.New(), userID, 1, 5, "10", true, &claimedAt, claimedAt).
			AddRow(uuid.New(), userID, 2, 10, "25", false, nil, claimedAt))

	list, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Claimed)
	assert.False(t, list[1].Claimed)
}
