package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mercadia/salesgoals/internal/audit"
	"github.com/mercadia/salesgoals/internal/models"
	"github.com/mercadia/salesgoals/internal/repository"
)

var testActor = models.Actor{ID: "admin-1", Name: "Admin"}

func newTestLedger(t *testing.T) (LedgerService, *repository.InMemoryGoalRepository) {
	t.Helper()
	repo := repository.NewInMemoryGoalRepository()
	notifier := audit.NewNotifier(audit.NewZapSink(zaptest.NewLogger(t)))
	ledger := NewLedgerService(repo, notifier, zaptest.NewLogger(t))
	require.NoError(t, ledger.Load(context.Background()))
	return ledger, repo
}

func goalInput(userID string, month, year int, target int64, pct float64) *models.GoalCreate {
	return &models.GoalCreate{
		UserID:               userID,
		UserName:             "User " + userID,
		UserEmail:            userID + "@example.com",
		Month:                month,
		Year:                 year,
		TargetAmount:         decimal.NewFromInt(target),
		CommissionPercentage: pct,
	}
}

func TestAddGoal_RejectsDuplicatePeriod(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 1000, 5))
	require.NoError(t, err)

	_, err = ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 2000, 10))
	assert.ErrorIs(t, err, models.ErrDuplicateGoal)

	// тот же пользователь, другой период - можно
	_, err = ledger.AddGoal(ctx, testActor, goalInput("u1", 7, 2024, 2000, 10))
	assert.NoError(t, err)
}

func TestAddGoal_FuturePeriodIsPending(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	future, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 1, 2031, 1000, 5))
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusPending, future.Status)

	now := time.Now()
	current, err := ledger.AddGoal(ctx, testActor, goalInput("u2", int(now.Month()), now.Year(), 1000, 5))
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusActive, current.Status)
}

func TestAddGoal_Validation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input *models.GoalCreate
		want  error
	}{
		{"zero target", goalInput("u1", 6, 2024, 0, 5), models.ErrInvalidAmount},
		{"percentage above 100", goalInput("u1", 6, 2024, 1000, 101), models.ErrInvalidPercentage},
		{"negative percentage", goalInput("u1", 6, 2024, 1000, -1), models.ErrInvalidPercentage},
		{"month out of range", goalInput("u1", 13, 2024, 1000, 5), models.ErrInvalidPeriod},
		{"self creation", goalInput(testActor.ID, 6, 2024, 1000, 5), models.ErrSelfCreation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.AddGoal(ctx, testActor, tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAddGoal_StartsAtZeroAndDerivesAccessCode(t *testing.T) {
	ledger, _ := newTestLedger(t)

	goal, err := ledger.AddGoal(context.Background(), testActor, goalInput("u1-very-long-identifier", 6, 2024, 1000, 5))
	require.NoError(t, err)

	assert.True(t, goal.CurrentAmount.IsZero())
	assert.Equal(t, "u1-very-", goal.AccessCode)
	assert.Equal(t, testActor.ID, goal.CreatedBy)
}

func TestRecordSale_AutoCompletesOnTarget(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	goal, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 1000, 5))
	require.NoError(t, err)
	require.Equal(t, models.GoalStatusActive, goal.Status)

	updated, err := ledger.RecordSale(ctx, testActor, goal.ID, decimal.NewFromInt(1000))
	require.NoError(t, err)

	assert.Equal(t, models.GoalStatusCompleted, updated.Status)
	assert.True(t, updated.CurrentAmount.Equal(decimal.NewFromInt(1000)))
}

func TestRecordSale_RejectsNonPositiveAmount(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	goal, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 1000, 5))
	require.NoError(t, err)

	_, err = ledger.RecordSale(ctx, testActor, goal.ID, decimal.Zero)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = ledger.RecordSale(ctx, testActor, goal.ID, decimal.NewFromInt(-10))
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	got, err := ledger.GetGoalByID(goal.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.IsZero())
}

func TestRecordSale_ConcurrentIncrementsAllReflected(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	goal, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 100000, 5))
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.RecordSale(ctx, testActor, goal.ID, decimal.NewFromInt(10))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := ledger.GetGoalByID(goal.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(decimal.NewFromInt(workers*10)),
		"expected %d, got %s", workers*10, got.CurrentAmount)
}

func TestUpdateGoal_MergesOnlyDefinedFields(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	goal, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 1000, 5))
	require.NoError(t, err)

	newTarget := decimal.NewFromInt(2000)
	updated, err := ledger.UpdateGoal(ctx, testActor, goal.ID, &models.GoalUpdate{TargetAmount: &newTarget})
	require.NoError(t, err)

	assert.True(t, updated.TargetAmount.Equal(newTarget))
	assert.Equal(t, goal.UserName, updated.UserName)
	assert.Equal(t, goal.CommissionPercentage, updated.CommissionPercentage)
	assert.False(t, updated.UpdatedAt.Before(goal.UpdatedAt))
}

func TestUpdateGoal_Validation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	goal, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 1000, 5))
	require.NoError(t, err)

	bad := decimal.NewFromInt(-1)
	_, err = ledger.UpdateGoal(ctx, testActor, goal.ID, &models.GoalUpdate{CurrentAmount: &bad})
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	pct := 150.0
	_, err = ledger.UpdateGoal(ctx, testActor, goal.ID, &models.GoalUpdate{CommissionPercentage: &pct})
	assert.ErrorIs(t, err, models.ErrInvalidPercentage)
}

func TestDeleteGoal_RemovesFromProjectionAndStore(t *testing.T) {
	ledger, repo := newTestLedger(t)
	ctx := context.Background()

	goal, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 1000, 5))
	require.NoError(t, err)

	require.NoError(t, ledger.DeleteGoal(ctx, testActor, goal.ID))

	_, err = ledger.GetGoalByID(goal.ID)
	assert.ErrorIs(t, err, models.ErrGoalNotFound)
	_, err = repo.GetByID(ctx, goal.ID)
	assert.ErrorIs(t, err, models.ErrGoalNotFound)

	// новая цель на освободившийся период снова разрешена
	_, err = ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 500, 5))
	assert.NoError(t, err)
}

func TestGetFilteredGoals(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.AddGoal(ctx, testActor, goalInput("alice", 6, 2024, 1000, 5))
	require.NoError(t, err)
	_, err = ledger.AddGoal(ctx, testActor, goalInput("bob", 6, 2024, 1000, 5))
	require.NoError(t, err)
	_, err = ledger.AddGoal(ctx, testActor, goalInput("alice", 7, 2024, 1000, 5))
	require.NoError(t, err)

	assert.Len(t, ledger.GetFilteredGoals(models.GoalFilter{UserID: "alice"}), 2)
	assert.Len(t, ledger.GetFilteredGoals(models.GoalFilter{Month: 6, Year: 2024}), 2)
	assert.Len(t, ledger.GetFilteredGoals(models.GoalFilter{Search: "BOB"}), 1)
	assert.Len(t, ledger.GetFilteredGoals(models.GoalFilter{Status: models.GoalStatusActive}), 3)
	assert.Empty(t, ledger.GetFilteredGoals(models.GoalFilter{Month: 8, Year: 2024}))
}

func TestGetFilteredGoals_MostRecentFirst(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.AddGoal(ctx, testActor, goalInput("alice", 6, 2024, 1000, 5))
	require.NoError(t, err)
	second, err := ledger.AddGoal(ctx, testActor, goalInput("bob", 6, 2024, 1000, 5))
	require.NoError(t, err)

	goals := ledger.GetGoals()
	require.Len(t, goals, 2)
	assert.Equal(t, second.ID, goals[0].ID)
	assert.Equal(t, first.ID, goals[1].ID)
}

func TestGetGoalsByAccessCode_DualLookup(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.AddGoal(ctx, testActor, goalInput("abcdefgh-1234", 6, 2024, 1000, 5))
	require.NoError(t, err)
	_, err = ledger.AddGoal(ctx, testActor, goalInput("abcdefgh-1234", 7, 2024, 1000, 5))
	require.NoError(t, err)
	_, err = ledger.AddGoal(ctx, testActor, goalInput("zzzzzzzz-9999", 6, 2024, 1000, 5))
	require.NoError(t, err)

	// точное совпадение access code
	assert.Len(t, ledger.GetGoalsByAccessCode("abcdefgh", 0, 0), 2)
	// более длинный префикс userID тоже матчится
	assert.Len(t, ledger.GetGoalsByAccessCode("abcdefgh-12", 0, 0), 2)
	// сужение по периоду
	assert.Len(t, ledger.GetGoalsByAccessCode("abcdefgh", 6, 2024), 1)
	assert.Empty(t, ledger.GetGoalsByAccessCode("nomatch", 0, 0))
}

func TestSubscribe_ReceivesProjectionOnChange(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	ch := ledger.Subscribe(ctx)

	_, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 1000, 5))
	require.NoError(t, err)

	select {
	case snapshot := <-ch:
		assert.Len(t, snapshot, 1)
	case <-time.After(time.Second):
		t.Fatal("no projection update received")
	}
}

func TestSubscribe_CancelRemovesSubscriber(t *testing.T) {
	ledger, _ := newTestLedger(t)
	subCtx, cancel := context.WithCancel(context.Background())

	ch := ledger.Subscribe(subCtx)
	cancel()

	// канал закрывается после отмены
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// и подписчик удален, publish больше никого не держит
	s := ledger.(*ledgerService)
	assert.Eventually(t, func() bool {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		return len(s.subs) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestUpdateGoal_StatusFollowsMachineEdges(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	goal, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 1000, 5))
	require.NoError(t, err)
	require.Equal(t, models.GoalStatusActive, goal.Status)

	// active -> pending не является ребром машины
	pending := models.GoalStatusPending
	_, err = ledger.UpdateGoal(ctx, testActor, goal.ID, &models.GoalUpdate{Status: &pending})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	// мусорное значение тоже не проходит
	garbage := models.GoalStatus("banana")
	_, err = ledger.UpdateGoal(ctx, testActor, goal.ID, &models.GoalUpdate{Status: &garbage})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	// цель осталась нетронутой
	got, err := ledger.GetGoalByID(goal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusActive, got.Status)

	// допустимое ребро через редактирование проходит
	completed := models.GoalStatusCompleted
	updated, err := ledger.UpdateGoal(ctx, testActor, goal.ID, &models.GoalUpdate{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusCompleted, updated.Status)

	// и обратно через reopen-ребро completed -> active
	active := models.GoalStatusActive
	updated, err = ledger.UpdateGoal(ctx, testActor, goal.ID, &models.GoalUpdate{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusActive, updated.Status)
}

func TestTransitionGoal_RejectsIllegalEdge(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	goal, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 1000, 5))
	require.NoError(t, err)

	_, err = ledger.TransitionGoal(ctx, goal.ID, models.GoalStatusCompleted, models.GoalStatusPending)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestGetGoalsByAccessCode_EmptyCodeMatchesNothing(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.AddGoal(ctx, testActor, goalInput("u1", 6, 2024, 1000, 5))
	require.NoError(t, err)

	assert.Empty(t, ledger.GetGoalsByAccessCode("", 0, 0))
}

func TestLoad_ReplacesProjectionFromStore(t *testing.T) {
	repo := repository.NewInMemoryGoalRepository()
	ctx := context.Background()

	seeded := &models.Goal{
		ID: uuid.New(), UserID: "u1", AccessCode: "u1", UserName: "User u1",
		Month: 6, Year: 2024,
		TargetAmount: decimal.NewFromInt(1000), CurrentAmount: decimal.NewFromInt(300),
		Status: models.GoalStatusActive, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, seeded))

	ledger := NewLedgerService(repo, audit.NewNotifier(nil), zaptest.NewLogger(t))
	require.NoError(t, ledger.Load(ctx))

	got, err := ledger.GetGoalByID(seeded.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(decimal.NewFromInt(300)))
}
