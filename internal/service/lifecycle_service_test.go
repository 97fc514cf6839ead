package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mercadia/salesgoals/internal/audit"
	"github.com/mercadia/salesgoals/internal/models"
	"github.com/mercadia/salesgoals/internal/repository"
)

func newTestLifecycle(t *testing.T) (LifecycleService, LedgerService, *repository.InMemoryGoalRepository) {
	t.Helper()
	repo := repository.NewInMemoryGoalRepository()
	notifier := audit.NewNotifier(audit.NewZapSink(zaptest.NewLogger(t)))
	ledger := NewLedgerService(repo, notifier, zaptest.NewLogger(t))
	require.NoError(t, ledger.Load(context.Background()))

	lifecycle := NewLifecycleService(ledger, notifier, zaptest.NewLogger(t), LifecycleOptions{})
	return lifecycle, ledger, repo
}

func seedActiveGoal(t *testing.T, ledger LedgerService, userID string, month, year int) *models.Goal {
	t.Helper()
	goal, err := ledger.AddGoal(context.Background(), testActor, goalInput(userID, month, year, 1000, 10))
	require.NoError(t, err)
	require.Equal(t, models.GoalStatusActive, goal.Status)
	return goal
}

func TestCanClose(t *testing.T) {
	lifecycle, _, _ := newTestLifecycle(t)
	now := time.Now()

	assert.True(t, lifecycle.CanClose(6, 2024), "elapsed period")
	assert.True(t, lifecycle.CanClose(int(now.Month()), now.Year()), "current period past its start")
	assert.False(t, lifecycle.CanClose(1, 2031), "future period")
	assert.False(t, lifecycle.CanClose(13, 2024), "invalid month")
}

func TestCloseMonth_CompletesActiveGoals(t *testing.T) {
	lifecycle, ledger, _ := newTestLifecycle(t)
	ctx := context.Background()

	g1 := seedActiveGoal(t, ledger, "u1", 6, 2024)
	g2 := seedActiveGoal(t, ledger, "u2", 6, 2024)
	other := seedActiveGoal(t, ledger, "u1", 7, 2024)

	require.NoError(t, lifecycle.CloseMonth(ctx, testActor, 6, 2024))

	for _, id := range []uuid.UUID{g1.ID, g2.ID} {
		got, err := ledger.GetGoalByID(id)
		require.NoError(t, err)
		assert.Equal(t, models.GoalStatusCompleted, got.Status)
	}

	// цели других периодов не тронуты
	got, err := ledger.GetGoalByID(other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusActive, got.Status)
}

func TestCloseMonth_Idempotent(t *testing.T) {
	lifecycle, ledger, _ := newTestLifecycle(t)
	ctx := context.Background()

	goal := seedActiveGoal(t, ledger, "u1", 6, 2024)

	require.NoError(t, lifecycle.CloseMonth(ctx, testActor, 6, 2024))
	first, err := ledger.GetGoalByID(goal.ID)
	require.NoError(t, err)

	// второе закрытие - no-op, а не ошибка
	require.NoError(t, lifecycle.CloseMonth(ctx, testActor, 6, 2024))
	second, err := ledger.GetGoalByID(goal.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestCloseMonth_RejectsUnstartedPeriod(t *testing.T) {
	lifecycle, _, _ := newTestLifecycle(t)

	err := lifecycle.CloseMonth(context.Background(), testActor, 1, 2031)
	assert.ErrorIs(t, err, models.ErrPeriodNotStarted)
}

func TestCloseMonth_PartialFailure(t *testing.T) {
	lifecycle, ledger, repo := newTestLifecycle(t)
	ctx := context.Background()

	seedActiveGoal(t, ledger, "u1", 6, 2024)
	seedActiveGoal(t, ledger, "u2", 6, 2024)

	repo.FailNext = 1
	err := lifecycle.CloseMonth(ctx, testActor, 6, 2024)

	var partial *models.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Len(t, partial.FailedIDs, 1)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	// сохранившаяся цель остается в новом состоянии; на повтор
	// вызывающему уходит только неудавшаяся
	completed := ledger.GetFilteredGoals(models.GoalFilter{Month: 6, Year: 2024, Status: models.GoalStatusCompleted})
	assert.Len(t, completed, 1)
}

func TestReopenMonth_RequiresConfirmation(t *testing.T) {
	lifecycle, ledger, _ := newTestLifecycle(t)
	ctx := context.Background()

	goal := seedActiveGoal(t, ledger, "u1", 6, 2024)
	require.NoError(t, lifecycle.CloseMonth(ctx, testActor, 6, 2024))

	err := lifecycle.ReopenMonth(ctx, testActor, 6, 2024, false)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	got, err := ledger.GetGoalByID(goal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusCompleted, got.Status)
}

func TestReopenMonth_ReturnsCompletedToActive(t *testing.T) {
	lifecycle, ledger, _ := newTestLifecycle(t)
	ctx := context.Background()

	goal := seedActiveGoal(t, ledger, "u1", 6, 2024)
	require.NoError(t, lifecycle.CloseMonth(ctx, testActor, 6, 2024))

	require.NoError(t, lifecycle.ReopenMonth(ctx, testActor, 6, 2024, true))

	got, err := ledger.GetGoalByID(goal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusActive, got.Status)
}

func TestScheduler_InCloseWindow(t *testing.T) {
	lifecycle, _, _ := newTestLifecycle(t)
	s := lifecycle.(*lifecycleService)

	lastOfJune := time.Date(2025, 6, 30, 23, 55, 0, 0, time.UTC)
	assert.True(t, s.inCloseWindow(lastOfJune))
	assert.True(t, s.inCloseWindow(lastOfJune.Add(4*time.Minute)))
	assert.False(t, s.inCloseWindow(lastOfJune.Add(-time.Minute)), "before window minute")
	assert.False(t, s.inCloseWindow(time.Date(2025, 6, 29, 23, 56, 0, 0, time.UTC)), "not last day")
	assert.False(t, s.inCloseWindow(time.Date(2025, 6, 30, 22, 56, 0, 0, time.UTC)), "wrong hour")
	// февраль високосного года
	assert.True(t, s.inCloseWindow(time.Date(2024, 2, 29, 23, 57, 0, 0, time.UTC)))
}

func TestScheduler_AutoClosesCurrentPeriod(t *testing.T) {
	lifecycle, ledger, _ := newTestLifecycle(t)
	s := lifecycle.(*lifecycleService)
	s.now = func() time.Time { return time.Date(2025, 6, 30, 23, 56, 0, 0, time.UTC) }

	goal := seedActiveGoal(t, ledger, "u1", 6, 2025)

	s.checkAndClose()

	got, err := ledger.GetGoalByID(goal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusCompleted, got.Status)
}

func TestScheduler_OutsideWindowDoesNothing(t *testing.T) {
	lifecycle, ledger, _ := newTestLifecycle(t)
	s := lifecycle.(*lifecycleService)
	s.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	goal := seedActiveGoal(t, ledger, "u1", 6, 2025)

	s.checkAndClose()

	got, err := ledger.GetGoalByID(goal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusActive, got.Status)
}

func TestScheduler_StartStop(t *testing.T) {
	repo := repository.NewInMemoryGoalRepository()
	ledger := NewLedgerService(repo, audit.NewNotifier(nil), zaptest.NewLogger(t))
	require.NoError(t, ledger.Load(context.Background()))

	lifecycle := NewLifecycleService(ledger, audit.NewNotifier(nil), zaptest.NewLogger(t), LifecycleOptions{
		SchedulerEnabled:  true,
		SchedulerInterval: 10 * time.Millisecond,
	})

	lifecycle.Start()
	time.Sleep(30 * time.Millisecond)
	lifecycle.Stop()
	// повторный Stop безопасен
	lifecycle.Stop()
}
