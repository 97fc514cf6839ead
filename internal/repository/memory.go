package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mercadia/salesgoals/internal/models"
	"github.com/shopspring/decimal"
)

// InMemoryGoalRepository - GoalRepository на map, используется в тестах
// и при локальном запуске без Postgres. Нотификации об изменениях идут
// через тот же контракт Watch что и у pgx-реализации
type InMemoryGoalRepository struct {
	mu          sync.Mutex
	goals       map[uuid.UUID]*models.Goal
	subscribers []chan struct{}

	// FailNext валит следующие n мутаций с ErrStoreUnavailable.
	// Тестовый хук для путей частичного сбоя
	FailNext int
}

func NewInMemoryGoalRepository() *InMemoryGoalRepository {
	return &InMemoryGoalRepository{goals: map[uuid.UUID]*models.Goal{}}
}

func (r *InMemoryGoalRepository) failing() bool {
	if r.FailNext > 0 {
		r.FailNext--
		return true
	}
	return false
}

func (r *InMemoryGoalRepository) notify() {
	for _, ch := range r.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (r *InMemoryGoalRepository) Create(ctx context.Context, goal *models.Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing() {
		return models.ErrStoreUnavailable
	}
	g := *goal
	r.goals[g.ID] = &g
	r.notify()
	return nil
}

func (r *InMemoryGoalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.goals[id]
	if !ok {
		return nil, models.ErrGoalNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *InMemoryGoalRepository) List(ctx context.Context) ([]models.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	goals := make([]models.Goal, 0, len(r.goals))
	for _, g := range r.goals {
		goals = append(goals, *g)
	}
	sort.Slice(goals, func(i, j int) bool {
		return goals[i].CreatedAt.After(goals[j].CreatedAt)
	})
	return goals, nil
}

func (r *InMemoryGoalRepository) Update(ctx context.Context, id uuid.UUID, update *models.GoalUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing() {
		return models.ErrStoreUnavailable
	}
	g, ok := r.goals[id]
	if !ok {
		return models.ErrGoalNotFound
	}
	if update.UserName != nil {
		g.UserName = *update.UserName
	}
	if update.UserEmail != nil {
		g.UserEmail = *update.UserEmail
	}
	if update.TargetAmount != nil {
		g.TargetAmount = *update.TargetAmount
	}
	if update.CurrentAmount != nil {
		g.CurrentAmount = *update.CurrentAmount
	}
	if update.CommissionPercentage != nil {
		g.CommissionPercentage = *update.CommissionPercentage
	}
	if update.Status != nil {
		g.Status = *update.Status
	}
	g.UpdatedAt = time.Now()
	r.notify()
	return nil
}

func (r *InMemoryGoalRepository) AddAmount(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (*models.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing() {
		return nil, models.ErrStoreUnavailable
	}
	g, ok := r.goals[id]
	if !ok {
		return nil, models.ErrGoalNotFound
	}
	g.CurrentAmount = g.CurrentAmount.Add(delta)
	if g.Status == models.GoalStatusActive && g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount) {
		g.Status = models.GoalStatusCompleted
	}
	g.UpdatedAt = time.Now()
	r.notify()
	cp := *g
	return &cp, nil
}

func (r *InMemoryGoalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.GoalStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing() {
		return false, models.ErrStoreUnavailable
	}
	g, ok := r.goals[id]
	if !ok || g.Status != from {
		return false, nil
	}
	g.Status = to
	g.UpdatedAt = time.Now()
	r.notify()
	return true, nil
}

func (r *InMemoryGoalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing() {
		return models.ErrStoreUnavailable
	}
	if _, ok := r.goals[id]; !ok {
		return models.ErrGoalNotFound
	}
	delete(r.goals, id)
	r.notify()
	return nil
}

func (r *InMemoryGoalRepository) Watch(ctx context.Context) (<-chan struct{}, error) {
	r.mu.Lock()
	ch := make(chan struct{}, 1)
	r.subscribers = append(r.subscribers, ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		for i, sub := range r.subscribers {
			if sub == ch {
				r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
