package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mercadia/salesgoals/internal/audit"
	"github.com/mercadia/salesgoals/internal/models"
	"github.com/mercadia/salesgoals/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerService - авторитетная in-memory проекция всех целей,
// поддерживается актуальной через change stream адаптера хранилища.
// Чтения идут из памяти; записи проходят через хранилище и
// перепубликуют проекцию.
type LedgerService interface {
	Load(ctx context.Context) error
	Run(ctx context.Context)
	Subscribe(ctx context.Context) <-chan []models.Goal

	AddGoal(ctx context.Context, actor models.Actor, input *models.GoalCreate) (*models.Goal, error)
	UpdateGoal(ctx context.Context, actor models.Actor, id uuid.UUID, update *models.GoalUpdate) (*models.Goal, error)
	DeleteGoal(ctx context.Context, actor models.Actor, id uuid.UUID) error
	RecordSale(ctx context.Context, actor models.Actor, id uuid.UUID, amount decimal.Decimal) (*models.Goal, error)

	// TransitionGoal двигает цель по одному ребру машины статусов.
	// No-op (цель сейчас не в from) - не ошибка.
	TransitionGoal(ctx context.Context, id uuid.UUID, from, to models.GoalStatus) (bool, error)

	GetGoals() []models.Goal
	GetGoalByID(id uuid.UUID) (*models.Goal, error)
	GetFilteredGoals(filter models.GoalFilter) []models.Goal
	GetGoalsByAccessCode(code string, month, year int) []models.Goal
}

type ledgerService struct {
	repo   repository.GoalRepository
	audit  *audit.Notifier
	logger *zap.Logger
	now    func() time.Time

	// writeMu сериализует мутации, чтобы проверка дубликата периода в
	// AddGoal была линеаризуемой. mu защищает саму проекцию; читатели
	// видят только полностью подмененный снапшот.
	writeMu sync.Mutex
	mu      sync.RWMutex
	goals   []models.Goal

	subMu sync.Mutex
	subs  []chan []models.Goal
}

func NewLedgerService(repo repository.GoalRepository, notifier *audit.Notifier, logger *zap.Logger) LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ledgerService{
		repo:   repo,
		audit:  notifier,
		logger: logger,
		now:    time.Now,
	}
}

// Load подменяет проекцию свежим снапшотом из хранилища
func (s *ledgerService) Load(ctx context.Context) error {
	goals, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.goals = goals
	s.mu.Unlock()
	s.publish()
	return nil
}

// Run читает change stream хранилища и перезагружает проекцию на каждый
// тик. Возвращается когда ctx закончился; ожидается что живет всю жизнь
// сервиса.
func (s *ledgerService) Run(ctx context.Context) {
	ch, err := s.repo.Watch(ctx)
	if err != nil {
		s.logger.Error("ledger: change stream unavailable", zap.Error(err))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := s.Load(ctx); err != nil {
				s.logger.Error("ledger: reload failed", zap.Error(err))
			}
		}
	}
}

// Subscribe возвращает канал, получающий полную проекцию после каждого
// изменения. Медленные потребители пропускают промежуточные снапшоты,
// но никогда не видят частичных. Отмена ctx снимает подписку и
// закрывает канал.
func (s *ledgerService) Subscribe(ctx context.Context) <-chan []models.Goal {
	ch := make(chan []models.Goal, 1)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		for i, sub := range s.subs {
			if sub == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		s.subMu.Unlock()
		close(ch)
	}()
	return ch
}

func (s *ledgerService) publish() {
	snapshot := s.GetGoals()
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (s *ledgerService) AddGoal(ctx context.Context, actor models.Actor, input *models.GoalCreate) (*models.Goal, error) {
	if !models.ValidPeriod(input.Month, input.Year) {
		return nil, models.ErrInvalidPeriod
	}
	if !input.TargetAmount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if input.CommissionPercentage < 0 || input.CommissionPercentage > 100 {
		return nil, models.ErrInvalidPercentage
	}
	if actor.ID != "" && actor.ID == input.UserID {
		return nil, models.ErrSelfCreation
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.hasGoalFor(input.UserID, input.Month, input.Year) {
		return nil, models.ErrDuplicateGoal
	}

	now := s.now()
	goal := &models.Goal{
		ID:                   uuid.New(),
		UserID:               input.UserID,
		AccessCode:           models.AccessCodeFor(input.UserID),
		UserName:             input.UserName,
		UserEmail:            input.UserEmail,
		Month:                input.Month,
		Year:                 input.Year,
		TargetAmount:         input.TargetAmount,
		CurrentAmount:        decimal.Zero,
		CommissionPercentage: input.CommissionPercentage,
		Status:               models.InitialStatus(input.Month, input.Year, now),
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Create(ctx, goal); err != nil {
		s.logger.Error("failed to create goal",
			zap.String("user_id", goal.UserID),
			zap.Int("month", goal.Month), zap.Int("year", goal.Year),
			zap.Error(err))
		return nil, err
	}

	// наблюдатели видят свежие цели первыми
	s.mu.Lock()
	s.goals = append([]models.Goal{*goal}, s.goals...)
	s.mu.Unlock()
	s.publish()

	s.logger.Info("goal created",
		zap.String("goal_id", goal.ID.String()),
		zap.String("user_id", goal.UserID),
		zap.Int("month", goal.Month), zap.Int("year", goal.Year),
		zap.String("status", string(goal.Status)))

	s.audit.Emit(audit.Event{
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Action:      audit.ActionCreate,
		EntityID:    goal.ID.String(),
		EntityLabel: goal.UserName,
		Detail:      fmt.Sprintf("goal %d/%d target %s", goal.Month, goal.Year, goal.TargetAmount.StringFixed(2)),
	})
	return goal, nil
}

func (s *ledgerService) UpdateGoal(ctx context.Context, actor models.Actor, id uuid.UUID, update *models.GoalUpdate) (*models.Goal, error) {
	if update.TargetAmount != nil && !update.TargetAmount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if update.CommissionPercentage != nil && (*update.CommissionPercentage < 0 || *update.CommissionPercentage > 100) {
		return nil, models.ErrInvalidPercentage
	}
	if update.CurrentAmount != nil && update.CurrentAmount.IsNegative() {
		return nil, models.ErrInvalidAmount
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// статус через частичное редактирование меняется только по
	// допустимому ребру; произвольные значения в машину не попадают
	if update.Status != nil {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !models.ValidTransition(current.Status, *update.Status) {
			return nil, models.ErrInvalidTransition
		}
	}

	if err := s.repo.Update(ctx, id, update); err != nil {
		return nil, err
	}
	goal, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.replaceInProjection(goal)

	s.audit.Emit(audit.Event{
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Action:      audit.ActionUpdate,
		EntityID:    goal.ID.String(),
		EntityLabel: goal.UserName,
		Detail:      fmt.Sprintf("goal %d/%d edited", goal.Month, goal.Year),
	})
	return goal, nil
}

func (s *ledgerService) DeleteGoal(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	goal, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	for i := range s.goals {
		if s.goals[i].ID == id {
			s.goals = append(s.goals[:i:i], s.goals[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.publish()

	s.audit.Emit(audit.Event{
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Action:      audit.ActionDelete,
		EntityID:    id.String(),
		EntityLabel: goal.UserName,
		Detail:      fmt.Sprintf("goal %d/%d deleted", goal.Month, goal.Year),
	})
	return nil
}

// RecordSale добавляет сумму к накопленным продажам цели. Инкремент
// атомарен на стороне хранилища, конкурентные вызовы по одной цели не
// теряют обновлений. Достижение цели в статусе active завершает ее тем
// же действием.
func (s *ledgerService) RecordSale(ctx context.Context, actor models.Actor, id uuid.UUID, amount decimal.Decimal) (*models.Goal, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	goal, err := s.repo.AddAmount(ctx, id, amount)
	if err != nil {
		return nil, err
	}
	s.replaceInProjection(goal)

	s.logger.Info("sale recorded",
		zap.String("goal_id", goal.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("current", goal.CurrentAmount.StringFixed(2)),
		zap.String("status", string(goal.Status)))

	s.audit.Emit(audit.Event{
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Action:      audit.ActionRecordSale,
		EntityID:    goal.ID.String(),
		EntityLabel: goal.UserName,
		Detail:      fmt.Sprintf("sale of %s recorded", amount.StringFixed(2)),
	})
	return goal, nil
}

func (s *ledgerService) TransitionGoal(ctx context.Context, id uuid.UUID, from, to models.GoalStatus) (bool, error) {
	if !models.ValidTransition(from, to) {
		return false, models.ErrInvalidTransition
	}

	changed, err := s.repo.UpdateStatus(ctx, id, from, to)
	if err != nil || !changed {
		return changed, err
	}

	s.mu.Lock()
	for i := range s.goals {
		if s.goals[i].ID == id {
			s.goals[i].Status = to
			s.goals[i].UpdatedAt = s.now()
			break
		}
	}
	s.mu.Unlock()
	s.publish()
	return true, nil
}

func (s *ledgerService) GetGoals() []models.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]models.Goal, len(s.goals))
	copy(snapshot, s.goals)
	return snapshot
}

func (s *ledgerService) GetGoalByID(id uuid.UUID) (*models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.goals {
		if s.goals[i].ID == id {
			g := s.goals[i]
			return &g, nil
		}
	}
	return nil, models.ErrGoalNotFound
}

func (s *ledgerService) GetFilteredGoals(filter models.GoalFilter) []models.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filtered := make([]models.Goal, 0)
	for i := range s.goals {
		if filter.Matches(&s.goals[i]) {
			filtered = append(filtered, s.goals[i])
		}
	}
	return filtered
}

// GetGoalsByAccessCode матчит по сохраненному access code или префиксу
// userID, опционально сужая до периода (0 месяц/год - без ограничения)
func (s *ledgerService) GetGoalsByAccessCode(code string, month, year int) []models.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]models.Goal, 0)
	for i := range s.goals {
		g := &s.goals[i]
		if !g.MatchesAccessCode(code) {
			continue
		}
		if month != 0 && g.Month != month {
			continue
		}
		if year != 0 && g.Year != year {
			continue
		}
		matched = append(matched, *g)
	}
	return matched
}

func (s *ledgerService) hasGoalFor(userID string, month, year int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.goals {
		g := &s.goals[i]
		if g.UserID == userID && g.Month == month && g.Year == year {
			return true
		}
	}
	return false
}

func (s *ledgerService) replaceInProjection(goal *models.Goal) {
	s.mu.Lock()
	for i := range s.goals {
		if s.goals[i].ID == goal.ID {
			s.goals[i] = *goal
			break
		}
	}
	s.mu.Unlock()
	s.publish()
}
