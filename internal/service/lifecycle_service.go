package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mercadia/salesgoals/internal/audit"
	"github.com/mercadia/salesgoals/internal/models"
	"go.uber.org/zap"
)

// LifecycleService владеет машиной статусов на уровне периода: массовое
// закрытие, reopen с повторной аутентификацией и плановая подстраховка
// в конце месяца. Переходы по отдельным целям идут через леджер, чтобы
// проекция оставалась консистентной.
type LifecycleService interface {
	CanClose(month, year int) bool
	CloseMonth(ctx context.Context, actor models.Actor, month, year int) error
	ReopenMonth(ctx context.Context, actor models.Actor, month, year int, reauthConfirmed bool) error

	Start()
	Stop()
}

type LifecycleOptions struct {
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
	CloseWindowMinute int
}

type lifecycleService struct {
	ledger LedgerService
	audit  *audit.Notifier
	logger *zap.Logger
	opts   LifecycleOptions
	now    func() time.Time

	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewLifecycleService(ledger LedgerService, notifier *audit.Notifier, logger *zap.Logger, opts LifecycleOptions) LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SchedulerInterval <= 0 {
		opts.SchedulerInterval = time.Minute
	}
	if opts.CloseWindowMinute <= 0 {
		opts.CloseWindowMinute = 55
	}
	return &lifecycleService{
		ledger: ledger,
		audit:  notifier,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// CanClose сообщает можно ли закрывать период: только когда "сейчас"
// строго позже первого момента периода
func (s *lifecycleService) CanClose(month, year int) bool {
	if !models.ValidPeriod(month, year) {
		return false
	}
	return s.now().After(models.PeriodStart(month, year))
}

// CloseMonth переводит каждую active цель периода в completed и фиксирует
// итоговую комиссию месяца. Идемпотентен: второй вызов не находит active
// целей и ничего не пишет. Не транзакционен между целями; id неудавшихся
// возвращаются, чтобы вызывающий мог повторить ровно их.
func (s *lifecycleService) CloseMonth(ctx context.Context, actor models.Actor, month, year int) error {
	if !models.ValidPeriod(month, year) {
		return models.ErrInvalidPeriod
	}
	if !s.CanClose(month, year) {
		return models.ErrPeriodNotStarted
	}

	active := s.ledger.GetFilteredGoals(models.GoalFilter{
		Month: month, Year: year, Status: models.GoalStatusActive,
	})

	var failed []uuid.UUID
	closed := 0
	for i := range active {
		changed, err := s.ledger.TransitionGoal(ctx, active[i].ID, models.GoalStatusActive, models.GoalStatusCompleted)
		if err != nil {
			s.logger.Error("close: goal transition failed",
				zap.String("goal_id", active[i].ID.String()), zap.Error(err))
			failed = append(failed, active[i].ID)
			continue
		}
		if changed {
			closed++
		}
	}

	total := TotalCommission(s.ledger.GetFilteredGoals(models.GoalFilter{Month: month, Year: year}))
	s.logger.Info("month closed",
		zap.Int("month", month), zap.Int("year", year),
		zap.Int("closed", closed), zap.Int("failed", len(failed)),
		zap.String("total_commission", total.StringFixed(2)))

	status := "success"
	if len(failed) > 0 {
		status = "error"
	}
	s.audit.Emit(audit.Event{
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Action:      audit.ActionClose,
		EntityLabel: fmt.Sprintf("%d/%d", month, year),
		Detail:      fmt.Sprintf("%d goal(s) closed, total commission %s", closed, total.StringFixed(2)),
		Status:      status,
	})

	if len(failed) > 0 {
		return &models.PartialFailureError{Op: "close month", FailedIDs: failed}
	}
	return nil
}

// ReopenMonth откатывает закрытие, возвращая completed цели периода в
// active. Вызывающий обязан заранее получить успешное подтверждение
// повторной аутентификации; проверки учетных данных здесь нет.
func (s *lifecycleService) ReopenMonth(ctx context.Context, actor models.Actor, month, year int, reauthConfirmed bool) error {
	if !reauthConfirmed {
		return models.ErrUnauthorized
	}
	if !models.ValidPeriod(month, year) {
		return models.ErrInvalidPeriod
	}

	completed := s.ledger.GetFilteredGoals(models.GoalFilter{
		Month: month, Year: year, Status: models.GoalStatusCompleted,
	})

	var failed []uuid.UUID
	reopened := 0
	for i := range completed {
		changed, err := s.ledger.TransitionGoal(ctx, completed[i].ID, models.GoalStatusCompleted, models.GoalStatusActive)
		if err != nil {
			s.logger.Error("reopen: goal transition failed",
				zap.String("goal_id", completed[i].ID.String()), zap.Error(err))
			failed = append(failed, completed[i].ID)
			continue
		}
		if changed {
			reopened++
		}
	}

	s.logger.Info("month reopened",
		zap.Int("month", month), zap.Int("year", year),
		zap.Int("reopened", reopened), zap.Int("failed", len(failed)))

	status := "success"
	if len(failed) > 0 {
		status = "error"
	}
	s.audit.Emit(audit.Event{
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Action:      audit.ActionReopen,
		EntityLabel: fmt.Sprintf("%d/%d", month, year),
		Detail:      fmt.Sprintf("%d goal(s) reopened", reopened),
		Status:      status,
	})

	if len(failed) > 0 {
		return &models.PartialFailureError{Op: "reopen month", FailedIDs: failed}
	}
	return nil
}

// Start запускает периодическую проверку конца месяца. Подстраховка
// best-effort; ожидается что администраторы закрывают явно
func (s *lifecycleService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opts.SchedulerEnabled {
		s.logger.Info("close scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.opts.SchedulerInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.logger.Info("close scheduler started", zap.Duration("interval", s.opts.SchedulerInterval))
}

func (s *lifecycleService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.logger.Info("close scheduler stopped")
}

func (s *lifecycleService) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.checkAndClose()
		case <-s.stop:
			return
		}
	}
}

// checkAndClose дергает CloseMonth для текущего периода, когда часы
// внутри окна закрытия: последний день месяца, час 23, минута не раньше
// настроенного порога
func (s *lifecycleService) checkAndClose() {
	now := s.now()
	if !s.inCloseWindow(now) {
		return
	}

	month, year := int(now.Month()), now.Year()
	active := s.ledger.GetFilteredGoals(models.GoalFilter{
		Month: month, Year: year, Status: models.GoalStatusActive,
	})
	if len(active) == 0 {
		return
	}

	s.logger.Info("auto-closing current period",
		zap.Int("month", month), zap.Int("year", year), zap.Int("active", len(active)))

	actor := models.Actor{ID: "system", Name: "scheduler"}
	if err := s.CloseMonth(context.Background(), actor, month, year); err != nil {
		s.logger.Error("auto-close failed", zap.Error(err))
	}
}

func (s *lifecycleService) inCloseWindow(now time.Time) bool {
	lastDay := models.LastDayOfMonth(int(now.Month()), now.Year())
	return now.Day() == lastDay && now.Hour() == 23 && now.Minute() >= s.opts.CloseWindowMinute
}
