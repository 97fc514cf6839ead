package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// сентинельные ошибки, хендлеры матчат их через errors.Is
var (
	// ErrDuplicateGoal - вторая цель для той же тройки (user, month, year)
	ErrDuplicateGoal = errors.New("goal already exists for this user and period")

	// ErrGoalNotFound - операция ссылается на несуществующую цель
	ErrGoalNotFound = errors.New("goal not found")

	// ErrStoreUnavailable оборачивает сбои слоя хранения. Ядро не
	// ретраит; политика повторов - забота вызывающего
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnauthorized - попытка reopen без подтвержденной повторной аутентификации
	ErrUnauthorized = errors.New("re-authentication required")

	// ErrInvalidAmount - сумма продажи <= 0
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrInvalidPercentage - ставка комиссии вне 0-100
	ErrInvalidPercentage = errors.New("commission percentage must be between 0 and 100")

	// ErrInvalidPeriod - месяц вне 1-12 или непригодный год
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrSelfCreation - актор пытается создать цель самому себе;
	// цели всегда назначает кто-то другой
	ErrSelfCreation = errors.New("a goal cannot be created by its own subject")

	// ErrPeriodNotStarted - закрытие периода, который еще не начался
	ErrPeriodNotStarted = errors.New("period has not started")

	// ErrInvalidTransition - смена статуса вне допустимых рёбер машины статусов
	ErrInvalidTransition = errors.New("status change not allowed")
)

// PartialFailureError - массовое close/reopen, где часть целей не
// сохранила новое состояние. Несет id неудавшихся, чтобы вызывающий
// мог повторить ровно их
type PartialFailureError struct {
	Op        string
	FailedIDs []uuid.UUID
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: %d goal(s) failed to update", e.Op, len(e.FailedIDs))
}

func (e *PartialFailureError) Unwrap() error {
	return ErrStoreUnavailable
}
