package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type GoalStatus string

const (
	GoalStatusPending   GoalStatus = "pending"
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	// expired зарезервирован для периодов, закрытых без достижения цели;
	// сейчас ни один переход его не выставляет, closeMonth всегда ставит completed
	GoalStatusExpired GoalStatus = "expired"
)

// допустимые рёбра машины статусов
var statusEdges = map[GoalStatus][]GoalStatus{
	GoalStatusPending:   {GoalStatusActive},
	GoalStatusActive:    {GoalStatusCompleted, GoalStatusExpired},
	GoalStatusCompleted: {GoalStatusActive},
}

// Valid проверяет что значение - один из известных статусов
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalStatusPending, GoalStatusActive, GoalStatusCompleted, GoalStatusExpired:
		return true
	}
	return false
}

// ValidTransition проверяет ребро from -> to; переход в тот же статус
// считается допустимым (no-op)
func ValidTransition(from, to GoalStatus) bool {
	if from == to {
		return from.Valid()
	}
	for _, next := range statusEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AccessCodeLength - длина префикса userID, используемого как альтернативный ключ поиска
const AccessCodeLength = 8

type Goal struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	UserID               string          `json:"user_id" db:"user_id"`
	AccessCode           string          `json:"access_code" db:"access_code"`
	UserName             string          `json:"user_name" db:"user_name"`
	UserEmail            string          `json:"user_email" db:"user_email"`
	Month                int             `json:"month" db:"month"`
	Year                 int             `json:"year" db:"year"`
	TargetAmount         decimal.Decimal `json:"target_amount" db:"target_amount"`
	CurrentAmount        decimal.Decimal `json:"current_amount" db:"current_amount"`
	CommissionPercentage float64         `json:"commission_percentage" db:"commission_percentage"`
	Status               GoalStatus      `json:"status" db:"status"`
	CreatedBy            string          `json:"created_by" db:"created_by"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

type GoalCreate struct {
	UserID               string          `json:"user_id" binding:"required"`
	UserName             string          `json:"user_name" binding:"required"`
	UserEmail            string          `json:"user_email"`
	Month                int             `json:"month" binding:"required"`
	Year                 int             `json:"year" binding:"required"`
	TargetAmount         decimal.Decimal `json:"target_amount" binding:"required"`
	CommissionPercentage float64         `json:"commission_percentage"`
}

// GoalUpdate - частичное редактирование; nil-поля адаптер хранилища
// не трогает, а не пишет как null
type GoalUpdate struct {
	UserName             *string          `json:"user_name"`
	UserEmail            *string          `json:"user_email"`
	TargetAmount         *decimal.Decimal `json:"target_amount"`
	CurrentAmount        *decimal.Decimal `json:"current_amount"`
	CommissionPercentage *float64         `json:"commission_percentage"`
	Status               *GoalStatus      `json:"status"`
}

// GoalFilter сужает in-memory проекцию леджера. Нулевые значения -
// без ограничения; Search матчит имя или email без учета регистра
type GoalFilter struct {
	UserID string
	Month  int
	Year   int
	Status GoalStatus
	Search string
}

func (f GoalFilter) Matches(g *Goal) bool {
	if f.UserID != "" && g.UserID != f.UserID {
		return false
	}
	if f.Month != 0 && g.Month != f.Month {
		return false
	}
	if f.Year != 0 && g.Year != f.Year {
		return false
	}
	if f.Status != "" && g.Status != f.Status {
		return false
	}
	if f.Search != "" {
		s := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(g.UserName), s) &&
			!strings.Contains(strings.ToLower(g.UserEmail), s) {
			return false
		}
	}
	return true
}

// AccessCodeFor выводит короткий альтернативный ключ из идентификатора пользователя
func AccessCodeFor(userID string) string {
	if len(userID) <= AccessCodeLength {
		return userID
	}
	return userID[:AccessCodeLength]
}

// MatchesAccessCode проверяет принадлежность цели коду: либо по
// сохраненному access code, либо по префиксу userID. Оба формата
// идентификаторов еще в ходу, поэтому поиск принимает любой.
// Пустой код не матчит ничего, иначе HasPrefix вернул бы все цели
func (g *Goal) MatchesAccessCode(code string) bool {
	if code == "" {
		return false
	}
	return g.AccessCode == code || strings.HasPrefix(g.UserID, code)
}

// InitialStatus возвращает статус свежесозданной цели:
// pending для будущего периода, иначе active
func InitialStatus(month, year int, now time.Time) GoalStatus {
	if year > now.Year() || (year == now.Year() && time.Month(month) > now.Month()) {
		return GoalStatusPending
	}
	return GoalStatusActive
}

// PeriodStart возвращает первый момент календарного месяца
func PeriodStart(month, year int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// LastDayOfMonth возвращает номер последнего дня месяца
func LastDayOfMonth(month, year int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ValidPeriod проверяет что (month, year) - пригодный календарный период
func ValidPeriod(month, year int) bool {
	return month >= 1 && month <= 12 && year >= 1970
}
