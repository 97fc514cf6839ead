package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mercadia/salesgoals/internal/models"
	"github.com/shopspring/decimal"
)

// GoalRepository - контракт адаптера хранилища. Ретраев нет; каждая
// ошибка оборачивается models.ErrStoreUnavailable, политику повторов
// решает вызывающий
type GoalRepository interface {
	Create(ctx context.Context, goal *models.Goal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Goal, error)
	List(ctx context.Context) ([]models.Goal, error)
	Update(ctx context.Context, id uuid.UUID, update *models.GoalUpdate) error
	// AddAmount атомарно инкрементит current_amount и, если цель active
	// и таргет достигнут, завершает ее той же операцией.
	// Возвращает обновленную строку
	AddAmount(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (*models.Goal, error)
	// UpdateStatus меняет статус только если текущее значение равно from;
	// сообщает была ли изменена строка
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.GoalStatus) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Watch выдает тик на каждое изменение коллекции целей, начиная
	// с момента подписки. Канал закрывается когда ctx закончился
	Watch(ctx context.Context) (<-chan struct{}, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type Repositories struct {
	Goal GoalRepository
	User UserRepository
}

func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Goal: NewGoalRepository(pool),
		User: NewUserRepository(pool),
	}
}
