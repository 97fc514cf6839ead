package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mercadia/salesgoals/internal/models"
	"github.com/shopspring/decimal"
)

type goalRepository struct {
	pool *pgxpool.Pool
}

func NewGoalRepository(pool *pgxpool.Pool) GoalRepository {
	return &goalRepository{pool: pool}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
}

const goalColumns = `id, user_id, access_code, user_name, user_email, month, year, target_amount, current_amount, commission_percentage, status, created_by, created_at, updated_at`

func scanGoal(row pgx.Row) (*models.Goal, error) {
	var g models.Goal
	err := row.Scan(
		&g.ID, &g.UserID, &g.AccessCode, &g.UserName, &g.UserEmail,
		&g.Month, &g.Year, &g.TargetAmount, &g.CurrentAmount,
		&g.CommissionPercentage, &g.Status, &g.CreatedBy,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *goalRepository) Create(ctx context.Context, goal *models.Goal) error {
	query := `
		INSERT INTO goals (` + goalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		goal.ID, goal.UserID, goal.AccessCode, goal.UserName, goal.UserEmail,
		goal.Month, goal.Year, goal.TargetAmount, goal.CurrentAmount,
		goal.CommissionPercentage, goal.Status, goal.CreatedBy,
		goal.CreatedAt, goal.UpdatedAt,
	)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *goalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE id = $1`

	goal, err := scanGoal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrGoalNotFound
		}
		return nil, storeErr(err)
	}
	return goal, nil
}

func (r *goalRepository) List(ctx context.Context) ([]models.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var goals []models.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		goals = append(goals, *goal)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return goals, nil
}

// Update пишет только заполненные поля частичного редактирования;
// nil-указатели через COALESCE откатываются к хранимому значению,
// незаданные поля до хранилища не доходят
func (r *goalRepository) Update(ctx context.Context, id uuid.UUID, update *models.GoalUpdate) error {
	query := `
		UPDATE goals SET
			user_name = COALESCE($2, user_name),
			user_email = COALESCE($3, user_email),
			target_amount = COALESCE($4, target_amount),
			current_amount = COALESCE($5, current_amount),
			commission_percentage = COALESCE($6, commission_percentage),
			status = COALESCE($7, status),
			updated_at = $8
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		id, update.UserName, update.UserEmail,
		update.TargetAmount, update.CurrentAmount,
		update.CommissionPercentage, update.Status,
		time.Now(),
	)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrGoalNotFound
	}
	return nil
}

func (r *goalRepository) AddAmount(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (*models.Goal, error) {
	query := `
		UPDATE goals SET
			current_amount = current_amount + $2,
			updated_at = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, delta, time.Now())
	if err != nil {
		return nil, storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrGoalNotFound
	}

	completeQuery := `
		UPDATE goals SET status = $2, updated_at = $3
		WHERE id = $1 AND current_amount >= target_amount AND status = $4
	`
	_, err = r.pool.Exec(ctx, completeQuery, id, models.GoalStatusCompleted, time.Now(), models.GoalStatusActive)
	if err != nil {
		return nil, storeErr(err)
	}

	return r.GetByID(ctx, id)
}

func (r *goalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.GoalStatus) (bool, error) {
	query := `
		UPDATE goals SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, from, to, time.Now())
	if err != nil {
		return false, storeErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *goalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM goals WHERE id = $1`, id)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrGoalNotFound
	}
	return nil
}

// Watch слушает канал goals_changed, который питает триггер из миграций,
// и пересылает по тику на нотификацию. Если потребитель отстает, тики
// дропаются, а не копятся; потребитель все равно перечитывает полный
// снапшот на каждый тик
func (r *goalRepository) Watch(ctx context.Context) (<-chan struct{}, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, storeErr(err)
	}

	if _, err := conn.Exec(ctx, `LISTEN goals_changed`); err != nil {
		conn.Release()
		return nil, storeErr(err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer conn.Release()
		for {
			if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
				return
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return ch, nil
}
