package database

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

func RunMigrations(pool *pgxpool.Pool) error {
	log.Println("Running database migrations...")

	ctx := context.Background()

	migrations := []string{
		migrationCreateExtensions,
		migrationCreateUsers,
		migrationCreateGoals,
		migrationCreateIndexes,
		migrationCreateChangeTrigger,
	}

	for i, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Migrations completed successfully")
	return nil
}

const migrationCreateExtensions = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";
`

const migrationCreateUsers = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    name VARCHAR(100) NOT NULL,
    role VARCHAR(20) DEFAULT 'admin',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);
`

const migrationCreateGoals = `
CREATE TABLE IF NOT EXISTS goals (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    user_id VARCHAR(64) NOT NULL,
    access_code VARCHAR(16) NOT NULL,
    user_name VARCHAR(100) NOT NULL,
    user_email VARCHAR(255) DEFAULT '',
    month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
    year INTEGER NOT NULL,
    target_amount DECIMAL(18, 2) NOT NULL CHECK (target_amount > 0),
    current_amount DECIMAL(18, 2) NOT NULL DEFAULT 0 CHECK (current_amount >= 0),
    commission_percentage DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (commission_percentage BETWEEN 0 AND 100),
    status VARCHAR(20) NOT NULL DEFAULT 'active' CHECK (status IN ('pending', 'active', 'completed', 'expired')),
    created_by VARCHAR(64) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);
`

const migrationCreateIndexes = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_goals_user_period ON goals(user_id, month, year);
CREATE INDEX IF NOT EXISTS idx_goals_period ON goals(year, month);
CREATE INDEX IF NOT EXISTS idx_goals_access_code ON goals(access_code);
CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
`

// каждое изменение таблицы goals пингует канал goals_changed;
// леджер слушает его и перезагружает проекцию
const migrationCreateChangeTrigger = `
CREATE OR REPLACE FUNCTION notify_goals_changed() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('goals_changed', '');
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS goals_changed_trigger ON goals;
CREATE TRIGGER goals_changed_trigger
    AFTER INSERT OR UPDATE OR DELETE ON goals
    FOR EACH STATEMENT EXECUTE FUNCTION notify_goals_changed();
`
