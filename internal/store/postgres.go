package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"graphic-novel-web/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore は PostgreSQL 上の Store 実装です。Update は SELECT ... FOR UPDATE で行をロックします。
type PostgresStore struct {
	pool           *pgxpool.Pool
	initialCredits int
}

// NewPostgresStore は databaseURL に接続し、スキーマを作成します。
func NewPostgresStore(ctx context.Context, databaseURL string, initialCredits int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	s := &PostgresStore{pool: pool, initialCredits: initialCredits}
	if err := s.initSchema(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close は接続プールを解放します。
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	status TEXT NOT NULL,
	data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner_id ON tasks(owner_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS credits (
	owner_id TEXT PRIMARY KEY,
	balance INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id UUID PRIMARY KEY,
	owner_id TEXT NOT NULL,
	amount INTEGER NOT NULL,
	reason TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS rotations (
	key TEXT PRIMARY KEY,
	last_index INTEGER NOT NULL
);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Create は PENDING のジョブレコードを追加します。
func (s *PostgresStore) Create(ctx context.Context, job *domain.Job) error {
	if err := prepareCreate(job, nowUTC()); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	query := `
INSERT INTO tasks (id, owner_id, status, data, created_at, updated_at)
VALUES ($1, $2, $3, $4::jsonb, $5, $6);
`
	if _, err := s.pool.Exec(ctx, query, job.ID, job.OwnerID, string(job.Status), string(data), job.CreatedAt, job.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("failed to create task: duplicate id %s", job.ID)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get は ID でジョブを取得します。
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	return scanPGTask(s.pool.QueryRow(ctx, `SELECT data FROM tasks WHERE id = $1`, id))
}

// Update は 1 件のジョブをアトミックに読み込み・変更・書き戻しします。
func (s *PostgresStore) Update(ctx context.Context, id string, fn func(*domain.Job) error) (*domain.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	prev, err := scanPGTask(tx.QueryRow(ctx, `SELECT data FROM tasks WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	next, err := applyUpdate(prev, fn, nowUTC())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}

	query := `
UPDATE tasks
SET status = $2,
    data = $3::jsonb,
    updated_at = $4
WHERE id = $1;
`
	if _, err := tx.Exec(ctx, query, id, string(next.Status), string(data), next.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// ListByOwner は所有者のジョブを新しい順に返します。
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error) {
	return s.queryTasks(ctx, `SELECT data FROM tasks WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

// ListUnfinished は終端状態でないジョブを古い順に返します。
func (s *PostgresStore) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	return s.queryTasks(ctx, `SELECT data FROM tasks WHERE status NOT IN ($1, $2) ORDER BY created_at ASC`,
		string(domain.StatusCompleted), string(domain.StatusFailed))
}

func (s *PostgresStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanPGTask(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return jobs, nil
}

func scanPGTask(row pgx.Row) (*domain.Job, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read task: %w", err)
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &job, nil
}

// Reserve は残高が足りる場合のみ amount をアトミックに差し引きます。
func (s *PostgresStore) Reserve(ctx context.Context, ownerID string, amount int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO credits (owner_id, balance) VALUES ($1, $2) ON CONFLICT (owner_id) DO NOTHING`,
		ownerID, s.initialCredits,
	); err != nil {
		return 0, fmt.Errorf("failed to open credit account: %w", err)
	}

	var balance int
	if err := tx.QueryRow(ctx, `SELECT balance FROM credits WHERE owner_id = $1 FOR UPDATE`, ownerID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < amount {
		return balance, &domain.CreditError{Required: amount, Current: balance}
	}

	if _, err := tx.Exec(ctx, `UPDATE credits SET balance = balance - $2 WHERE owner_id = $1`, ownerID, amount); err != nil {
		return 0, fmt.Errorf("failed to reserve credits: %w", err)
	}
	if err := insertPGLedgerEntry(ctx, tx, ownerID, -amount, "reserve"); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balance - amount, nil
}

// Refund は amount を所有者に払い戻します。
func (s *PostgresStore) Refund(ctx context.Context, ownerID string, amount int, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO credits (owner_id, balance) VALUES ($1, $2) ON CONFLICT (owner_id) DO NOTHING`,
		ownerID, s.initialCredits,
	); err != nil {
		return fmt.Errorf("failed to open credit account: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE credits SET balance = balance + $2 WHERE owner_id = $1`, ownerID, amount); err != nil {
		return fmt.Errorf("failed to refund credits: %w", err)
	}
	if err := insertPGLedgerEntry(ctx, tx, ownerID, amount, "refund: "+reason); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Balance は所有者の残高を返します。
func (s *PostgresStore) Balance(ctx context.Context, ownerID string) (int, error) {
	var balance int
	err := s.pool.QueryRow(ctx, `SELECT balance FROM credits WHERE owner_id = $1`, ownerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.initialCredits, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

func insertPGLedgerEntry(ctx context.Context, tx pgx.Tx, ownerID string, amount int, reason string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, owner_id, amount, reason) VALUES ($1, $2, $3, $4)`,
		uuid.New(), ownerID, amount, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}
	return nil
}

// NextRotation は key のカーソルを進めます。
func (s *PostgresStore) NextRotation(ctx context.Context, key string, size int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 初回でも行ロックを取れるよう、先にカーソル行を作成します。
	if _, err := tx.Exec(ctx,
		`INSERT INTO rotations (key, last_index) VALUES ($1, -1) ON CONFLICT (key) DO NOTHING`, key,
	); err != nil {
		return 0, fmt.Errorf("failed to open rotation: %w", err)
	}

	var last int
	if err := tx.QueryRow(ctx, `SELECT last_index FROM rotations WHERE key = $1 FOR UPDATE`, key).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to read rotation: %w", err)
	}

	next := rotationNext(last, size)
	if _, err := tx.Exec(ctx, `UPDATE rotations SET last_index = $2 WHERE key = $1`, key, next); err != nil {
		return 0, fmt.Errorf("failed to write rotation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

var _ Store = (*PostgresStore)(nil)
