package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"graphic-novel-web/internal/domain"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore は SQLite 上の Store 実装です。
type SQLiteStore struct {
	db             *sql.DB
	initialCredits int
}

// NewSQLiteStore は dbPath のデータベースを開きます (なければ作成します)。
// initialCredits は台帳が初めて見た所有者に付与する残高です。
func NewSQLiteStore(dbPath string, initialCredits int) (*SQLiteStore, error) {
	// _txlock=immediate で、すべてのトランザクションが開始時に書き込みロックを取得します。
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, initialCredits: initialCredits}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close はデータベース接続を閉じます
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_owner_id ON tasks(owner_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

	CREATE TABLE IF NOT EXISTS credits (
		owner_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rotations (
		key TEXT PRIMARY KEY,
		last_index INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Create は PENDING のジョブレコードを追加します
func (s *SQLiteStore) Create(ctx context.Context, job *domain.Job) error {
	if err := prepareCreate(job, nowUTC()); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, owner_id, status, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.OwnerID, job.Status, string(data), job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("failed to create task: duplicate id %s", job.ID)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get は ID でジョブを取得します
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	return scanTask(s.db.QueryRowContext(ctx, `SELECT data FROM tasks WHERE id = ?`, id))
}

// Update は 1 件のジョブをアトミックに読み込み・変更・書き戻しします
func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*domain.Job) error) (*domain.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prev, err := scanTask(tx.QueryRowContext(ctx, `SELECT data FROM tasks WHERE id = ?`, id))
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

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, data = ?, updated_at = ? WHERE id = ?`,
		next.Status, string(data), next.UpdatedAt.UnixMilli(), id,
	); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// ListByOwner は所有者のジョブを新しい順に返します
func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error) {
	return s.queryTasks(ctx, `SELECT data FROM tasks WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
}

// ListUnfinished は終端状態に達していないジョブをすべて返します
func (s *SQLiteStore) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	return s.queryTasks(ctx, `SELECT data FROM tasks WHERE status NOT IN (?, ?) ORDER BY created_at ASC`,
		domain.StatusCompleted, domain.StatusFailed)
}

func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanTask(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Job, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read task: %w", err)
	}
	var job domain.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &job, nil
}

// Reserve は残高が足りる場合のみ amount を差し引きます
func (s *SQLiteStore) Reserve(ctx context.Context, ownerID string, amount int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO credits (owner_id, balance) VALUES (?, ?)`, ownerID, s.initialCredits,
	); err != nil {
		return 0, fmt.Errorf("failed to open credit account: %w", err)
	}

	var balance int
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM credits WHERE owner_id = ?`, ownerID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < amount {
		return balance, &domain.CreditError{Required: amount, Current: balance}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE credits SET balance = balance - ? WHERE owner_id = ?`, amount, ownerID); err != nil {
		return 0, fmt.Errorf("failed to reserve credits: %w", err)
	}
	if err := insertLedgerEntry(ctx, tx, ownerID, -amount, "reserve"); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balance - amount, nil
}

// Refund は amount を払い戻し、理由を台帳に記録します
func (s *SQLiteStore) Refund(ctx context.Context, ownerID string, amount int, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credits (owner_id, balance) VALUES (?, ?) ON CONFLICT(owner_id) DO NOTHING`,
		ownerID, s.initialCredits,
	); err != nil {
		return fmt.Errorf("failed to open credit account: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE credits SET balance = balance + ? WHERE owner_id = ?`, amount, ownerID); err != nil {
		return fmt.Errorf("failed to refund credits: %w", err)
	}
	if err := insertLedgerEntry(ctx, tx, ownerID, amount, "refund: "+reason); err != nil {
		return err
	}
	return tx.Commit()
}

// Balance は所有者の残高を返します。初回は口座を開設します
func (s *SQLiteStore) Balance(ctx context.Context, ownerID string) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM credits WHERE owner_id = ?`, ownerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return s.initialCredits, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

func insertLedgerEntry(ctx context.Context, tx *sql.Tx, ownerID string, amount int, reason string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, owner_id, amount, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), ownerID, amount, reason, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}
	return nil
}

// NextRotation は key のカーソルを進めます
func (s *SQLiteStore) NextRotation(ctx context.Context, key string, size int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	last := -1
	err = tx.QueryRowContext(ctx, `SELECT last_index FROM rotations WHERE key = ?`, key).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read rotation: %w", err)
	}

	next := rotationNext(last, size)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rotations (key, last_index) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET last_index = excluded.last_index`,
		key, next,
	); err != nil {
		return 0, fmt.Errorf("failed to write rotation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

var _ Store = (*SQLiteStore)(nil)
