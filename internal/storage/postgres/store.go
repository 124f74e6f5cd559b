package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// querier покрывает общее подмножество *sql.DB и *sql.Tx, через которое работают репозитории.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL и реализует domain.UnitOfWork.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type repositories struct {
	q querier
}

func (r repositories) Listings() domain.ListingRepository {
	return &listingRepository{q: r.q}
}

func (r repositories) Orders() domain.OrderLedgerRepository {
	return &orderLedgerRepository{q: r.q, table: listingOrdersTable}
}

func (r repositories) AdOrders() domain.OrderLedgerRepository {
	return &orderLedgerRepository{q: r.q, table: listingAdOrdersTable}
}

func (r repositories) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: r.q}
}

// Listings возвращает репозиторий объявлений вне транзакции.
func (s *Store) Listings() domain.ListingRepository { return repositories{q: s.db}.Listings() }

// Orders возвращает реестр заказов объявлений вне транзакции.
func (s *Store) Orders() domain.OrderLedgerRepository { return repositories{q: s.db}.Orders() }

// AdOrders возвращает реестр рекламных заказов вне транзакции.
func (s *Store) AdOrders() domain.OrderLedgerRepository { return repositories{q: s.db}.AdOrders() }

// Outbox возвращает outbox вне транзакции.
func (s *Store) Outbox() domain.OutboxRepository { return repositories{q: s.db}.Outbox() }

// WithinTx открывает транзакцию READ COMMITTED и коммитит её, только если fn вернула nil.
// Условный UPDATE статуса объявления берёт блокировку строки до конца транзакции,
// поэтому параллельные продления одного объявления выполняются по очереди.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, repositories{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ domain.UnitOfWork = (*Store)(nil)
