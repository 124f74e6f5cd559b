package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Миграции хранятся в собственной таблице, чтобы не пересекаться с чужими
// инструментами в общей базе.
const (
	migrationsDir    = "sql/migrations"
	migrationsTable  = "marketplace_schema_migrations"
	migrationLockKey = int64(0x6d6b7470) // "mktp"
)

var ensureMigrationsTableSQL = `CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// ErrMigrationChecksumMismatch возвращается, если уже применённую миграцию изменили в исходниках.
var ErrMigrationChecksumMismatch = errors.New("applied migration was modified")

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

func (m migration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

func (m migration) checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// appliedMigration соответствует строке таблицы миграций.
type appliedMigration struct {
	Version  int64
	Checksum string
}

// MigrateUp применяет ещё не применённые миграции по возрастанию версии.
// steps=0 применяет всё.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []migration) error {
		applied, err := listAppliedMigrations(ctx, conn)
		if err != nil {
			return err
		}
		known := make(map[int64]string, len(applied))
		for _, a := range applied {
			known[a.Version] = a.Checksum
		}

		done := 0
		for _, m := range migrations {
			if sum, ok := known[m.Version]; ok {
				if sum != m.checksum() {
					return fmt.Errorf("%w: %s", ErrMigrationChecksumMismatch, m.label())
				}
				continue
			}
			if steps > 0 && done == steps {
				break
			}
			if err := runMigrationStep(ctx, conn, m, true); err != nil {
				return err
			}
			done++
		}
		return nil
	})
}

// MigrateDown откатывает последние применённые миграции.
// steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []migration) error {
		applied, err := listAppliedMigrations(ctx, conn)
		if err != nil {
			return err
		}
		byVersion := make(map[int64]migration, len(migrations))
		for _, m := range migrations {
			byVersion[m.Version] = m
		}

		slices.Reverse(applied)
		for i, a := range applied {
			if i == steps {
				break
			}
			m, ok := byVersion[a.Version]
			if !ok {
				return fmt.Errorf("cannot rollback unknown migration version %d", a.Version)
			}
			if err := runMigrationStep(ctx, conn, m, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает последнюю применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, fmt.Errorf("postgres store is not initialized")
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, ensureMigrationsTableSQL); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var (
		version int64
		count   int
	)
	row := s.db.QueryRowContext(queryCtx, `SELECT COALESCE(MAX(version), 0), COUNT(*) FROM `+migrationsTable)
	if err := row.Scan(&version, &count); err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return version, count, nil
}

// withMigrationLock выполняет fn на выделенном соединении под advisory lock,
// чтобы несколько экземпляров сервиса не мигрировали одновременно.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn, migrations []migration) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	_, err = conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey)
	cancel()
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		// Исходный ctx может быть уже отменён, а блокировку нужно снять в любом случае.
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			log.WithError(err).Warn("failed to release migration lock")
		}
	}()

	if _, err := conn.ExecContext(ctx, ensureMigrationsTableSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return fn(conn, migrations)
}

// runMigrationStep применяет (up=true) или откатывает миграцию вместе с записью в таблице версий.
func runMigrationStep(ctx context.Context, conn *sql.Conn, m migration, up bool) (err error) {
	direction, body := "down", m.DownSQL
	if up {
		direction, body = "up", m.UpSQL
	}
	logger := log.WithFields(log.Fields{
		"component": "postgres-migrator",
		"migration": m.label(),
		"direction": direction,
	})

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", direction, m.label(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute %s migration %s: %w", direction, m.label(), err)
	}

	if up {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO `+migrationsTable+` (version, name, checksum) VALUES ($1, $2, $3)`,
			m.Version, m.Name, m.checksum())
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM `+migrationsTable+` WHERE version = $1`, m.Version)
	}
	if err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, m.label(), err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, m.label(), err)
	}
	logger.Info("migration applied")
	return nil
}

// listAppliedMigrations возвращает применённые миграции по возрастанию версии.
func listAppliedMigrations(ctx context.Context, conn *sql.Conn) ([]appliedMigration, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, checksum FROM `+migrationsTable+` ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []appliedMigration
	for rows.Next() {
		var a appliedMigration
		if err := rows.Scan(&a.Version, &a.Checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// parseMigrationFileName разбирает имя вида 0001_name.up.sql.
func parseMigrationFileName(base string) (version int64, name string, up bool, err error) {
	stem, ok := strings.CutSuffix(base, ".sql")
	if !ok {
		return 0, "", false, fmt.Errorf("invalid migration file name: %s", base)
	}
	switch {
	case strings.HasSuffix(stem, ".up"):
		stem, up = strings.TrimSuffix(stem, ".up"), true
	case strings.HasSuffix(stem, ".down"):
		stem = strings.TrimSuffix(stem, ".down")
	default:
		return 0, "", false, fmt.Errorf("invalid migration file name: %s", base)
	}

	rawVersion, name, ok := strings.Cut(stem, "_")
	if !ok || name == "" || strings.ContainsAny(name, ".- ") {
		return 0, "", false, fmt.Errorf("invalid migration file name: %s", base)
	}
	version, err = strconv.ParseInt(rawVersion, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", false, fmt.Errorf("invalid migration version in %s", base)
	}
	return version, name, up, nil
}

func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, path.Join(migrationsDir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		version, name, up, err := parseMigrationFileName(base)
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, name)
		}

		target := &m.DownSQL
		if up {
			target = &m.UpSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate migration file for version %d: %s", version, base)
		}
		*target = body
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.label())
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migration) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		}
		return 0
	})
	return migrations, nil
}
