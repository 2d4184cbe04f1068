package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/nadmax/tracksync/internal/task"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS %s (
		creation_date DATE,
		project VARCHAR(64),
		accumulated_time_s INTEGER NOT NULL,
		username VARCHAR(64),
		task VARCHAR(128),
		task_time_s INTEGER NOT NULL
	)
`

const insertRowSQL = `
	INSERT INTO %s (
		creation_date, project, accumulated_time_s,
		username, task, task_time_s
	) VALUES (%s)
`

type SQLSnapshotRepository struct {
	db     *sql.DB
	driver string
	table  string
}

// Open prepares a connection pool without dialing. Idle connections are not
// kept, so each cycle acquires its connection and hands it back to the server
// when its transaction ends.
func Open(driver, dsn, table string) (*SQLSnapshotRepository, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewSQLSnapshotRepository(db, driver, table), nil
}

func NewSQLSnapshotRepository(db *sql.DB, driver, table string) *SQLSnapshotRepository {
	return &SQLSnapshotRepository{db: db, driver: driver, table: table}
}

func (r *SQLSnapshotRepository) EnsureTable(ctx context.Context) error {
	return r.withTx(ctx, "create table", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(createTableSQL, r.table))
		return err
	})
}

// InsertRows appends rows in one transaction; either every row lands or none
// does. An empty batch never touches the database.
func (r *SQLSnapshotRepository) InsertRows(ctx context.Context, rows []task.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(insertRowSQL, r.table, r.placeholders(6))
	err := r.withTx(ctx, "insert rows", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}

		defer func() {
			if err := stmt.Close(); err != nil {
				log.Printf("failed to close insert statement: %v", err)
			}
		}()

		for _, row := range rows {
			if _, err := stmt.ExecContext(
				ctx,
				row.DateString(),
				row.Project,
				row.AccumulatedTimeSeconds,
				row.Username,
				row.Task,
				row.TaskTimeSeconds,
			); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(rows), nil
}

func (r *SQLSnapshotRepository) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &DatabaseError{Op: op, Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("failed to roll back %s: %v", op, rbErr)
		}
		return &DatabaseError{Op: op, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &DatabaseError{Op: op, Err: fmt.Errorf("failed to commit: %w", err)}
	}

	return nil
}

func (r *SQLSnapshotRepository) placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		if r.driver == DriverPostgres {
			marks[i] = "$" + strconv.Itoa(i+1)
		} else {
			marks[i] = "?"
		}
	}
	return strings.Join(marks, ", ")
}

func (r *SQLSnapshotRepository) DB() *sql.DB {
	return r.db
}

func (r *SQLSnapshotRepository) Close() error {
	return r.db.Close()
}
