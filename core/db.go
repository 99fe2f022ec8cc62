package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx, so repositories can run inside or outside a transaction.
	DBExecutor interface {
		sqlx.ExtContext

		Exec(query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}
)

var (
	_ DB         = (*sqlx.DB)(nil)
	_ DBExecutor = (*sqlx.Tx)(nil)
)

// InTx runs fn inside a transaction on db, committing when fn returns nil and rolling back otherwise.
// A nil db runs fn with a nil executor, which in-memory repositories ignore.
func InTx(ctx context.Context, db DB, fn func(tx DBExecutor) error) (err error) {
	if db == nil {
		return fn(nil)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back transaction: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CleanOrderings keeps the orderings whose field is in allowed, so user input never reaches an ORDER BY unchecked.
func CleanOrderings(orderings []DBOrdering, allowed ...string) []DBOrdering {
	cleaned := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if ContainsString(allowed, ord.Field) {
			cleaned = append(cleaned, ord)
		}
	}
	return cleaned
}
