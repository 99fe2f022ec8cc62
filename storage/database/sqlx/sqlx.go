// Package sqlxrepos implements the core repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

// postgres error codes
const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeExclusionViolation  = "23P01"
)

// base holds the executor used when a repository method is called outside a transaction.
type base struct {
	db core.DBExecutor
}

func (b base) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	for _, e := range svcExec {
		if e != nil {
			return e
		}
	}
	return b.db
}

// pqError returns the postgres error code and constraint name of err, if any.
func pqError(err error) (code, constraint string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

// foreignKeyError turns a foreign key violation into a field error on the referencing column,
// read from the constraint name ("<table>_<column>_fkey").
func foreignKeyError(err error, table string) error {
	code, constraint := pqError(err)
	if code != codeForeignKeyViolation {
		return nil
	}
	field := strings.TrimSuffix(strings.TrimPrefix(constraint, table+"_"), "_fkey")
	if field == "" || field == constraint {
		return core.NewValidationError(errReferenced)
	}
	return core.NewFieldError(field, errReferencedMissing)
}

var (
	errReferenced        = errors.New("this record is referenced by other records")
	errReferencedMissing = errors.New("the referenced record does not exist")
)

// query accumulates the WHERE clauses of a SELECT, written with ? placeholders.
type query struct {
	clauses []string
	args    []interface{}
}

func (q *query) where(clause string, args ...interface{}) {
	q.clauses = append(q.clauses, "("+clause+")")
	q.args = append(q.args, args...)
}

// build appends the WHERE clauses and the suffix (ORDER BY, LIMIT...) to base,
// expands slice arguments and rebinds the placeholders for postgres.
func (q *query) build(base, suffix string) (string, []interface{}, error) {
	stmt := base
	if len(q.clauses) > 0 {
		stmt += " WHERE " + strings.Join(q.clauses, " AND ")
	}
	if suffix != "" {
		stmt += " " + suffix
	}
	stmt, args, err := sqlx.In(stmt, q.args...)
	if err != nil {
		return "", nil, errors.Wrap(err, "expanding query arguments")
	}
	return sqlx.Rebind(sqlx.DOLLAR, stmt), args, nil
}

func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return "ORDER BY " + fallback
	}
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		list = append(list, ord.String())
	}
	return "ORDER BY " + strings.Join(list, ", ")
}

// insert runs a named INSERT ... RETURNING id and returns the id.
func insert(ctx context.Context, exec core.DBExecutor, stmt string, arg interface{}) (int, error) {
	rows, err := sqlx.NamedQueryContext(ctx, exec, stmt, arg)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var id int
	if rows.Next() {
		if err = rows.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, rows.Err()
}

// update runs a named UPDATE and reports notFound when no row was affected.
func update(ctx context.Context, exec core.DBExecutor, stmt string, arg interface{}, notFound error) error {
	res, err := exec.NamedExecContext(ctx, stmt, arg)
	if err != nil {
		return err
	}
	return checkAffected(res.RowsAffected, notFound)
}

// remove runs a DELETE by id and reports notFound when no row was affected.
func remove(ctx context.Context, exec core.DBExecutor, stmt string, id int, notFound error) error {
	res, err := exec.ExecContext(ctx, stmt, id)
	if err != nil {
		return err
	}
	return checkAffected(res.RowsAffected, notFound)
}

func checkAffected(rowsAffected func() (int64, error), notFound error) error {
	n, err := rowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func like(s string) string {
	return "%" + s + "%"
}
