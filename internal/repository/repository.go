package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicate is returned when an insert collides with a unique key.
var ErrDuplicate = errors.New("duplicate record")

const (
	mysqlDuplicateEntry  = 1062
	mysqlNoReferencedRow = 1452
)

func isDuplicateKey(err error) bool {
	return hasMySQLCode(err, mysqlDuplicateEntry)
}

// isMissingParent reports a foreign key violation on insert.
func isMissingParent(err error) bool {
	return hasMySQLCode(err, mysqlNoReferencedRow)
}

func hasMySQLCode(err error, code uint16) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == code
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}
