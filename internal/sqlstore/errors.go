package sqlstore

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"modelql/internal/model"
	"modelql/internal/validate"
)

const (
	mysqlErrDuplicateEntry     = 1062
	mysqlErrNoDefaultForColumn = 1364
	mysqlErrColumnCannotBeNull = 1048
	mysqlErrFKChildRow         = 1451
	mysqlErrFKParentMissing    = 1452
)

// normalizeError maps constraint violations the database enforces into the
// engine's validation error shape; everything else passes through untouched.
func normalizeError(entity *model.Entity, err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return err
	}
	switch mysqlErr.Number {
	case mysqlErrDuplicateEntry:
		return &validate.Error{Entity: entity.Name, Constraint: "unique constraint violated"}
	case mysqlErrColumnCannotBeNull, mysqlErrNoDefaultForColumn:
		return &validate.Error{Entity: entity.Name, Constraint: "required column is missing"}
	case mysqlErrFKChildRow, mysqlErrFKParentMissing:
		return &validate.Error{Entity: entity.Name, Constraint: "association reference violated"}
	}
	return err
}
