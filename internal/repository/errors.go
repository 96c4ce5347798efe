// Package repository implements the storage ports on MySQL.  Driver
// errors are translated into the model sentinels so that services and
// handlers never inspect MySQL error numbers themselves: a missing row
// becomes model.ErrNotFound, a duplicate key model.ErrConflict and a lock
// wait timeout or deadlock model.ErrTimeout.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/stay-reservation/internal/model"
)

// MySQL server error numbers the repositories care about.
const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
	errCheckConstraint = 3819
)

// mapDBError wraps err with the matching model sentinel.  what names the
// record for the message, e.g. "booking 42".
func mapDBError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, what)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDuplicateEntry:
			return fmt.Errorf("%w: %s already exists", model.ErrConflict, what)
		case errLockWaitTimeout, errDeadlock:
			return fmt.Errorf("%w: %s is locked by another request", model.ErrTimeout, what)
		case errRowIsReferenced:
			return fmt.Errorf("%w: %s is still referenced", model.ErrConflict, what)
		case errNoReferencedRow, errCheckConstraint:
			return fmt.Errorf("%w: %s: %s", model.ErrValidation, what, me.Message)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
