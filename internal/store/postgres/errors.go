package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/bookstore/internal/store"
)

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Failures of the database itself are wrapped with store.ErrUnavailable so callers
// can tell them apart from domain errors. Constraint violations are returned
// unchanged for the calling store to interpret.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	// Check if it's a PostgreSQL error
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		var connectErr *pgconn.ConnectError
		if errors.As(err, &connectErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
			return fmt.Errorf("%w: database connection error: %w", store.ErrUnavailable, err)
		}
		return err
	}

	// Map error codes to sentinel errors
	switch pgErr.Code {
	case pgerrcode.UniqueViolation,
		pgerrcode.ForeignKeyViolation,
		pgerrcode.CheckViolation:
		return err

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		// Retryable transaction errors
		return fmt.Errorf("%w: transaction conflict (retryable): %w", store.ErrUnavailable, err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("%w: database connection error: %w", store.ErrUnavailable, err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("%w: database server unavailable: %w", store.ErrUnavailable, err)

	case pgerrcode.QueryCanceled:
		// Context cancellation or statement timeout
		return fmt.Errorf("%w: query canceled: %w", store.ErrUnavailable, err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("%w: database resource limit: %w", store.ErrUnavailable, err)

	default:
		// Unknown error - wrap with PostgreSQL error details
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}

// isConstraintViolation reports whether err is a PostgreSQL error with the given
// code raised by the named constraint. An empty constraint matches any.
func isConstraintViolation(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isUniqueViolation(err error, constraint string) bool {
	return isConstraintViolation(err, pgerrcode.UniqueViolation, constraint)
}

func isForeignKeyViolation(err error, constraint string) bool {
	return isConstraintViolation(err, pgerrcode.ForeignKeyViolation, constraint)
}
