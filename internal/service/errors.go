package service

import (
	"errors"

	"github.com/S1riyS/pocketfs/internal/pkg/kerrors"
	"github.com/S1riyS/pocketfs/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ServiceError is a rejection that is reported to the client as a code.
type ServiceError struct {
	Code    int16
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) GetCode() int16 {
	return e.Code
}

// CodeOf maps err to the code sent to clients. Errors that are not
// rejections are reported as kerrors.Unknown.
func CodeOf(err error) int16 {
	if err == nil {
		return kerrors.OK
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}
	return kerrors.Unknown
}

func isRejection(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

func reject(code int16) *ServiceError {
	return &ServiceError{Code: code, Message: kerrors.Message(code)}
}

// isConflict reports a duplicate key, from either repository backend.
func isConflict(err error) bool {
	if errors.Is(err, repository.ErrConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pq.ErrorCode(pgErr.Code).Name() == "unique_violation"
	}
	return false
}
