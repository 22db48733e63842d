package services

import (
	"errors"
	"log/slog"
	"net/http"

	"plexedit/plexos/model"
	"plexedit/plexos/schema"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	return domainResponseCode(err)
}

// domainResponseCode maps engine errors onto http statuses so handlers can
// pass them through without wrapping each one.
func domainResponseCode(err error) int {
	switch {
	case errors.Is(err, model.ErrNoSuchClass),
		errors.Is(err, model.ErrNoSuchObject),
		errors.Is(err, model.ErrNoSuchAttribute),
		errors.Is(err, model.ErrNoSuchProperty),
		errors.Is(err, model.ErrNoSuchCollection),
		errors.Is(err, model.ErrNoSuchCategory),
		errors.Is(err, model.ErrNoSuchConfig),
		errors.Is(err, model.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateName),
		errors.Is(err, model.ErrDuplicateCategory):
		return http.StatusConflict
	case errors.Is(err, model.ErrArityMismatch),
		errors.Is(err, model.ErrMaskValueInvalid),
		errors.Is(err, model.ErrUnsupportedOperation):
		return http.StatusBadRequest
	}
	var dbErr schema.DbError
	if errors.As(err, &dbErr) {
		return http.StatusInternalServerError
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}
