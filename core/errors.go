package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ReconcileErrorBadInput          = "RECONCILE_BAD_INPUT"
	ReconcileErrorMalformedEvent    = "RECONCILE_MALFORMED_EVENT"
	ReconcileErrorIdentityNotFound  = "RECONCILE_IDENTITY_NOT_FOUND"
	ReconcileErrorExceptionNotFound = "RECONCILE_EXCEPTION_NOT_FOUND"
	ReconcileErrorExceptionResolved = "RECONCILE_EXCEPTION_RESOLVED"
	ReconcileErrorConflict          = "RECONCILE_CONFLICT"
	ReconcileErrorInternal          = "RECONCILE_INTERNAL_ERROR"
)

func reconcileErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureReconcileErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrIdentityNotFound):
		return newReconcileError(err.Error(), goerrors.CategoryNotFound, ReconcileErrorIdentityNotFound)
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrLedgerEntryNotFound):
		return newReconcileError(err.Error(), goerrors.CategoryNotFound, ReconcileErrorIdentityNotFound)
	case errors.Is(err, ErrExceptionNotFound):
		return newReconcileError(err.Error(), goerrors.CategoryNotFound, ReconcileErrorExceptionNotFound)
	case errors.Is(err, ErrExceptionAlreadyResolved), errors.Is(err, ErrInvalidExceptionTransition):
		return newReconcileError(err.Error(), goerrors.CategoryConflict, ReconcileErrorExceptionResolved)
	case errors.Is(err, ErrMalformedEvent):
		return newReconcileError(err.Error(), goerrors.CategoryBadInput, ReconcileErrorMalformedEvent)
	case errors.Is(err, ErrLedgerEntryExists), errors.Is(err, ErrIncompatibleIdentityKind):
		return newReconcileError(err.Error(), goerrors.CategoryConflict, ReconcileErrorConflict)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newReconcileError(err.Error(), goerrors.CategoryBadInput, ReconcileErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureReconcileErrorEnvelope(mapped)
}

func newReconcileError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureReconcileErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureReconcileErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = reconcileHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultReconcileTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultReconcileTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ReconcileErrorBadInput
	case goerrors.CategoryNotFound:
		return ReconcileErrorIdentityNotFound
	case goerrors.CategoryConflict:
		return ReconcileErrorConflict
	default:
		return ReconcileErrorInternal
	}
}

func reconcileHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
