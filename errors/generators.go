package errors

import "fmt"

// NewAuthenticationError returns a new ErrAuthentication error with the given
// message.
func NewAuthenticationError(message string, details Details) error {
	return Error{
		Code:    ErrAuthentication,
		Message: message,
		Details: details,
	}
}

// NewForbiddenError returns a new ErrForbidden error with kind
// KindMissingCapability for the given capability.
func NewForbiddenError(capability string, details Details) error {
	if details == nil {
		details = make(Details)
	}
	details["capability"] = capability
	return Error{
		Code:    ErrForbidden,
		Kind:    KindMissingCapability,
		Message: fmt.Sprintf("missing capability: %s", capability),
		Details: details,
	}
}

// NewResourceNotFoundError returns a new ErrNotFound error with kind
// KindResourceNotFound and the given message.
func NewResourceNotFoundError(message string, details Details) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindResourceNotFound,
		Message: message,
		Details: details,
	}
}

// NewInvalidStateError returns a new ErrInvalidState error. The message
// contains the offending current status.
func NewInvalidStateError(operation string, currentStatus string, details Details) error {
	if details == nil {
		details = make(Details)
	}
	details["currentStatus"] = currentStatus
	return Error{
		Code:    ErrInvalidState,
		Message: fmt.Sprintf("%s not allowed with game status %s", operation, currentStatus),
		Details: details,
	}
}

// NewIllegalStatusTransitionError returns a new ErrInvalidState error with
// kind KindIllegalStatusTransition for a game status transition that is not
// part of the legal transition table.
func NewIllegalStatusTransitionError(from string, to string, details Details) error {
	if details == nil {
		details = make(Details)
	}
	details["from"] = from
	details["to"] = to
	return Error{
		Code:    ErrInvalidState,
		Kind:    KindIllegalStatusTransition,
		Message: fmt.Sprintf("transition from game status %s to %s not allowed", from, to),
		Details: details,
	}
}

// NewBadRequestError returns a new ErrBadRequest error with the given message.
func NewBadRequestError(message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Message: message,
		Details: details,
	}
}

// NewInternalError returns a new ErrInternal error with the given message.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr returns a new ErrInternal error with the given
// message and original error.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewVersionConflictError returns a new ErrInternal error with kind
// KindVersionConflict. Callers performing optimistic-concurrency mutations
// retry on this kind.
func NewVersionConflictError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindVersionConflict,
		Message: message,
		Details: details,
	}
}

// NewQueryToSQLError returns a new ErrInternal error with kind
// KindDBQueryToSQL for failed query building.
func NewQueryToSQLError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBQueryToSQL,
		Err:     err,
		Message: "query to sql",
		Details: details,
	}
}

// NewExecQueryError returns a new ErrInternal error with kind KindDBExecQuery
// for a failed query execution.
func NewExecQueryError(err error, query string, details Details) error {
	if details == nil {
		details = make(Details)
	}
	details["query"] = query
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBExecQuery,
		Err:     err,
		Message: "exec query",
		Details: details,
	}
}

// NewScanDBRowError returns a new ErrInternal error with kind KindDBScanRow
// for a failed row scan.
func NewScanDBRowError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBScanRow,
		Err:     err,
		Message: "scan db row",
		Details: details,
	}
}

// NewScanSingleDBRowError returns a new ErrInternal error with kind
// KindDBScanRow and the given message for a failed single-row scan.
func NewScanSingleDBRowError(message string, err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBScanRow,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewDBTxBeginError returns a new ErrInternal error with kind KindDBTx for a
// failed transaction begin.
func NewDBTxBeginError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBTx,
		Err:     err,
		Message: "begin tx",
	}
}

// NewDBTxCommitError returns a new ErrInternal error with kind KindDBTx for a
// failed transaction commit.
func NewDBTxCommitError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBTx,
		Err:     err,
		Message: "commit tx",
	}
}
