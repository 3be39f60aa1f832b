package errors

// Code is the general class of an Error. It determines how an Error is logged
// and how it is reported to callers.
type Code string

const (
	// ErrAuthentication is used when no verified caller identity is present.
	ErrAuthentication Code = "authentication"
	// ErrForbidden is used when the caller identity is verified but lacks the
	// capability required for the operation.
	ErrForbidden Code = "forbidden"
	// ErrBadRequest is used for requests that carry invalid values.
	ErrBadRequest Code = "bad-request"
	// ErrNotFound is used when a referenced resource does not exist.
	ErrNotFound Code = "not-found"
	// ErrInvalidState is used when an operation is attempted against a game in
	// the wrong lifecycle state.
	ErrInvalidState Code = "invalid-state"
	// ErrCommunication is used for problems with external communication like the
	// MQTT connection.
	ErrCommunication Code = "communication"
	// ErrInternal is used for all internal problems that are not the caller's
	// fault.
	ErrInternal Code = "internal"
	// ErrFatal is used when continuing operation is impossible.
	ErrFatal Code = "fatal"
	// ErrUnexpected is used when an error could not be classified.
	ErrUnexpected Code = "unexpected"
)

// Kind provides a more detailed description of what went wrong than Code.
type Kind string

const (
	// KindResourceNotFound is used with ErrNotFound when a requested resource is
	// unknown.
	KindResourceNotFound Kind = "resource-not-found"
	// KindMissingCapability is used with ErrForbidden when the caller lacks a
	// required capability.
	KindMissingCapability Kind = "missing-capability"
	// KindIllegalStatusTransition is used with ErrInvalidState when a game status
	// transition is not part of the legal transition table.
	KindIllegalStatusTransition Kind = "illegal-status-transition"
	// KindVersionConflict is used with ErrInternal when an optimistic-concurrency
	// check on the live state failed. Mutations are retried on this kind.
	KindVersionConflict Kind = "version-conflict"
	// KindDB is used for general database problems.
	KindDB Kind = "db"
	// KindDBQueryToSQL is used when building an SQL query failed.
	KindDBQueryToSQL Kind = "db-query-to-sql"
	// KindDBExecQuery is used when executing a query failed.
	KindDBExecQuery Kind = "db-exec-query"
	// KindDBScanRow is used when scanning a result row failed.
	KindDBScanRow Kind = "db-scan-row"
	// KindDBTx is used for transaction begin/commit problems.
	KindDBTx Kind = "db-tx"
	// KindDBRollback is used when rolling back a transaction failed.
	KindDBRollback Kind = "db-rollback"
	// KindShouldNotHappen is used for situations the code is not meant to reach.
	KindShouldNotHappen Kind = "should-not-happen"
)
