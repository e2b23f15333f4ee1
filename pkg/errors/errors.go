package errors

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserBanned        = errors.New("user banned")
	ErrInvalidUserStatus = errors.New("invalid user status")
	ErrNicknameTaken     = errors.New("nickname already taken")
	ErrInvalidNickname   = errors.New("invalid nickname")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrTooManyAttempts   = errors.New("too many failed login attempts")

	ErrAdminNotFound        = errors.New("admin not found")
	ErrAdminDisabled        = errors.New("admin disabled")
	ErrInvalidAdminPassword = errors.New("invalid admin password")

	ErrInvalidWalletPayload = errors.New("invalid wallet payload")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrLedgerUnavailable    = errors.New("ledger unavailable")
	ErrIncidentNotFound     = errors.New("ledger incident not found")
	ErrIncidentResolved     = errors.New("ledger incident already resolved")

	ErrTableNotFound     = errors.New("table not found")
	ErrTableClosed       = errors.New("table closed")
	ErrTableFaulted      = errors.New("table faulted")
	ErrTableAccessDenied = errors.New("table access denied")
	ErrUnknownCommand    = errors.New("unknown command")

	ErrAlreadyInQueue  = errors.New("already in queue")
	ErrQueueProcessing = errors.New("queue request in progress")

	// Invariant violations. These are raised as panics inside the engine and
	// recovered by the table runtime.
	ErrShoeExhausted = errors.New("shoe exhausted")
	ErrEmptyHand     = errors.New("settling a session with no hand")
)
