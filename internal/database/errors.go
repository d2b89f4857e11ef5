package database

import "errors"

// Store-level errors. Callers match with errors.Is.
var (
	// ErrAccountNotFound is returned when the target account id does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrPreconditionFailed is returned when a conditional balance adjustment
	// did not apply because the precondition (typically "new value >= 0") does
	// not hold. The account state is unchanged.
	ErrPreconditionFailed = errors.New("balance precondition failed")

	// ErrAccountNotEmpty is returned when account deletion is refused because
	// balance, gift_balance, or custody_fee_balance is non-zero.
	ErrAccountNotEmpty = errors.New("account holds funds and cannot be deleted")

	// ErrDuplicateEmail is returned when registration targets an email that is
	// already taken.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidBalanceField is returned when an adjustment names a column
	// outside the closed BalanceField set.
	ErrInvalidBalanceField = errors.New("invalid balance field")
)
