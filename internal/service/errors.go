package service

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrSubmissionRejected  = errors.New("transaction rejected by ledger")
	ErrInsufficientFunds   = errors.New("insufficient funds for submission")
	ErrConfirmationTimeout = errors.New("confirmation wait timed out")
)
