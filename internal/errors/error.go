package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrAccountMissing    = errors.New("account is missing")
	ErrConnectionTimeout = errors.New("connection timeout")

	// account errors
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")

	// folder errors
	ErrFolderExists   = errors.New("folder already exists")
	ErrFolderNotFound = errors.New("folder not found")

	// message errors
	ErrMessageNotFound = errors.New("message not found")

	// sync errors
	ErrUIDValidityChanged = errors.New("uidvalidity changed, cursor reset")
)
