package account

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotFound         = errors.New("account not found")
	ErrInvalidAccount   = errors.New("invalid account")
	ErrDuplicateAccount = errors.New("duplicate account")
)
