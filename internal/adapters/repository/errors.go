package repository

import "errors"

// Sentinel kinds for intervention log errors.
var (
	ErrStoreNotFound      = errors.New("no intervention data found")
	ErrRecordNotFound     = errors.New("record not found")
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
	ErrCorruptStore       = errors.New("corrupt intervention log")
	ErrUnknownDriver      = errors.New("unknown store driver")
)
