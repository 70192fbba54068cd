package usage

import "errors"

var (
	ErrRecordNotFound  = errors.New("usage record not found")
	ErrNotRecordOwner  = errors.New("usage record belongs to another user")
	ErrRecordFinalized = errors.New("usage record already in a terminal status")
	ErrInvalidStatus   = errors.New("invalid usage status")

	ErrQuotaExhausted       = errors.New("usage quota exhausted")
	ErrFailedToReserve      = errors.New("failed to reserve usage slot")
	ErrFailedToCountUsage   = errors.New("failed to count tool usage")
	ErrFailedToAppendRecord = errors.New("failed to append usage record")
)
