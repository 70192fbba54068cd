package catalog

import "errors"

var (
	ErrPlanNotFound  = errors.New("subscription plan not found")
	ErrToolNotFound  = errors.New("tool not found")
	ErrGrantNotFound = errors.New("tool not granted by plan")

	ErrPlanAlreadyExists = errors.New("subscription plan already exists")
	ErrToolAlreadyExists = errors.New("tool already exists")
	ErrDuplicateGrant    = errors.New("duplicate grant for plan and tool")

	ErrInvalidSeedFile = errors.New("invalid catalog seed file")
)
