package custody

import "errors"

// Engine error kinds. Callers match with errors.Is; the HTTP layer maps
// each kind to a status code.
var (
	// ErrPreconditionFailed covers failed up-front checks: a family
	// with fewer than two guardians applying a template, a reversed
	// date range, or a custodian who is not a registered guardian.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrInvalidTemplate covers unknown pattern types and malformed
	// pattern payloads.
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrRangeTooLarge rejects template applications over ranges
	// exceeding the configured cap.
	ErrRangeTooLarge = errors.New("date range too large")

	// ErrNotFound covers operations on data that must exist, such as
	// applying a template that belongs to a different family.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentRepair is returned when a repair is already running
	// for the family (single-flight per family).
	ErrConcurrentRepair = errors.New("repair already in progress for family")
)
