package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and the event
// notifier return these (optionally wrapped) so services can translate them
// into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity or cache entry does not exist
// - ErrConflict: store-level uniqueness/overlap constraint refused a write
// - ErrInvalidState: entity in wrong state for requested transition
// - ErrAlreadyClaimed: another run holds the publication claim for an exam
// - ErrBacklogFull: publication backlog at capacity, submission rejected
// - ErrUnavailable: store, cache or bus temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidState   = errors.New("invalid state")
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrBacklogFull    = errors.New("backlog full")
	ErrUnavailable    = errors.New("unavailable")
)
