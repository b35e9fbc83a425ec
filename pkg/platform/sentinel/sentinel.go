package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and backend adapters return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: sale/customer does not exist in store
// - ErrConflict: write lost against a concurrent mutation
// - ErrInvalidState: sale in wrong lifecycle state for requested operation
// - ErrUnavailable: backend or transport temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
