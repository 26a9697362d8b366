package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: row does not exist
//   - ErrConflict: a concurrent write won (unique record id or token, lost WATCH)
//   - ErrAlreadyUsed: a unique value (retrieval token, short label, token hash) is taken
//   - ErrExpired: session or challenge past its expiry
//   - ErrInvalidState: entity in wrong state for the requested write
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
)
