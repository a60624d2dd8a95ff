package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: record does not exist
//   - ErrAlreadyUsed: unique key already taken (document id, version number, copy number)
//   - ErrImmutable: attempted modification of an append-only record
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrImmutable   = errors.New("record is immutable")
	ErrUnavailable = errors.New("unavailable")
)
