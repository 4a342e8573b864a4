package store

import "errors"

// Sentinel errors distinguishing the error kinds the rest of the core needs
// to branch on, mirroring the taxonomy the repository layer and the sync
// orchestrator surface as typed failures rather than opaque wrapped errors.
var (
	// ErrStoreUnavailable means the backing Postgres instance could not be
	// reached or pinged; callers should treat the command as fatal.
	ErrStoreUnavailable = errors.New("store: backing database unavailable")

	// ErrNotFound means a dataset or player lookup missed.
	ErrNotFound = errors.New("store: not found")

	// ErrNameConflict means a dataset rename collided with an existing name.
	ErrNameConflict = errors.New("store: name already in use")

	// ErrInvalidName means a dataset name failed the safe-identifier check
	// and was rejected before being interpolated into any DDL or query.
	ErrInvalidName = errors.New("store: invalid dataset name")

	// ErrAlreadyExists means InsertEdge was called for a pair that already
	// has an edge row.
	ErrAlreadyExists = errors.New("store: edge already exists")

	// ErrIntegrityViolation surfaces a constraint breach that should be
	// impossible under the invariants the schema enforces.
	ErrIntegrityViolation = errors.New("store: integrity violation")
)
