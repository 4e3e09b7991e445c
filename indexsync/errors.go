package indexsync

import "errors"

var (
	// ErrPlaceRepositoryRequired indicates a nil place repository was provided.
	ErrPlaceRepositoryRequired = errors.New("place repository is required")

	// ErrVectorIndexRequired indicates a nil vector index was provided.
	ErrVectorIndexRequired = errors.New("vector index is required")

	// ErrEmbedderRequired indicates a nil embedder was provided.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrInvalidMaxAttempts indicates maxAttempts was not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
