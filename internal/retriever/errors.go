package retriever

import "errors"

var (
	// ErrInvalidMethod is returned for a method other than keyword, semantic or hybrid
	ErrInvalidMethod = errors.New("invalid retrieval method")
	// ErrStoreRequired is returned by New when no chunk store is given
	ErrStoreRequired = errors.New("chunk store is required")
	// ErrInvalidWeights is returned by WithWeights for negative weights
	ErrInvalidWeights = errors.New("weights must not be negative")
)
