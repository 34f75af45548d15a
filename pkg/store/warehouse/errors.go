package warehouse

import (
	"errors"
	"fmt"
)

var (
	ErrDatasetDoesNotExist = errors.New("dataset does not exist")
	ErrNotConnected        = errors.New("warehouse is not connected")
)

// QueryError carries the original query text alongside the backend errors
// so a failed generated query can be reproduced as-is.
type QueryError struct {
	Query string
	Errs  []error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("warehouse query failed: %v (query: %s)", e.Errs, e.Query)
}
