package pool

import (
	"fmt"

	"github.com/leapstack-labs/leapshard/pkg/shard"
)

// ConnectionUnavailableError wraps a transport failure with the routing
// context the caller needs for its retry policy. The pool itself never
// retries.
type ConnectionUnavailableError struct {
	Shard    shard.ID
	Category shard.Category
	Err      error
}

func (e *ConnectionUnavailableError) Error() string {
	return fmt.Sprintf("connection unavailable for shard %d category %q: %v", e.Shard, e.Category, e.Err)
}

func (e *ConnectionUnavailableError) Unwrap() error {
	return e.Err
}
