package mailbox

import (
	"errors"
	"fmt"
)

var errNoBody = errors.New("fetched message has no body")

// ConnectionError indicates the mailbox could not be reached, authenticated
// against, or queried. It aborts one polling cycle.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mailbox %s (%s): %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
