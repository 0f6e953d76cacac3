// Package transport fetches update artifacts from the firmware repository.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when an artifact has not been published.
var ErrNotFound = errors.New("artifact not found")

// StatusError is an unexpected response from the repository.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Source opens artifacts by name inside the node's directory of the repository.
type Source interface {
	// Open returns the artifact's content. The caller closes it.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Location describes where name is fetched from, for logs.
	Location(name string) string
}
