package delivery

import (
	"errors"
	"fmt"
)

// ErrUnsupportedScheme indicates no pusher handles the subscriber URL scheme.
var ErrUnsupportedScheme = errors.New("unsupported subscriber url scheme")

// StatusError is returned when an HTTP subscriber answers with a non-2xx
// status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("subscriber %s answered %d", e.URL, e.Code)
}
