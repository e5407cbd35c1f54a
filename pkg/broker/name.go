package broker

import "fmt"

// MaxNameLength is the longest channel name accepted, in bytes.
const MaxNameLength = 255

// reservedNames are served by the HTTP transport itself.
var reservedNames = map[string]bool{
	"healthz": true,
	"metrics": true,
}

// ValidateName checks a channel name. Names are used as a path segment by
// the HTTP transport, so they must not contain '/' or collide with its
// health and metrics endpoints.
func ValidateName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: empty", ErrBadChannelName)
	}

	if reservedNames[name] {
		return fmt.Errorf("%w: %q is reserved", ErrBadChannelName, name)
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrBadChannelName, MaxNameLength)
	}

	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '/':
			return fmt.Errorf("%w: contains '/'", ErrBadChannelName)
		case 0:
			return fmt.Errorf("%w: contains null character", ErrBadChannelName)
		}
	}

	return nil
}
