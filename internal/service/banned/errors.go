package banned

import "errors"

var (
	ErrNotFound     = errors.New("banned entry not found")
	ErrInvalidEntry = errors.New("entry must be an email address or a domain")
)
