package channel

import "errors"

var (
	// ErrInvalidChannel indicates a channel index outside [0, 15].
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrInvalidValue indicates a control value outside [0, 254] or a trim value outside [0, 50].
	ErrInvalidValue = errors.New("invalid channel value")

	// ErrInvalidConfig indicates a channel configuration that cannot be applied.
	ErrInvalidConfig = errors.New("invalid channel config")
)
