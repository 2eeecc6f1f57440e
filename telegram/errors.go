package telegram

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed indicates that a received frame is not a valid telegram.
	ErrMalformed = errors.New("malformed telegram")

	// ErrInvalidTelegram indicates that a telegram handed to Encode violates the protocol ranges.
	ErrInvalidTelegram = errors.New("invalid telegram")

	// ErrValueRange indicates that a value given to the byte encoder is outside [0, 255].
	ErrValueRange = errors.New("value out of byte range [0, 255]")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTelegram, fmt.Sprintf(format, args...))
}
