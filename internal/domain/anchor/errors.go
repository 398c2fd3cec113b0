package anchor

import (
	"errors"

	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

var (
	// ErrInvalidCoordinate is re-exported from geo for callers that only import anchor.
	ErrInvalidCoordinate = geo.ErrInvalidCoordinate

	// ErrInvalidFix marks a fix with non-finite or out-of-range values.
	ErrInvalidFix = errors.New("invalid position fix")

	// ErrConfiguration marks a rejected configuration command.
	ErrConfiguration = errors.New("configuration error")

	// ErrAlreadyAnchored is returned when dropping anchor without a prior reset.
	// It wraps ErrConfiguration.
	ErrAlreadyAnchored = &configurationError{msg: "anchor already dropped, reset first"}
)

// configurationError is a ConfigurationError with its own message.
type configurationError struct {
	msg string
}

func (e *configurationError) Error() string { return e.msg }

// Unwrap lets errors.Is match ErrConfiguration.
func (e *configurationError) Unwrap() error { return ErrConfiguration }
