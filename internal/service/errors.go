package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput wraps every rejection of caller supplied data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPostBusy is returned for changes to a post that is being published.
	ErrPostBusy = errors.New("post is being published")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
