package publisher

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/crosspost/internal/models"
)

type Kind string

const (
	// KindValidation is raised before any network call when content breaks a
	// platform rule.
	KindValidation Kind = "validation"
	// KindAuth means the credential was rejected. The caller refreshes the
	// token once and retries.
	KindAuth Kind = "auth"
	// KindTransient covers network failures, timeouts, rate limits and
	// remote 5xx responses.
	KindTransient Kind = "transient"
	// KindPermanent means the platform rejected the content for good.
	KindPermanent Kind = "permanent"
	// KindConfiguration is an unknown platform or a missing credential.
	KindConfiguration Kind = "configuration"
)

// Retryable reports whether a failure of this kind is eligible for an
// automatic retry on a later dispatch round.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

type Error struct {
	Kind     Kind
	Platform models.Platform
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Platform == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s %s error: %s", e.Platform, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, platform models.Platform, format string, args ...any) *Error {
	return &Error{Kind: kind, Platform: platform, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind. The message of err is kept.
func Wrap(kind Kind, platform models.Platform, err error) *Error {
	return &Error{Kind: kind, Platform: platform, Err: err}
}

// KindOf classifies an arbitrary error. Errors that carry no publisher kind
// are treated as transient so they are retried rather than dropped.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}

	// Network failures and deadlines land here.
	return KindTransient
}

// Message returns the text stored with a failed publish result.
func Message(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Message != "" {
			return pe.Message
		}
		if pe.Err != nil {
			return pe.Err.Error()
		}
	}
	return err.Error()
}
