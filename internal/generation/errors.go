package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindInvalidCredential Kind = "invalid_credential"
	KindResultMissing     Kind = "result_missing"
	KindDownloadFailed    Kind = "download_failed"
	KindCancelled         Kind = "cancelled"
	KindTimedOut          Kind = "timed_out"
	KindUnknown           Kind = "unknown"
)

// Error is the only error type Generate returns.
type Error struct {
	Kind    Kind
	Message string
	// Status is the media host's HTTP status for KindDownloadFailed.
	Status     int
	StatusText string
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RequiresCredential reports whether the caller should send the user back to
// the credential gate.
func (e *Error) RequiresCredential() bool {
	return e.Kind == KindMissingCredential || e.Kind == KindInvalidCredential
}

// UserMessage is the single line shown to the user for this error.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindMissingCredential:
		return "API key is not configured. Please select an API key."
	case KindInvalidCredential:
		return "Your API key seems to be invalid. Please select a valid key."
	case KindResultMissing:
		return e.Error()
	case KindDownloadFailed:
		return fmt.Sprintf("Failed to download video. Status: %s", e.StatusText)
	case KindCancelled:
		return "Video generation was cancelled."
	case KindTimedOut:
		return "Video generation took too long and was stopped."
	default:
		if msg := e.Error(); msg != "" {
			return msg
		}
		return "An unexpected error occurred during video generation."
	}
}

// KindOf returns the kind of a workflow error, or KindUnknown.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// These are the markers the Gemini API uses when the key is unknown, revoked
// or lacks access to the model.
var credentialMarkers = []string{
	"requested entity was not found",
	"api key not valid",
	"api_key_invalid",
	"permission_denied",
	"unauthenticated",
}

func isCredentialFailure(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range credentialMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classify maps a start/poll/wait failure onto the taxonomy.
func classify(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Message: "generation cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimedOut, Message: "generation timed out", Err: err}
	case isCredentialFailure(err.Error()):
		return &Error{Kind: KindInvalidCredential, Message: err.Error(), Err: err}
	default:
		return &Error{Kind: KindUnknown, Message: err.Error(), Err: err}
	}
}
