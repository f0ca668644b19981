package studio

import (
	"errors"

	"vidgen/internal/generation"
	"vidgen/internal/media"
)

type State string

const (
	StateIdle               State = "idle"
	StateAwaitingCredential State = "awaiting_credential"
	StateBusy               State = "busy"
	StateSucceeded          State = "succeeded"
	StateFailed             State = "failed"
)

const MessageEmptyPrompt = "Please enter a prompt to generate a video."

var (
	ErrBusy               = errors.New("a generation is already running")
	ErrNotBusy            = errors.New("no generation is running")
	ErrEmptyPrompt        = errors.New("prompt is empty")
	ErrCredentialRequired = errors.New("an API key must be selected first")
)

// Snapshot is the observable UI state. Result and Error are never both set,
// and ProgressMessage is empty unless IsBusy.
type Snapshot struct {
	Version         uint64                 `json:"version"`
	State           State                  `json:"state"`
	Prompt          string                 `json:"prompt"`
	AspectRatio     generation.AspectRatio `json:"aspectRatio"`
	HasCredential   bool                   `json:"hasCredential"`
	IsBusy          bool                   `json:"isBusy"`
	ProgressMessage string                 `json:"progressMessage,omitempty"`
	Result          *media.Handle          `json:"result,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ErrorKind       generation.Kind        `json:"errorKind,omitempty"`
}
