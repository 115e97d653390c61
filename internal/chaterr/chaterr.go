// Package chaterr defines the error taxonomy shared by the dispatcher, the
// stream normalizer and the conversation state machine.
package chaterr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindEmptyInput
	KindMissingCredential
	KindModelNotFound
	KindUnsupportedProvider
	KindInvalidCredential
	KindRateLimited
	KindProviderUnavailable
	KindProviderError
	KindTimeout
	KindMalformedStreamFrame
	KindNetworkFailure
	KindCanceled
	KindBusy
	KindMessageNotFound
	KindNotStreaming
	KindInvalidVersion
	KindInvalidState
)

var kindNames = map[Kind]string{
	KindUnknown:              "Unknown",
	KindEmptyInput:           "EmptyInput",
	KindMissingCredential:    "MissingCredential",
	KindModelNotFound:        "ModelNotFound",
	KindUnsupportedProvider:  "UnsupportedProvider",
	KindInvalidCredential:    "InvalidCredential",
	KindRateLimited:          "RateLimited",
	KindProviderUnavailable:  "ProviderUnavailable",
	KindProviderError:        "ProviderError",
	KindTimeout:              "Timeout",
	KindMalformedStreamFrame: "MalformedStreamFrame",
	KindNetworkFailure:       "NetworkFailure",
	KindCanceled:             "Canceled",
	KindBusy:                 "Busy",
	KindMessageNotFound:      "MessageNotFound",
	KindNotStreaming:         "NotStreaming",
	KindInvalidVersion:       "InvalidVersion",
	KindInvalidState:         "InvalidState",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error carries the kind plus diagnostics. Body is the raw provider body
// snippet and is only ever logged.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Body     string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrEmptyInput           = &Error{Kind: KindEmptyInput, Message: "message is empty"}
	ErrMissingCredential    = &Error{Kind: KindMissingCredential, Message: "no credential configured"}
	ErrModelNotFound        = &Error{Kind: KindModelNotFound, Message: "model not found"}
	ErrUnsupportedProvider  = &Error{Kind: KindUnsupportedProvider, Message: "unsupported provider"}
	ErrInvalidCredential    = &Error{Kind: KindInvalidCredential, Message: "credential rejected"}
	ErrRateLimited          = &Error{Kind: KindRateLimited, Message: "rate limited"}
	ErrProviderUnavailable  = &Error{Kind: KindProviderUnavailable, Message: "provider unavailable"}
	ErrProviderError        = &Error{Kind: KindProviderError, Message: "provider error"}
	ErrTimeout              = &Error{Kind: KindTimeout, Message: "request timed out"}
	ErrMalformedStreamFrame = &Error{Kind: KindMalformedStreamFrame, Message: "malformed stream frame"}
	ErrNetworkFailure       = &Error{Kind: KindNetworkFailure, Message: "network failure"}
	ErrCanceled             = &Error{Kind: KindCanceled, Message: "canceled"}
	ErrBusy                 = &Error{Kind: KindBusy, Message: "a response is already in progress"}
	ErrMessageNotFound      = &Error{Kind: KindMessageNotFound, Message: "message not found"}
	ErrNotStreaming         = &Error{Kind: KindNotStreaming, Message: "message is not streaming"}
	ErrInvalidVersion       = &Error{Kind: KindInvalidVersion, Message: "version index out of range"}
	ErrInvalidState         = &Error{Kind: KindInvalidState, Message: "invalid message state"}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Blocking reports whether err stops a send before any state is mutated.
func Blocking(err error) bool {
	switch KindOf(err) {
	case KindEmptyInput, KindMissingCredential, KindModelNotFound, KindUnsupportedProvider, KindBusy:
		return true
	}
	return false
}

// UserMessage is the provider-agnostic text shown to the end user.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindEmptyInput:
		return "Type a message first."
	case KindMissingCredential:
		return "Add an API key for this model's provider in Settings to start chatting."
	case KindModelNotFound:
		return "The selected model is no longer available. Pick another model in Settings."
	case KindUnsupportedProvider:
		return "This model's provider is not supported."
	case KindInvalidCredential:
		return "The API key was rejected. Check it in Settings."
	case KindRateLimited:
		return "The provider is rate limiting requests. Try again in a moment."
	case KindProviderUnavailable:
		return "The provider is temporarily unavailable. Try again later."
	case KindTimeout:
		return "The response took too long and was stopped."
	case KindNetworkFailure:
		return "Connection lost while receiving the response."
	case KindBusy:
		return "Wait for the current response to finish."
	case KindCanceled:
		return "Response stopped."
	}
	return "Something went wrong while generating the response."
}
