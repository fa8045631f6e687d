package council

import "errors"

// Kind is a machine-readable error code surfaced to API callers.
type Kind string

const (
	KindMissingAPIKey  Kind = "MISSING_API_KEY"
	KindInvalidAPIKey  Kind = "INVALID_API_KEY"
	KindInvalidRequest Kind = "INVALID_REQUEST"

	// KindNoQuorum means no council member produced a Stage-1 answer.
	KindNoQuorum Kind = "MODEL_UNAVAILABLE"

	KindProviderError Kind = "PROVIDER_ERROR"

	// KindVisionFailed means every vision candidate model failed, so no
	// image context could be produced.
	KindVisionFailed Kind = "VISION_FAILED"

	KindTimeout  Kind = "TIMEOUT"
	KindInternal Kind = "INTERNAL_ERROR"
)

// Error carries a machine-readable kind plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds an Error. cause may be nil.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the error kind, defaulting to KindInternal for errors
// that did not originate in this package.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}
