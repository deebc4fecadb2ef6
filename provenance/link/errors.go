package link

import "fmt"

// ErrorCode is a closed domain error code used by construction-time validations.
type ErrorCode string

const (
	// ErrorInvalidArtifact indicates an artifact reference failed validation.
	ErrorInvalidArtifact ErrorCode = "LNK-0001"
	// ErrorUnknownLinkType indicates the link type is not part of the closed enumeration.
	ErrorUnknownLinkType ErrorCode = "LNK-0002"
	// ErrorSelfLink indicates parent and child reference the same artifact.
	ErrorSelfLink ErrorCode = "LNK-0003"
	// ErrorInvalidPairing indicates the (parent type, child type) pair is not allowed for the link type.
	ErrorInvalidPairing ErrorCode = "LNK-0004"
	// ErrorMissingProvenance indicates the creating event identifier is absent.
	ErrorMissingProvenance ErrorCode = "LNK-0005"
	// ErrorInvalidPayload indicates the payload failed its own validation.
	ErrorInvalidPayload ErrorCode = "LNK-0006"
	// ErrorPayloadNotAllowed indicates the payload kind is not accepted by the link type.
	ErrorPayloadNotAllowed ErrorCode = "LNK-0007"
)

// DomainError represents a structured construction-time validation error.
type DomainError struct {
	Code    ErrorCode
	Field   string
	Message string
}

// Error returns the formatted domain error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// NewDomainError creates a domain error with code, field, and message.
func NewDomainError(code ErrorCode, field, message string) error {
	return DomainError{Code: code, Field: field, Message: message}
}
