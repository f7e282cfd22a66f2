package auth

import (
	"strings"
)

// ValidationError represents a specific type of credential validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoToken indicates no Discord token was found.
	ErrTypeNoToken ValidationErrorType = iota
	// ErrTypeNoChannel indicates no channel ID was configured.
	ErrTypeNoChannel
	// ErrTypeInvalidChannel indicates the channel ID is not a Discord snowflake.
	ErrTypeInvalidChannel
)

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateCredentials checks that both export credentials are present and
// that the channel ID looks like a snowflake (all digits). It does not
// contact Discord; the exporter reports rejected tokens itself.
func ValidateCredentials(token, channelID string) error {
	if strings.TrimSpace(token) == "" {
		return &ValidationError{Type: ErrTypeNoToken, Message: "missing Discord token", Err: ErrNoToken}
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return &ValidationError{Type: ErrTypeNoChannel, Message: "missing Discord channel ID"}
	}
	for _, r := range channelID {
		if r < '0' || r > '9' {
			return &ValidationError{Type: ErrTypeInvalidChannel, Message: "channel ID must be numeric"}
		}
	}
	return nil
}
