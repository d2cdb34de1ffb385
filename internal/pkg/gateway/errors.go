package gateway

import (
	"errors"
	"fmt"
)

// Gateway error codes with a fixed operator-facing message. Codes not listed
// here surface the gateway's own message.
var knownCodeMessages = map[string]string{
	"resource_missing": "not found",
	"payment_method_microdeposit_verification_descriptor_code_mismatch": "incorrect code",
	"payment_method_microdeposit_verification_amounts_mismatch":         "incorrect amounts",
	"payment_method_microdeposit_verification_attempts_exceeded":        "too many verification attempts",
	"payment_intent_unexpected_state":                                   "already verified",
	"setup_intent_unexpected_state":                                     "already verified",
}

// CodeSignatureInvalid marks webhook payloads whose signature did not verify.
const CodeSignatureInvalid = "signature_invalid"

// GatewayError wraps a failed call to the payment gateway.
type GatewayError struct {
	Code    string
	Message string
	Err     error
}

// NewGatewayError builds a GatewayError, replacing the message for known codes.
func NewGatewayError(code, message string, cause error) *GatewayError {
	if mapped, ok := knownCodeMessages[code]; ok {
		message = mapped
	}
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &GatewayError{Code: code, Message: message, Err: cause}
}

func (e *GatewayError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway error: %s", e.Message)
	}
	return fmt.Sprintf("gateway error (%s): %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsGatewayError reports whether err wraps a GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// IsNotFound reports whether the gateway said the resource does not exist.
func IsNotFound(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Code == "resource_missing"
}
