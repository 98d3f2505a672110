package bridgeerr

import "errors"

var (
	ErrNotRecognized     = errors.New("message not recognized")
	ErrParseFailure      = errors.New("text does not match grammar")
	ErrForwardedParse    = errors.New("forwarded ticket does not match grammar")
	ErrContractViolation = errors.New("contract violation")
	ErrGatewayDisabled   = errors.New("chat gateway disabled")
)
