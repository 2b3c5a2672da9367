package bundlecore

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrRelayTransport marks network or protocol failures talking to the relay.
	ErrRelayTransport = errors.New("relay transport")
	// ErrSigningEscalated is returned when signing keeps failing on consecutive attempts.
	ErrSigningEscalated = errors.New("signing failed on too many consecutive attempts")
	// ErrAttemptsExhausted is returned when a bounded policy runs out of attempts.
	ErrAttemptsExhausted = errors.New("submission attempts exhausted")
	// ErrSubscriptionClosed is returned when the head subscription ends without an error.
	ErrSubscriptionClosed = errors.New("head subscription closed")
)

// EstimationError reports which transfer could not be estimated.
type EstimationError struct {
	Index   int // position of Spec in the configured list
	Spec    *TransferSpec
	TokenID *big.Int
	Err     error
}

func (e *EstimationError) Error() string {
	if e.TokenID != nil {
		return fmt.Sprintf("estimate gas for transfer #%d %s id=%s: %v", e.Index, e.Spec, e.TokenID, e.Err)
	}
	return fmt.Sprintf("estimate gas for transfer #%d %s: %v", e.Index, e.Spec, e.Err)
}

func (e *EstimationError) Unwrap() error { return e.Err }

// SigningError means a signer could not sign one bundle entry.
type SigningError struct {
	Index int
	Err   error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign bundle tx #%d: %v", e.Index, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// RelayError wraps a failed relay round trip. errors.Is(err, ErrRelayTransport) holds.
type RelayError struct {
	Op  string
	Err error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay %s: %v", e.Op, e.Err)
}

func (e *RelayError) Unwrap() []error { return []error{ErrRelayTransport, e.Err} }
