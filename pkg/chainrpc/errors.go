package chainrpc

import (
	"errors"
	"fmt"
	"strings"
)

// Transfer failures, classified from the node's error strings. Every kind
// except ErrNonceConflict requires operator intervention before a retry
// makes sense; ErrNonceConflict is a transient sequencing race and may be
// retried with a freshly fetched nonce.
var (
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrSenderUnknown     = errors.New("sender account not recognized by node")
	ErrSenderLocked      = errors.New("sender account locked")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNonceConflict     = errors.New("nonce conflict")
	ErrTransferFailed    = errors.New("transfer failed")
)

// Retriable reports whether the error may be resubmitted with a fresh nonce.
func Retriable(err error) bool {
	return errors.Is(err, ErrNonceConflict)
}

// classify maps a node error message onto the transfer failure taxonomy.
func classify(msg string) error {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "sender account not recognized"):
		return fmt.Errorf("%w: %s", ErrSenderUnknown, msg)
	case strings.Contains(lower, "authentication needed"),
		strings.Contains(lower, "could not unlock signer account"):
		return fmt.Errorf("%w: %s", ErrSenderLocked, msg)
	case strings.Contains(lower, "insufficient funds"):
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, msg)
	case strings.Contains(lower, "nonce too low"),
		strings.Contains(lower, "replacement transaction underpriced"):
		return fmt.Errorf("%w: %s", ErrNonceConflict, msg)
	case strings.Contains(lower, "invalid address"):
		return fmt.Errorf("%w: %s", ErrInvalidAddress, msg)
	default:
		return fmt.Errorf("%w: %s", ErrTransferFailed, msg)
	}
}
