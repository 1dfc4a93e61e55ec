package orchestrator

import (
	"context"
	"errors"

	"github.com/brojonat/walletrunner/service/solana"
)

// Class tells the operator what a failed workflow needs.
type Class string

const (
	ClassNone      Class = "none"
	ClassRetryable Class = "retryable"
	ClassFatal     Class = "fatal"
	ClassCanceled  Class = "canceled"
)

// Classify maps err onto a Class. Confirmation timeouts and transient network
// failures are retryable; everything else is fatal to the wallet's cycle.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	case solana.IsRetryable(err):
		return ClassRetryable
	}
	return ClassFatal
}
