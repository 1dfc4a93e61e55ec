package solana

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrInvalidKeyFormat is returned when a private key cannot be parsed from
	// any of the supported representations.
	ErrInvalidKeyFormat = errors.New("invalid key format")

	// ErrNoViableAddress is returned when every bump seed produced an on-curve point.
	ErrNoViableAddress = errors.New("unable to find a viable program address")

	// ErrEmptyTransaction is returned when compiling a message without instructions.
	ErrEmptyTransaction = errors.New("transaction has no instructions")

	// ErrTooManyAccounts is returned when a message references more accounts
	// than a single transaction can carry.
	ErrTooManyAccounts = errors.New("transaction references too many accounts")

	// ErrSimulationFailed wraps every SimulationError.
	ErrSimulationFailed = errors.New("simulation failed")

	// ErrTransactionFailed wraps every TransactionError.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrConfirmationTimedOut is returned when a signature did not reach the
	// target commitment before the deadline. Callers may resubmit with a fresh blockhash.
	ErrConfirmationTimedOut = errors.New("confirmation timed out")

	// ErrBalanceTimeout is returned when an expected deposit never arrived.
	ErrBalanceTimeout = errors.New("balance did not arrive in time")

	// ErrBlockhashExpired is returned when the blockhash kept expiring before submission.
	ErrBlockhashExpired = errors.New("blockhash expired before submission")

	// ErrFeeOverflow is returned when a priority fee does not fit in 64 bits.
	ErrFeeOverflow = errors.New("priority fee overflows u64")

	// ErrMissingSigner is returned when a required signer was not provided.
	ErrMissingSigner = errors.New("missing signer for required signature")
)

// SimulationError carries the program-reported reason of a failed simulation.
type SimulationError struct {
	Reason string
	Logs   []string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed: %s", e.Reason)
}

func (e *SimulationError) Unwrap() error { return ErrSimulationFailed }

// TransactionError is an on-chain rejection of a submitted transaction.
type TransactionError struct {
	Signature solana.Signature
	Reason    string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Signature, e.Reason)
}

func (e *TransactionError) Unwrap() error { return ErrTransactionFailed }

// TransientNetworkError marks an I/O failure talking to the RPC node.
type TransientNetworkError struct {
	Method string
	Err    error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("rpc %s: %v", e.Method, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

func transient(method string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientNetworkError{Method: method, Err: err}
}

// IsRetryable reports whether err describes a condition the caller may retry:
// a confirmation timeout or a transient network failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfirmationTimedOut) {
		return true
	}
	var netErr *TransientNetworkError
	return errors.As(err, &netErr)
}
