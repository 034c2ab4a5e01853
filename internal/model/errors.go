package model

// ErrorKind classifies failures surfaced by the engine. Kinds are sentinel
// errors so callers can match them with errors.Is after wrapping.
type ErrorKind string

const (
	// FetchFailed marks a chain read that failed at the RPC layer.
	FetchFailed ErrorKind = "fetch failed"
	// InsufficientAllowance is a normal state, not a fault: the spender is
	// not yet approved for the requested amount.
	InsufficientAllowance ErrorKind = "insufficient allowance"
	// TransactionRejected means the user declined signing.
	TransactionRejected ErrorKind = "transaction rejected"
	// TransactionReverted means on-chain execution failed.
	TransactionReverted ErrorKind = "transaction reverted"
	// ConcurrentMutationInProgress is raised by the re-submission guard.
	ConcurrentMutationInProgress ErrorKind = "concurrent mutation in progress"
	// InvalidInput means the amount text failed the numeric grammar.
	InvalidInput ErrorKind = "invalid input"
)

func (k ErrorKind) Error() string {
	return string(k)
}
