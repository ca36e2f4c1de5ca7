package shared

// DomainError is the error type raised by domain logic. Code is a stable
// machine-readable identifier that the HTTP layer translates into API
// error codes; Message is safe to show to clients.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError builds a DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Sentinel errors shared across aggregates. Compare with errors.Is.
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")

	// ErrOwnership is deliberately generic: a denial must not reveal whether
	// the cart exists or which identity field mismatched.
	ErrOwnership = NewDomainError("OWNERSHIP_VIOLATION", "Cart not accessible")

	// ErrCartLocked signals lock contention on a cart; callers should retry
	// with backoff.
	ErrCartLocked = NewDomainError("CART_LOCKED", "Cart is busy, retry the operation")
)
