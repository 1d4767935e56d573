package domain

// ErrorCode is a stable machine-readable failure code.
type ErrorCode string

const (
	ErrCodeInvalidName      ErrorCode = "INVALID_NAME"
	ErrCodeInvalidSlug      ErrorCode = "INVALID_SLUG"
	ErrCodeQueueNotActive   ErrorCode = "QUEUE_NOT_ACTIVE"
	ErrCodeQueuePaused      ErrorCode = "QUEUE_PAUSED"
	ErrCodeQueueFull        ErrorCode = "QUEUE_FULL"
	ErrCodeQueueEmpty       ErrorCode = "QUEUE_EMPTY"
	ErrCodeNotCalled        ErrorCode = "NOT_CALLED"
	ErrCodeCustomerNotFound ErrorCode = "CUSTOMER_NOT_FOUND"
	ErrCodeAlreadyCompleted ErrorCode = "ALREADY_COMPLETED"
	ErrCodeConflict         ErrorCode = "CONFLICT"
)

// Error is an expected, caller-facing domain failure. Operations on the
// queue aggregate return these rather than panicking; only internal
// invariant violations (a bug in the aggregate itself) panic.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches domain errors by code so errors.Is works against the
// sentinel values regardless of message wording.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidName      = &Error{Code: ErrCodeInvalidName, Message: "name must be between 1 and 100 characters"}
	ErrInvalidSlug      = &Error{Code: ErrCodeInvalidSlug, Message: "slug must not be blank"}
	ErrQueueNotActive   = &Error{Code: ErrCodeQueueNotActive, Message: "queue is not active"}
	ErrQueuePaused      = &Error{Code: ErrCodeQueuePaused, Message: "queue is paused and not accepting new customers"}
	ErrQueueFull        = &Error{Code: ErrCodeQueueFull, Message: "queue is full"}
	ErrQueueEmpty       = &Error{Code: ErrCodeQueueEmpty, Message: "no customers waiting"}
	ErrNotCalled        = &Error{Code: ErrCodeNotCalled, Message: "customer not in called state"}
	ErrCustomerNotFound = &Error{Code: ErrCodeCustomerNotFound, Message: "customer not found"}
	ErrAlreadyCompleted = &Error{Code: ErrCodeAlreadyCompleted, Message: "customer already completed"}
	ErrConflict         = &Error{Code: ErrCodeConflict, Message: "queue was modified concurrently, please retry"}
)
