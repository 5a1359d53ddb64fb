package enginerr

import (
	"fmt"
)

// Category classifies engine errors by how the caller must react.
// Data unavailability and invariant violations are never fatal: the caller
// takes the documented conservative fallback. External failures are logged
// and may be retried exactly once where the component documents it.
type Category string

const (
	// CategoryData covers missing market data: absent order book, unknown
	// best price, insufficient depth. Resolves to a conservative fallback.
	CategoryData Category = "DATA"

	// CategoryInvariant covers degenerate numeric inputs (zero equity,
	// collapsed stop distance). Resolves to a zero-size "skip" result.
	CategoryInvariant Category = "INVARIANT"

	// External operation failures.
	CategoryBroker      Category = "BROKER"
	CategoryPersistence Category = "PERSISTENCE"

	// CategoryConfig covers invalid constructor-time configuration.
	CategoryConfig Category = "CONFIG"
)

// RecoveryAction is the documented reaction for an error category.
type RecoveryAction string

const (
	RecoveryFallback RecoveryAction = "FALLBACK" // use conservative value, continue
	RecoverySkip     RecoveryAction = "SKIP"     // drop the operation, continue cycle
	RecoveryRetry    RecoveryAction = "RETRY"    // single retry, then surface
	RecoveryStop     RecoveryAction = "STOP"     // misconfiguration, do not trade
)

// Error is a categorized engine error with component and operation context.
type Error struct {
	Category   Category
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether the operation may be attempted again.
// Only external failures are ever retryable, and the trace store limits
// itself to a single reconnect retry.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// Recovery returns the documented reaction for this error.
func (e *Error) Recovery() RecoveryAction {
	switch e.Category {
	case CategoryData:
		return RecoveryFallback
	case CategoryInvariant:
		return RecoverySkip
	case CategoryBroker, CategoryPersistence:
		if e.Retryable {
			return RecoveryRetry
		}
		return RecoverySkip
	case CategoryConfig:
		return RecoveryStop
	default:
		return RecoverySkip
	}
}

// New creates a categorized error without an underlying cause.
func New(category Category, component, operation, message string) *Error {
	return &Error{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: category == CategoryBroker || category == CategoryPersistence,
	}
}

// Wrap attaches category and context to an existing error.
func Wrap(err error, category Category, component, operation string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  category == CategoryBroker || category == CategoryPersistence,
	}
}

// WithRetryable overrides the default retryability for the category.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Convenience constructors for the common cases.

func NewDataError(component, operation, message string) *Error {
	return New(CategoryData, component, operation, message)
}

func NewInvariantError(component, operation, message string) *Error {
	return New(CategoryInvariant, component, operation, message)
}

func NewBrokerError(component, operation string, err error) *Error {
	return Wrap(err, CategoryBroker, component, operation)
}

func NewPersistenceError(component, operation string, err error) *Error {
	return Wrap(err, CategoryPersistence, component, operation)
}

func NewConfigError(component, operation, message string) *Error {
	return New(CategoryConfig, component, operation, message).WithRetryable(false)
}
