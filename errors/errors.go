package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried by the caller
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

var classNames = map[ErrorClass]string{
	ErrorTransient: "transient",
	ErrorInvalid:   "invalid",
	ErrorFatal:     "fatal",
}

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	if name, ok := classNames[ec]; ok {
		return name
	}
	return "unknown"
}

// Lifecycle
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")
)

// Brokers
var (
	ErrNotConnected      = errors.New("not connected")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
)

// Registry and ingest
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidValue = errors.New("invalid value")
	ErrNotIncrement = errors.New("increment not supported for sensor type")
	ErrInvalidData  = errors.New("invalid data format")
)

// Configuration
var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingConfig  = errors.New("missing required configuration")
	ErrConfigNotFound = errors.New("configuration not found")
)

// sentinelClasses classifies errors nobody wrapped explicitly. First match wins.
var sentinelClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrInvalidValue, ErrorInvalid},
	{ErrNotIncrement, ErrorInvalid},
	{ErrInvalidData, ErrorInvalid},
	{ErrInvalidConfig, ErrorFatal},
	{ErrMissingConfig, ErrorFatal},
	{ErrConfigNotFound, ErrorFatal},
	{ErrNotConnected, ErrorTransient},
	{ErrConnectionLost, ErrorTransient},
	{ErrConnectionTimeout, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},
}

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// classOf finds the class of err: the outermost ClassifiedError, then
// ValidationErrors, then the sentinel table.
func classOf(err error) (ErrorClass, bool) {
	if err == nil {
		return 0, false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ErrorInvalid, true
	}
	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}
	return 0, false
}

func hasClass(err error, class ErrorClass) bool {
	c, ok := classOf(err)
	return ok && c == class
}

// IsTransient checks if an error is transient and may be retried by the caller
func IsTransient(err error) bool { return hasClass(err, ErrorTransient) }

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool { return hasClass(err, ErrorFatal) }

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool { return hasClass(err, ErrorInvalid) }

// Classify returns the error class for an error. Unclassified errors report
// ErrorTransient, although IsTransient is false for them.
func Classify(err error) ErrorClass {
	c, _ := classOf(err)
	return c
}

// IsNotFound reports whether err refers to an unknown node or sensor.
// Classification is orthogonal: a NotFound error is usually also Invalid.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}

// IsConfig reports whether err comes from loading or validating configuration.
func IsConfig(err error) bool {
	return err != nil && (errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrConfigNotFound))
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap adds context following the pattern "component.method: action failed: %w".
// An inner classification is kept.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// ValidationErrors maps a field name to the reason its value was rejected.
type ValidationErrors map[string]string

// Error implements the error interface with fields in stable order
func (ve ValidationErrors) Error() string {
	fields := make([]string, 0, len(ve))
	for field := range ve {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+ve[field])
	}
	return "invalid value: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrInvalidValue
func (ve ValidationErrors) Unwrap() error {
	return ErrInvalidValue
}
