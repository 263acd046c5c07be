package app

import (
	"errors"
	"fmt"

	"github.com/AzozzALFiras/velo/internal/transport"
)

// Error taxonomy shared by providers, registries and the aggregator
var (
	// ErrSessionNotAvailable indicates there is no active remote session
	ErrSessionNotAvailable = transport.ErrSessionNotAvailable

	// ErrServiceNotFound indicates no application definition matches an id
	ErrServiceNotFound = errors.New("service not found")

	// ErrLoadFailed indicates a provider's required probe failed outright
	ErrLoadFailed = errors.New("load failed")

	// ErrNotSupported indicates no provider is registered for a section
	ErrNotSupported = errors.New("section not supported")

	// ErrStateClosed indicates the owning session discarded the state
	ErrStateClosed = errors.New("application state closed")
)

// SectionError wraps an error with the section and application it came from
type SectionError struct {
	Section ProviderType
	App     string
	Err     error
}

func (e *SectionError) Error() string {
	if e.App == "" {
		return fmt.Sprintf("section %s: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("section %s of %q: %v", e.Section, e.App, e.Err)
}

func (e *SectionError) Unwrap() error {
	return e.Err
}

// ServiceError wraps an error from a service mutation
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NotSupported returns the error for a section without a provider
func NotSupported(section ProviderType) error {
	return &SectionError{Section: section, Err: ErrNotSupported}
}

// LoadFailed returns an ErrLoadFailed carrying reason
func LoadFailed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLoadFailed, fmt.Sprintf(format, args...))
}

// ServiceNotFound returns an ErrServiceNotFound for id
func ServiceNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrServiceNotFound, id)
}

// IsUserVisible reports whether err is a configuration error that should be
// surfaced to the operator rather than rendered as an empty section.
func IsUserVisible(err error) bool {
	return errors.Is(err, ErrNotSupported) || errors.Is(err, ErrSessionNotAvailable)
}

// MultiError aggregates multiple errors from bulk operations
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}
