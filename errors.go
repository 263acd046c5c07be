package velo

import (
	"github.com/AzozzALFiras/velo/internal/aggregator"
	"github.com/AzozzALFiras/velo/internal/app"
)

// Errors returned by Client operations. Test for them with errors.Is.
var (
	// ErrSessionNotAvailable indicates there is no usable runner for the target
	ErrSessionNotAvailable = app.ErrSessionNotAvailable

	// ErrServiceNotFound indicates no application definition matches an id
	ErrServiceNotFound = app.ErrServiceNotFound

	// ErrLoadFailed indicates a section's required probe failed outright
	ErrLoadFailed = app.ErrLoadFailed

	// ErrNotSupported indicates a section or operation the application lacks
	ErrNotSupported = app.ErrNotSupported

	// ErrStateClosed indicates the client discarded the application state
	ErrStateClosed = app.ErrStateClosed

	// ErrInvalidName indicates a database, site or package name that cannot
	// be used in a command
	ErrInvalidName = aggregator.ErrInvalidName
)

// Wrapper error types, for errors.As
type (
	SectionError = app.SectionError
	ServiceError = app.ServiceError
	MultiError   = app.MultiError
	HostError    = aggregator.HostError
)

// IsUserVisible reports whether err is shown to users as is: an unsupported
// section or a missing session
func IsUserVisible(err error) bool {
	return app.IsUserVisible(err)
}
