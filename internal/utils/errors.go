package utils

import (
	"errors"
	"fmt"
	"time"
)

// Custom error types
var (
	// ErrDiscovery is returned when the migrations directory cannot be turned
	// into an ordered migration list
	ErrDiscovery = errors.New("discovery error")

	// ErrConnection is returned when the database is unreachable
	ErrConnection = errors.New("connection error")

	// ErrLockTimeout is returned when another runner holds the advisory lock
	ErrLockTimeout = errors.New("lock timeout")

	// ErrParse is returned when SQL comment/quote scanning fails
	ErrParse = errors.New("parse error")

	// ErrExecution is returned when a statement fails during a migration
	ErrExecution = errors.New("execution error")

	// ErrDuplicateVersion is returned when a tracking row for a version
	// already exists
	ErrDuplicateVersion = errors.New("duplicate version")
)

// DiscoveryError represents a problem with the migrations directory or one of
// its files, detected before any database write.
type DiscoveryError struct {
	File   string
	Reason string
	Cause  error
}

func (e *DiscoveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("discovery error in %s: %s: %v", e.File, e.Reason, e.Cause)
	}
	return fmt.Sprintf("discovery error in %s: %s", e.File, e.Reason)
}

func (e *DiscoveryError) Unwrap() error {
	return ErrDiscovery
}

// ConnectionError represents a failure to reach the database.
type ConnectionError struct {
	Attempts int
	Cause    error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("connection error after %d attempts: %v", e.Attempts, e.Cause)
	}
	return fmt.Sprintf("connection error: %v", e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return ErrConnection
}

// LockTimeoutError is returned when the advisory lock could not be acquired
// within the bounded wait.
type LockTimeoutError struct {
	Key     int64
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("another migration runner holds advisory lock %d (waited %s)", e.Key, e.Timeout)
}

func (e *LockTimeoutError) Unwrap() error {
	return ErrLockTimeout
}

// ParseError represents an ambiguity found while scanning SQL text, such as a
// quote or block comment that is never terminated.
type ParseError struct {
	Construct string
	Offset    int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: unterminated %s starting at byte %d", e.Construct, e.Offset)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// ExecutionError identifies the migration, statement index and underlying
// database error for a statement that failed mid-migration.
type ExecutionError struct {
	Version   string
	Name      string
	Statement int
	Cause     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("migration %s (%s) failed at statement %d: %v", e.Version, e.Name, e.Statement+1, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return ErrExecution
}

// DuplicateVersionError surfaces a uniqueness violation on the tracking
// table, usually a concurrent runner racing the same version.
type DuplicateVersionError struct {
	Version string
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("migration version %s is already recorded", e.Version)
}

func (e *DuplicateVersionError) Unwrap() error {
	return ErrDuplicateVersion
}

// Error wrapping functions

// WrapDiscoveryError wraps a directory or filename problem as a discovery error
func WrapDiscoveryError(file, reason string, cause error) error {
	return &DiscoveryError{
		File:   file,
		Reason: reason,
		Cause:  cause,
	}
}

// WrapConnectionError wraps an unreachable-database error
func WrapConnectionError(attempts int, cause error) error {
	return &ConnectionError{
		Attempts: attempts,
		Cause:    cause,
	}
}

// NewLockTimeoutError reports a bounded lock wait that expired
func NewLockTimeoutError(key int64, timeout time.Duration) error {
	return &LockTimeoutError{
		Key:     key,
		Timeout: timeout,
	}
}

// NewParseError reports an unterminated SQL construct
func NewParseError(construct string, offset int) error {
	return &ParseError{
		Construct: construct,
		Offset:    offset,
	}
}

// WrapExecutionError wraps a failed statement with its migration context
func WrapExecutionError(version, name string, statement int, cause error) error {
	return &ExecutionError{
		Version:   version,
		Name:      name,
		Statement: statement,
		Cause:     cause,
	}
}

// NewDuplicateVersionError reports a tracking-table uniqueness violation
func NewDuplicateVersionError(version string) error {
	return &DuplicateVersionError{
		Version: version,
	}
}

// Error checking functions

// IsDiscoveryError checks if an error is a discovery error
func IsDiscoveryError(err error) bool {
	return errors.Is(err, ErrDiscovery)
}

// IsConnectionError checks if an error is a connection error
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsLockTimeoutError checks if an error is a lock timeout
func IsLockTimeoutError(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	return errors.Is(err, ErrParse)
}

// IsExecutionError checks if an error is an execution error
func IsExecutionError(err error) bool {
	return errors.Is(err, ErrExecution)
}

// IsDuplicateVersionError checks if an error is a duplicate version error
func IsDuplicateVersionError(err error) bool {
	return errors.Is(err, ErrDuplicateVersion)
}
