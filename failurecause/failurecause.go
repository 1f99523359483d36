// Package failurecause provides the tagged FailureCause variants used
// throughout wrenchsim to describe recoverable and fatal error conditions.
//
// Each variant is its own struct type implementing the error interface, in
// the same shape the teacher's eventloop package uses for its ES2022-style
// error types (TypeError, RangeError, TimeoutError): a Cause/Message pair
// plus Error() and, where a chain applies, Unwrap(). Variants that need to
// carry a payload (the file that was missing, the job that was rejected,
// the service that was down) expose typed accessors rather than forcing
// callers to type-assert into an untyped field.
package failurecause

import "fmt"

// FailureCause is the common interface satisfied by every variant in this
// package. It is deliberately narrow: callers that need variant-specific
// data use a type switch or errors.As against the concrete type.
type FailureCause interface {
	error
	// isFailureCause is unexported so FailureCause can only be implemented
	// by variants declared in this package.
	isFailureCause()
}

// HostError indicates the host carrying an in-flight operation went down.
type HostError struct {
	Host string
}

func (e *HostError) Error() string { return fmt.Sprintf("host error: host %q is down", e.Host) }
func (*HostError) isFailureCause() {}

// NetworkError indicates a link failure or, if Timeout is set, a deadline
// that elapsed before a CommPort operation completed.
type NetworkError struct {
	Message string
	Timeout bool
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("network error: timeout: %s", e.Message)
	}
	return fmt.Sprintf("network error: %s", e.Message)
}
func (*NetworkError) isFailureCause() {}

// ServiceIsDown indicates a request was made to a service in the DOWN state.
type ServiceIsDown struct {
	ServiceName string
}

func (e *ServiceIsDown) Error() string {
	return fmt.Sprintf("service %q is down", e.ServiceName)
}
func (e *ServiceIsDown) Service() string { return e.ServiceName }
func (*ServiceIsDown) isFailureCause()   {}

// ServiceIsSuspended indicates a request was made to a service in the
// SUSPENDED state.
type ServiceIsSuspended struct {
	ServiceName string
}

func (e *ServiceIsSuspended) Error() string {
	return fmt.Sprintf("service %q is suspended", e.ServiceName)
}
func (e *ServiceIsSuspended) Service() string { return e.ServiceName }
func (*ServiceIsSuspended) isFailureCause()   {}

// NotEnoughResources indicates a compound job was rejected because it could
// not fit under any placement.
type NotEnoughResources struct {
	JobID       string
	ServiceName string
}

func (e *NotEnoughResources) Error() string {
	return fmt.Sprintf("not enough resources to run job %q on service %q", e.JobID, e.ServiceName)
}
func (e *NotEnoughResources) Job() string     { return e.JobID }
func (e *NotEnoughResources) Service() string { return e.ServiceName }
func (*NotEnoughResources) isFailureCause()   {}

// NotEnoughSpace indicates a LogicalFileSystem mount lacks free space for a
// createFile/writeFile reservation.
type NotEnoughSpace struct {
	MountPoint string
	Requested  int64
	Available  int64
}

func (e *NotEnoughSpace) Error() string {
	return fmt.Sprintf("not enough space at mount %q: requested %d, available %d", e.MountPoint, e.Requested, e.Available)
}
func (*NotEnoughSpace) isFailureCause() {}

// FileNotFound indicates a lookup/read/delete referenced a file absent from
// the target location.
type FileNotFound struct {
	FileID   string
	Location string
}

func (e *FileNotFound) Error() string {
	return fmt.Sprintf("file %q not found at %q", e.FileID, e.Location)
}
func (e *FileNotFound) File() string { return e.FileID }
func (*FileNotFound) isFailureCause() {}

// SomeActionsHaveFailed is the job-level cause for a DISCONTINUED
// CompoundJob: at least one action ended non-COMPLETED.
type SomeActionsHaveFailed struct {
	JobID string
}

func (e *SomeActionsHaveFailed) Error() string {
	return fmt.Sprintf("job %q: some actions have failed", e.JobID)
}
func (e *SomeActionsHaveFailed) Job() string   { return e.JobID }
func (*SomeActionsHaveFailed) isFailureCause() {}

// JobKilled is the cause attached to an action transitioned to KILLED by
// TerminateJob.
type JobKilled struct {
	JobID string
}

func (e *JobKilled) Error() string { return fmt.Sprintf("job %q was killed", e.JobID) }
func (e *JobKilled) Job() string   { return e.JobID }
func (*JobKilled) isFailureCause() {}

// JobTimeout is the cause attached when a job-level deadline elapses.
type JobTimeout struct {
	JobID string
}

func (e *JobTimeout) Error() string { return fmt.Sprintf("job %q timed out", e.JobID) }
func (e *JobTimeout) Job() string   { return e.JobID }
func (*JobTimeout) isFailureCause() {}

// InvalidArgument indicates a synchronous, caller-side validation failure —
// malformed placement hints, cyclic job graphs, out-of-range properties,
// nil arguments.
type InvalidArgument struct {
	Message string
	Cause   error
}

func (e *InvalidArgument) Error() string {
	if e.Message == "" {
		return "invalid argument"
	}
	return "invalid argument: " + e.Message
}
func (e *InvalidArgument) Unwrap() error { return e.Cause }
func (*InvalidArgument) isFailureCause() {}

// DiskFull is a lower-level cause than NotEnoughSpace, used by the disk
// model itself (as opposed to the LogicalFileSystem reservation layer).
type DiskFull struct {
	Disk string
}

func (e *DiskFull) Error() string { return fmt.Sprintf("disk %q is full", e.Disk) }
func (*DiskFull) isFailureCause() {}

// FunctionalityNotAvailable indicates a service was asked to do something
// it does not support (e.g. a FileCopy action kind on a compute service that
// cannot run it).
type FunctionalityNotAvailable struct {
	Message string
}

func (e *FunctionalityNotAvailable) Error() string { return "functionality not available: " + e.Message }
func (*FunctionalityNotAvailable) isFailureCause() {}

// ExecutionError is the uniform cross-boundary error type every public
// service method returns. Internally, FailureCause values flow as plain
// return values or as fields on the action state machine; ExecutionError is
// the single wrapper constructed at a service's public boundary, per the
// design note in SPEC_FULL.md §7.
type ExecutionError struct {
	Cause FailureCause
}

func (e *ExecutionError) Error() string {
	if e.Cause == nil {
		return "execution error"
	}
	return e.Cause.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Wrap constructs an *ExecutionError from a FailureCause, or returns nil if
// cause is nil (so callers can write `return Wrap(cause)` unconditionally
// from a helper that may or may not have found an error).
func Wrap(cause FailureCause) error {
	if cause == nil {
		return nil
	}
	return &ExecutionError{Cause: cause}
}
