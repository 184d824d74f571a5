// Package credential owns the identity provider credential lifecycle. The
// credential is read once per process; a missing or malformed credential is
// not a startup failure but a Failed state that the handler reports on every
// request.
package credential

import (
	"meteonotify/internal/external"
)

// Status is the outcome of credential initialization.
type Status string

const (
	StatusReady  Status = "ready"
	StatusFailed Status = "failed"
)

// Failure reasons.
const (
	ReasonMissing       = "missing credential"
	ReasonCorrupt       = "corrupt credential"
	ReasonClientFailure = "identity client construction failed"
)

// State is the immutable result of credential initialization. A Ready state
// always carries a Directory; a Failed state never does.
type State struct {
	status    Status
	reason    string
	directory external.Directory
}

// Ready returns a State bound to dir.
func Ready(dir external.Directory) *State {
	return &State{status: StatusReady, directory: dir}
}

// Failed returns a State that records why initialization failed.
func Failed(reason string) *State {
	return &State{status: StatusFailed, reason: reason}
}

// Ready reports whether the directory is usable.
func (s *State) Ready() bool {
	return s != nil && s.status == StatusReady
}

// Status returns the initialization outcome.
func (s *State) Status() Status {
	if s == nil {
		return StatusFailed
	}
	return s.status
}

// Reason returns the failure reason, or "" when Ready.
func (s *State) Reason() string {
	if s == nil {
		return ReasonMissing
	}
	return s.reason
}

// Directory returns the bound directory, or nil when not Ready.
func (s *State) Directory() external.Directory {
	if !s.Ready() {
		return nil
	}
	return s.directory
}
