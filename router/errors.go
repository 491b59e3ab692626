package router

import (
	"fmt"
	"strings"

	"github.com/studyos/aigateway"
	"github.com/studyos/aigateway/utils/array"
)

// UnknownTaskError reports a task with no configured route.
type UnknownTaskError struct {
	Task aigateway.Task
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("no route configured for task %q", e.Task)
}

// SafetyLockError reports that the gateway-wide kill switch is engaged.
type SafetyLockError struct{}

func (e *SafetyLockError) Error() string {
	return "gateway is locked; all requests are rejected"
}

// CandidateFailure is why one candidate in the chain did not produce a
// response. Reason never contains key secrets.
type CandidateFailure struct {
	Candidate aigateway.Candidate
	Reason    string
}

// AllCandidatesFailedError reports that every candidate in the resolved
// chain was skipped or failed, with per-candidate reasons in chain order.
type AllCandidatesFailedError struct {
	Task     aigateway.Task
	Failures []CandidateFailure
}

func (e *AllCandidatesFailedError) Error() string {
	reasons := array.Map(e.Failures, func(failure CandidateFailure) string {
		return fmt.Sprintf("%s: %s", failure.Candidate, failure.Reason)
	})
	return fmt.Sprintf("all candidates failed for task %q: [%s]", e.Task, strings.Join(reasons, "; "))
}

// StreamInterruptedError reports an upstream failure after response bytes
// were already relayed to the client. No retry is possible at that point.
type StreamInterruptedError struct {
	Candidate aigateway.Candidate
	Err       error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream from %s interrupted: %v", e.Candidate, e.Err)
}

func (e *StreamInterruptedError) Unwrap() error {
	return e.Err
}
