// Package approval manages the lifecycle of human approval requests for
// blocked commands: register, broadcast, suspend the caller, resolve
// exactly once by decision or timeout.
package approval

import (
	"errors"
	"time"

	"github.com/opencode-ai/cmdgate/internal/classify"
	"github.com/opencode-ai/cmdgate/internal/policy"
)

// ErrNotFound is returned when a decision references an approval id that
// is unknown, already resolved, or expired.
var ErrNotFound = errors.New("approval request not found")

// DefaultTimeout is how long a request waits for a human decision before
// it auto-resolves to cancel.
const DefaultTimeout = 5 * time.Minute

// Request is one pending approval. It lives only in memory; a process
// restart drops all pending requests and their callers see a cancel.
type Request struct {
	ID          string           `json:"id"`
	FeatureID   string           `json:"featureID,omitempty"`
	WorktreeID  string           `json:"worktreeID,omitempty"`
	ProjectPath string           `json:"projectPath"`
	Command     classify.Command `json:"command"`
	Timestamp   time.Time        `json:"timestamp"`
	Options     []policy.Option  `json:"options"`
}

// Decision is an operator's response to a request. RememberChoice is
// honored only for allow-project.
type Decision struct {
	Action         policy.Action `json:"action"`
	RememberChoice bool          `json:"rememberChoice,omitempty"`
}

// Outcome is what a suspended caller receives once its request resolves.
type Outcome struct {
	Action         policy.Action
	RememberChoice bool
	TimedOut       bool
}

// Clock abstracts time so timeout behavior is testable.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
