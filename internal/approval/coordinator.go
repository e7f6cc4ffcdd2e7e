package approval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/cmdgate/internal/event"
	"github.com/opencode-ai/cmdgate/internal/policy"
)

// Coordinator tracks pending approval requests and guarantees each one
// resolves exactly once. The pending table is the single source of truth:
// whoever removes an entry owns its resolution, so a decision racing a
// timeout can never resolve the same request twice.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest

	timeout time.Duration
	clock   Clock
}

type pendingRequest struct {
	req Request
	// decisionCh is buffered so the resolver never blocks. Exactly one
	// send can happen because a send is only legal after removing the
	// entry from the pending table.
	decisionCh chan Decision
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTimeout overrides the decision deadline.
func WithTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeout = d }
}

// WithClock injects a clock, used by tests to simulate timeouts.
func WithClock(clock Clock) CoordinatorOption {
	return func(c *Coordinator) { c.clock = clock }
}

// NewCoordinator creates a coordinator with the default 5-minute deadline.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		pending: make(map[string]*pendingRequest),
		timeout: DefaultTimeout,
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestApproval registers the request, broadcasts it to subscribed
// operators, and suspends the caller until a decision arrives or the
// deadline elapses. Timeout and context cancellation both resolve to
// cancel: the command fails closed instead of hanging.
func (c *Coordinator) RequestApproval(ctx context.Context, req Request) Outcome {
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = c.clock.Now()
	}

	p := &pendingRequest{
		req:        req,
		decisionCh: make(chan Decision, 1),
	}

	c.mu.Lock()
	c.pending[req.ID] = p
	c.mu.Unlock()

	event.Publish(event.Event{
		Type: event.ApprovalRequested,
		Data: event.ApprovalRequestedData{
			ID:          req.ID,
			ProjectPath: req.ProjectPath,
			FeatureID:   req.FeatureID,
			WorktreeID:  req.WorktreeID,
			Command:     req.Command.Original,
			RiskLevel:   string(req.Command.RiskLevel),
			Request:     req,
		},
	})

	select {
	case d := <-p.decisionCh:
		return Outcome{Action: d.Action, RememberChoice: d.RememberChoice}

	case <-c.clock.After(c.timeout):
		if c.remove(req.ID) {
			c.publishResolved(req.ID, policy.ActionCancel, true)
			return Outcome{Action: policy.ActionCancel, TimedOut: true}
		}
		// A decision won the race; it is already in the channel.
		d := <-p.decisionCh
		return Outcome{Action: d.Action, RememberChoice: d.RememberChoice}

	case <-ctx.Done():
		if c.remove(req.ID) {
			c.publishResolved(req.ID, policy.ActionCancel, false)
			return Outcome{Action: policy.ActionCancel}
		}
		d := <-p.decisionCh
		return Outcome{Action: d.Action, RememberChoice: d.RememberChoice}
	}
}

// SubmitDecision resolves a pending request. Submitting a decision for an
// id that is unknown or already resolved returns ErrNotFound; a late
// decision after a timeout takes this path rather than resolving twice.
func (c *Coordinator) SubmitDecision(id string, decision Decision) error {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	p.decisionCh <- decision
	c.publishResolved(id, decision.Action, false)
	return nil
}

// ListPending returns a snapshot of outstanding requests, oldest first.
// Operators reconnecting after losing the push channel use this to
// reconcile their view.
func (c *Coordinator) ListPending() []Request {
	c.mu.Lock()
	reqs := make([]Request, 0, len(c.pending))
	for _, p := range c.pending {
		reqs = append(reqs, p.req)
	}
	c.mu.Unlock()

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Timestamp.Equal(reqs[j].Timestamp) {
			return reqs[i].ID < reqs[j].ID
		}
		return reqs[i].Timestamp.Before(reqs[j].Timestamp)
	})
	return reqs
}

// remove deletes id from the pending table, reporting whether the caller
// won ownership of the resolution.
func (c *Coordinator) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

func (c *Coordinator) publishResolved(id string, action policy.Action, timedOut bool) {
	event.Publish(event.Event{
		Type: event.ApprovalResolved,
		Data: event.ApprovalResolvedData{
			ID:       id,
			Action:   string(action),
			TimedOut: timedOut,
		},
	})
}
