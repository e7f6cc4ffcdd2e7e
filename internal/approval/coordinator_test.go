package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/cmdgate/internal/classify"
	"github.com/opencode-ai/cmdgate/internal/policy"
)

// fakeClock is a manually advanced clock for deterministic timeout tests.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	f.waiters = append(f.waiters, fakeWaiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

func (f *fakeClock) waiterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// Advance moves the clock forward and fires every waiter that came due.
func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	var remaining []fakeWaiter
	for _, w := range f.waiters {
		if !w.deadline.After(f.now) {
			w.ch <- f.now
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining
	f.mu.Unlock()
}

func testRequest(id string) Request {
	return Request{
		ID:          id,
		ProjectPath: "/tmp/project",
		FeatureID:   "feat-1",
		Command:     classify.Classify("npm install"),
	}
}

// start runs RequestApproval in a goroutine and waits until the request
// is registered in the pending table.
func start(t *testing.T, c *Coordinator, ctx context.Context, req Request) <-chan Outcome {
	t.Helper()
	outCh := make(chan Outcome, 1)
	go func() {
		outCh <- c.RequestApproval(ctx, req)
	}()
	require.Eventually(t, func() bool {
		for _, p := range c.ListPending() {
			if p.ID == req.ID {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	return outCh
}

func TestCoordinator_DecisionResolvesCaller(t *testing.T) {
	c := NewCoordinator()
	outCh := start(t, c, context.Background(), testRequest("req-1"))

	err := c.SubmitDecision("req-1", Decision{Action: policy.ActionAllowOnce})
	require.NoError(t, err)

	out := <-outCh
	assert.Equal(t, policy.ActionAllowOnce, out.Action)
	assert.False(t, out.TimedOut)
	assert.Empty(t, c.ListPending())
}

func TestCoordinator_DoubleSubmission(t *testing.T) {
	c := NewCoordinator()
	outCh := start(t, c, context.Background(), testRequest("req-1"))

	require.NoError(t, c.SubmitDecision("req-1", Decision{Action: policy.ActionCancel}))
	assert.ErrorIs(t, c.SubmitDecision("req-1", Decision{Action: policy.ActionAllowOnce}), ErrNotFound)

	out := <-outCh
	assert.Equal(t, policy.ActionCancel, out.Action)
}

func TestCoordinator_UnknownID(t *testing.T) {
	c := NewCoordinator()
	assert.ErrorIs(t, c.SubmitDecision("never-existed", Decision{Action: policy.ActionAllowOnce}), ErrNotFound)
}

func TestCoordinator_TimeoutResolvesToCancel(t *testing.T) {
	clock := newFakeClock()
	c := NewCoordinator(WithClock(clock))
	outCh := start(t, c, context.Background(), testRequest("req-1"))

	// Wait until the caller is parked on the deadline before firing it.
	require.Eventually(t, func() bool { return clock.waiterCount() > 0 }, time.Second, time.Millisecond)
	clock.Advance(DefaultTimeout)

	out := <-outCh
	assert.Equal(t, policy.ActionCancel, out.Action)
	assert.True(t, out.TimedOut)
	assert.Empty(t, c.ListPending())

	// A late decision is reported as not found, never applied.
	assert.ErrorIs(t, c.SubmitDecision("req-1", Decision{Action: policy.ActionAllowProject}), ErrNotFound)
}

func TestCoordinator_DecisionBeforeDeadlineWins(t *testing.T) {
	clock := newFakeClock()
	c := NewCoordinator(WithClock(clock))
	outCh := start(t, c, context.Background(), testRequest("req-1"))

	clock.Advance(DefaultTimeout - time.Second)
	require.NoError(t, c.SubmitDecision("req-1", Decision{Action: policy.ActionAllowProject, RememberChoice: true}))

	out := <-outCh
	assert.Equal(t, policy.ActionAllowProject, out.Action)
	assert.True(t, out.RememberChoice)
	assert.False(t, out.TimedOut)
}

func TestCoordinator_ContextCancellation(t *testing.T) {
	c := NewCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	outCh := start(t, c, ctx, testRequest("req-1"))

	cancel()

	out := <-outCh
	assert.Equal(t, policy.ActionCancel, out.Action)
	assert.Empty(t, c.ListPending())
}

func TestCoordinator_IndependentRequests(t *testing.T) {
	c := NewCoordinator()
	ctx := context.Background()

	outA := start(t, c, ctx, testRequest("req-a"))
	outB := start(t, c, ctx, testRequest("req-b"))

	assert.Len(t, c.ListPending(), 2)

	// Requests resolve independently and in any order.
	require.NoError(t, c.SubmitDecision("req-b", Decision{Action: policy.ActionAllowOnce}))
	assert.Equal(t, policy.ActionAllowOnce, (<-outB).Action)
	assert.Len(t, c.ListPending(), 1)

	require.NoError(t, c.SubmitDecision("req-a", Decision{Action: policy.ActionCancel}))
	assert.Equal(t, policy.ActionCancel, (<-outA).Action)
	assert.Empty(t, c.ListPending())
}

func TestCoordinator_ListPendingOrder(t *testing.T) {
	clock := newFakeClock()
	c := NewCoordinator(WithClock(clock))
	ctx := context.Background()

	start(t, c, ctx, testRequest("req-1"))
	clock.Advance(time.Second)
	start(t, c, ctx, testRequest("req-2"))

	pending := c.ListPending()
	require.Len(t, pending, 2)
	assert.Equal(t, "req-1", pending[0].ID)
	assert.Equal(t, "req-2", pending[1].ID)
}

func TestCoordinator_GeneratesID(t *testing.T) {
	c := NewCoordinator()
	req := testRequest("")

	outCh := make(chan Outcome, 1)
	go func() {
		outCh <- c.RequestApproval(context.Background(), req)
	}()

	var got Request
	require.Eventually(t, func() bool {
		pending := c.ListPending()
		if len(pending) == 1 {
			got = pending[0]
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	assert.NotEmpty(t, got.ID)
	require.NoError(t, c.SubmitDecision(got.ID, Decision{Action: policy.ActionCancel}))
	<-outCh
}
