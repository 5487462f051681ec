package gesture

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylla/agenda/internal/app"
	"github.com/hylla/agenda/internal/domain"
)

type transitionCall struct {
	id domain.TaskID
	to domain.WorkflowState
}

type fakeBoard struct {
	states map[domain.TaskID]domain.WorkflowState
	calls  []transitionCall
	err    error
}

func (f *fakeBoard) TaskState(id domain.TaskID) (domain.WorkflowState, bool) {
	s, ok := f.states[id]
	return s, ok
}

func (f *fakeBoard) RequestTransition(id domain.TaskID, to domain.WorkflowState) (*app.Transition, error) {
	f.calls = append(f.calls, transitionCall{id: id, to: to})
	if f.err != nil {
		return nil, f.err
	}
	f.states[id] = to
	return &app.Transition{TaskID: id, To: to}, nil
}

// threeColumns lays out OPEN, IN_PROGRESS and DONE as 20-wide columns on rows 0-29.
var threeColumns = TargetsFunc(func(p Point) (domain.WorkflowState, bool) {
	if p.Y < 0 || p.Y >= 30 || p.X < 0 || p.X >= 60 {
		return "", false
	}
	return domain.WorkflowStates[p.X/20], true
})

func newTestController(t *testing.T) (*Controller, *fakeBoard) {
	t.Helper()
	board := &fakeBoard{states: map[domain.TaskID]domain.WorkflowState{
		"1": domain.StateOpen,
		"2": domain.StateDone,
	}}
	return NewController(board, threeColumns, Config{}), board
}

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func TestDefaultConfig(t *testing.T) {
	c, _ := newTestController(t)
	cfg := c.Config()
	assert.Equal(t, 5.0, cfg.PointerDistance)
	assert.Equal(t, 100*time.Millisecond, cfg.TouchDelay)
	assert.Equal(t, 8.0, cfg.TouchTolerance)
}

func TestPointerDropOnOtherColumnRequestsTransition(t *testing.T) {
	c, board := newTestController(t)

	out := c.Press("1", Point{X: 5, Y: 5}, Pointer, t0)
	require.Equal(t, Started, out.Kind)
	assert.Equal(t, Pending, c.Phase())

	out = c.Move(Point{X: 8, Y: 5}, t0)
	assert.Equal(t, None, out.Kind)
	assert.Equal(t, Pending, c.Phase(), "3 cells is below the activation distance")

	out = c.Move(Point{X: 25, Y: 5}, t0)
	require.Equal(t, Activated, out.Kind)
	assert.Equal(t, Hovering, c.Phase())
	target, ok := c.Target()
	require.True(t, ok)
	assert.Equal(t, domain.StateInProgress, target)
	assert.Equal(t, Point{X: 20, Y: 0}, c.Offset())
	assert.Empty(t, board.calls, "hovering must not mutate")

	out = c.Release(Point{X: 25, Y: 6}, t0)
	require.Equal(t, Dropped, out.Kind)
	require.NotNil(t, out.Transition)
	assert.Equal(t, []transitionCall{{id: "1", to: domain.StateInProgress}}, board.calls)
	assert.Equal(t, Idle, c.Phase())
}

func TestDropOnOwnColumnIsNoop(t *testing.T) {
	c, board := newTestController(t)
	c.Press("1", Point{X: 2, Y: 2}, Pointer, t0)
	c.Move(Point{X: 2, Y: 12}, t0)
	out := c.Release(Point{X: 2, Y: 12}, t0)
	assert.Equal(t, Noop, out.Kind)
	assert.Empty(t, board.calls)
	assert.False(t, c.Active())
}

func TestReleaseOutsideColumnsCancels(t *testing.T) {
	c, board := newTestController(t)
	c.Press("1", Point{X: 2, Y: 2}, Pointer, t0)
	out := c.Move(Point{X: 2, Y: 40}, t0)
	assert.Equal(t, Activated, out.Kind)
	assert.Equal(t, Dragging, c.Phase())
	_, hovering := c.Target()
	assert.False(t, hovering)

	out = c.Release(Point{X: 2, Y: 40}, t0)
	assert.Equal(t, Cancelled, out.Kind)
	assert.Empty(t, board.calls)
}

func TestCancelAbortsWithoutMutation(t *testing.T) {
	c, board := newTestController(t)
	c.Press("1", Point{X: 2, Y: 2}, Pointer, t0)
	c.Move(Point{X: 45, Y: 2}, t0)
	require.Equal(t, Hovering, c.Phase())

	out := c.Cancel()
	assert.Equal(t, Cancelled, out.Kind)
	assert.Equal(t, domain.TaskID("1"), out.TaskID)
	assert.Equal(t, Idle, c.Phase())
	assert.Empty(t, board.calls)
	assert.Equal(t, None, c.Cancel().Kind)
}

func TestReleaseBeforeActivationIsClick(t *testing.T) {
	c, board := newTestController(t)
	c.Press("2", Point{X: 45, Y: 3}, Pointer, t0)
	c.Move(Point{X: 47, Y: 4}, t0)
	out := c.Release(Point{X: 47, Y: 4}, t0)
	assert.Equal(t, Click, out.Kind)
	assert.Equal(t, domain.TaskID("2"), out.TaskID)
	assert.Empty(t, board.calls)
}

func TestSecondPressIgnoredWhileActive(t *testing.T) {
	c, _ := newTestController(t)
	c.Press("1", Point{X: 2, Y: 2}, Pointer, t0)
	c.Move(Point{X: 30, Y: 2}, t0)

	out := c.Press("2", Point{X: 45, Y: 2}, Pointer, t0)
	assert.Equal(t, Ignored, out.Kind)
	assert.Equal(t, domain.TaskID("1"), c.TaskID())
	assert.Equal(t, Hovering, c.Phase())
}

func TestPressOnUnknownTaskIgnored(t *testing.T) {
	c, _ := newTestController(t)
	assert.Equal(t, Ignored, c.Press("missing", Point{}, Pointer, t0).Kind)
	assert.False(t, c.Active())
}

func TestTouchActivatesAfterHoldDelay(t *testing.T) {
	c, board := newTestController(t)
	c.Press("1", Point{X: 5, Y: 5}, Touch, t0)

	out := c.Move(Point{X: 9, Y: 5}, t0.Add(40*time.Millisecond))
	assert.Equal(t, None, out.Kind)
	assert.Equal(t, Pending, c.Phase(), "touch waits for the hold delay even past the pointer distance")

	out = c.Tick(t0.Add(99 * time.Millisecond))
	assert.Equal(t, Pending, c.Phase())
	out = c.Tick(t0.Add(100 * time.Millisecond))
	assert.Equal(t, Activated, out.Kind)

	c.Move(Point{X: 50, Y: 5}, t0.Add(300*time.Millisecond))
	out = c.Release(Point{X: 50, Y: 5}, t0.Add(400*time.Millisecond))
	require.Equal(t, Dropped, out.Kind)
	assert.Equal(t, []transitionCall{{id: "1", to: domain.StateDone}}, board.calls)
}

func TestTouchHeldThenMovedActivates(t *testing.T) {
	c, board := newTestController(t)
	c.Press("1", Point{X: 5, Y: 5}, Touch, t0)

	out := c.Move(Point{X: 30, Y: 5}, t0.Add(200*time.Millisecond))
	require.Equal(t, Activated, out.Kind, "movement after the hold delay drags without a prior Tick")
	assert.Equal(t, domain.StateInProgress, out.Target)

	out = c.Release(Point{X: 30, Y: 5}, t0.Add(250*time.Millisecond))
	require.Equal(t, Dropped, out.Kind)
	assert.Equal(t, []transitionCall{{id: "1", to: domain.StateInProgress}}, board.calls)
}

func TestTouchHeldThenReleasedFarDrops(t *testing.T) {
	c, board := newTestController(t)
	c.Press("1", Point{X: 5, Y: 5}, Touch, t0)

	out := c.Release(Point{X: 50, Y: 5}, t0.Add(150*time.Millisecond))
	require.Equal(t, Dropped, out.Kind)
	assert.Equal(t, []transitionCall{{id: "1", to: domain.StateDone}}, board.calls)
}

func TestTouchMovingBeyondToleranceAborts(t *testing.T) {
	c, board := newTestController(t)
	c.Press("1", Point{X: 5, Y: 5}, Touch, t0)
	out := c.Move(Point{X: 5, Y: 14}, t0.Add(50*time.Millisecond))
	assert.Equal(t, Aborted, out.Kind)
	assert.False(t, c.Active())

	c.Tick(t0.Add(time.Second))
	assert.False(t, c.Active())
	assert.Empty(t, board.calls)
}

func TestTouchQuickTapIsClick(t *testing.T) {
	c, _ := newTestController(t)
	c.Press("1", Point{X: 5, Y: 5}, Touch, t0)
	out := c.Release(Point{X: 6, Y: 5}, t0.Add(30*time.Millisecond))
	assert.Equal(t, Click, out.Kind)
}

func TestPointerIgnoresTick(t *testing.T) {
	c, _ := newTestController(t)
	c.Press("1", Point{X: 5, Y: 5}, Pointer, t0)
	assert.Equal(t, None, c.Tick(t0.Add(time.Hour)).Kind)
	assert.Equal(t, Pending, c.Phase())
}

func TestHoverChangeReported(t *testing.T) {
	c, _ := newTestController(t)
	c.Press("1", Point{X: 5, Y: 5}, Pointer, t0)
	c.Move(Point{X: 5, Y: 15}, t0)

	assert.Equal(t, None, c.Move(Point{X: 6, Y: 15}, t0).Kind, "same column")
	out := c.Move(Point{X: 26, Y: 15}, t0)
	assert.Equal(t, HoverChanged, out.Kind)
	assert.Equal(t, domain.StateInProgress, out.Target)
	out = c.Move(Point{X: 26, Y: 45}, t0)
	assert.Equal(t, HoverChanged, out.Kind)
	assert.Equal(t, Dragging, c.Phase())
}

func TestFailedTransitionRequestReported(t *testing.T) {
	c, board := newTestController(t)
	board.err = errors.New("boom")
	c.Press("1", Point{X: 5, Y: 5}, Pointer, t0)
	c.Move(Point{X: 45, Y: 5}, t0)
	out := c.Release(Point{X: 45, Y: 5}, t0)
	assert.Equal(t, Failed, out.Kind)
	assert.EqualError(t, out.Err, "boom")
	assert.False(t, c.Active())
}

func TestSetConfigAppliesCustomDistance(t *testing.T) {
	c, _ := newTestController(t)
	c.SetConfig(Config{PointerDistance: 2})
	assert.Equal(t, 2.0, c.Config().PointerDistance)
	assert.Equal(t, 100*time.Millisecond, c.Config().TouchDelay)

	c.Press("1", Point{X: 5, Y: 5}, Pointer, t0)
	assert.Equal(t, Activated, c.Move(Point{X: 7, Y: 5}, t0).Kind)
}
