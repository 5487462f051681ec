// Package gesture turns raw pointer and touch input into board transitions.
// It does not depend on any UI toolkit: callers translate their input events
// into Press, Move, Tick, Release and Cancel calls.
package gesture

import (
	"math"
	"time"

	"github.com/hylla/agenda/internal/app"
	"github.com/hylla/agenda/internal/domain"
)

// Modality identifies the physical input device driving a gesture.
type Modality int

const (
	Pointer Modality = iota
	Touch
)

func (m Modality) String() string {
	if m == Touch {
		return "touch"
	}
	return "pointer"
}

// Phase is the controller's gesture state.
type Phase int

const (
	Idle Phase = iota
	// Pending means a card was pressed but the activation rule is not met yet.
	Pending
	Dragging
	Hovering
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Dragging:
		return "dragging"
	case Hovering:
		return "hovering"
	default:
		return "idle"
	}
}

// Point is a position in the caller's coordinate space.
type Point struct {
	X, Y int
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p Point) distance(q Point) float64 {
	d := p.Sub(q)
	return math.Hypot(float64(d.X), float64(d.Y))
}

// Config holds the activation rules for each modality.
type Config struct {
	// PointerDistance is the displacement that turns a press into a drag.
	PointerDistance float64
	// TouchDelay is how long a touch must be held before it drags.
	TouchDelay time.Duration
	// TouchTolerance is the movement allowed during TouchDelay; more aborts
	// the gesture as a scroll.
	TouchTolerance float64
}

// DefaultConfig returns the standard activation rules.
func DefaultConfig() Config {
	return Config{
		PointerDistance: 5,
		TouchDelay:      100 * time.Millisecond,
		TouchTolerance:  8,
	}
}

// Board is the subset of the board state model the controller drives.
type Board interface {
	TaskState(domain.TaskID) (domain.WorkflowState, bool)
	RequestTransition(domain.TaskID, domain.WorkflowState) (*app.Transition, error)
}

// Targets resolves a position to the column under it.
type Targets interface {
	ColumnAt(Point) (domain.WorkflowState, bool)
}

// TargetsFunc adapts a function to Targets.
type TargetsFunc func(Point) (domain.WorkflowState, bool)

// ColumnAt implements Targets.
func (f TargetsFunc) ColumnAt(p Point) (domain.WorkflowState, bool) {
	return f(p)
}

// Kind classifies the result of feeding one event to the controller.
type Kind int

const (
	// None means the event changed nothing observable.
	None Kind = iota
	Started
	Activated
	HoverChanged
	Click
	Noop
	Dropped
	Cancelled
	// Aborted means a touch moved too far before activation and is treated
	// as a scroll.
	Aborted
	Ignored
	Failed
)

func (k Kind) String() string {
	return [...]string{"none", "started", "activated", "hover", "click", "noop", "dropped", "cancelled", "aborted", "ignored", "failed"}[k]
}

// Outcome describes what an input event did.
type Outcome struct {
	Kind       Kind
	TaskID     domain.TaskID
	Target     domain.WorkflowState
	Transition *app.Transition
	Err        error
}

// Controller tracks at most one gesture at a time.
type Controller struct {
	cfg     Config
	board   Board
	targets Targets

	phase    Phase
	modality Modality
	taskID   domain.TaskID
	origin   Point
	pos      Point
	pressed  time.Time
	target   domain.WorkflowState
}

// NewController constructs a new value for this package. Zero config fields
// fall back to DefaultConfig.
func NewController(board Board, targets Targets, cfg Config) *Controller {
	return &Controller{cfg: normalizeConfig(cfg), board: board, targets: targets}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.PointerDistance <= 0 {
		cfg.PointerDistance = def.PointerDistance
	}
	if cfg.TouchDelay <= 0 {
		cfg.TouchDelay = def.TouchDelay
	}
	if cfg.TouchTolerance <= 0 {
		cfg.TouchTolerance = def.TouchTolerance
	}
	return cfg
}

// Config returns the active activation rules.
func (c *Controller) Config() Config { return c.cfg }

// SetConfig replaces the activation rules. An in-progress gesture keeps going.
func (c *Controller) SetConfig(cfg Config) { c.cfg = normalizeConfig(cfg) }

// Bind replaces the drop-target resolver, typically after a relayout.
func (c *Controller) Bind(targets Targets) { c.targets = targets }

// Phase returns the current gesture state.
func (c *Controller) Phase() Phase { return c.phase }

// Active reports whether a gesture is pending or dragging.
func (c *Controller) Active() bool { return c.phase != Idle }

// Dragging reports whether the gesture has activated.
func (c *Controller) Dragging() bool { return c.phase == Dragging || c.phase == Hovering }

// TaskID returns the task being dragged.
func (c *Controller) TaskID() domain.TaskID { return c.taskID }

// Target returns the hovered column while Hovering.
func (c *Controller) Target() (domain.WorkflowState, bool) {
	if c.phase != Hovering {
		return "", false
	}
	return c.target, true
}

// Position returns the last reported position.
func (c *Controller) Position() Point { return c.pos }

// Offset returns the displacement from the press position.
func (c *Controller) Offset() Point { return c.pos.Sub(c.origin) }

// Modality returns the input modality of the current gesture.
func (c *Controller) Modality() Modality { return c.modality }

// Press starts a gesture on a task card. A press during another gesture is
// ignored.
func (c *Controller) Press(id domain.TaskID, at Point, modality Modality, now time.Time) Outcome {
	if c.phase != Idle {
		return Outcome{Kind: Ignored, TaskID: id}
	}
	if _, ok := c.board.TaskState(id); !ok {
		return Outcome{Kind: Ignored, TaskID: id}
	}
	c.phase = Pending
	c.modality = modality
	c.taskID = id
	c.origin = at
	c.pos = at
	c.pressed = now
	c.target = ""
	return Outcome{Kind: Started, TaskID: id}
}

// Move reports a new position for the active gesture.
func (c *Controller) Move(at Point, now time.Time) Outcome {
	switch c.phase {
	case Idle:
		return Outcome{}
	case Pending:
		c.pos = at
		moved := at.distance(c.origin)
		if c.modality == Pointer {
			if moved < c.cfg.PointerDistance {
				return Outcome{TaskID: c.taskID}
			}
			return c.activate()
		}
		if now.Sub(c.pressed) >= c.cfg.TouchDelay {
			return c.activate()
		}
		if moved > c.cfg.TouchTolerance {
			id := c.taskID
			c.reset()
			return Outcome{Kind: Aborted, TaskID: id}
		}
		return Outcome{TaskID: c.taskID}
	default:
		c.pos = at
		return c.hover()
	}
}

// Tick lets a held touch activate without moving.
func (c *Controller) Tick(now time.Time) Outcome {
	if c.phase != Pending || c.modality != Touch {
		return Outcome{}
	}
	if now.Sub(c.pressed) < c.cfg.TouchDelay {
		return Outcome{TaskID: c.taskID}
	}
	return c.activate()
}

// Release ends the gesture. Releasing over a column other than the task's
// current one requests a board transition.
func (c *Controller) Release(at Point, now time.Time) Outcome {
	switch c.phase {
	case Idle:
		return Outcome{}
	case Pending:
		if c.modality == Touch && now.Sub(c.pressed) >= c.cfg.TouchDelay {
			c.pos = at
			c.activate()
			return c.drop()
		}
		id := c.taskID
		c.reset()
		return Outcome{Kind: Click, TaskID: id}
	default:
		c.pos = at
		c.hover()
		return c.drop()
	}
}

// Cancel aborts the active gesture without touching the board.
func (c *Controller) Cancel() Outcome {
	if c.phase == Idle {
		return Outcome{}
	}
	id := c.taskID
	c.reset()
	return Outcome{Kind: Cancelled, TaskID: id}
}

func (c *Controller) activate() Outcome {
	c.phase = Dragging
	out := c.hover()
	out.Kind = Activated
	return out
}

func (c *Controller) hover() Outcome {
	prevPhase, prevTarget := c.phase, c.target
	state, ok := c.resolve(c.pos)
	if ok {
		c.phase = Hovering
		c.target = state
	} else {
		c.phase = Dragging
		c.target = ""
	}
	out := Outcome{TaskID: c.taskID, Target: c.target}
	if c.phase != prevPhase || c.target != prevTarget {
		out.Kind = HoverChanged
	}
	return out
}

func (c *Controller) drop() Outcome {
	id, target, hovering := c.taskID, c.target, c.phase == Hovering
	c.reset()
	if !hovering {
		return Outcome{Kind: Cancelled, TaskID: id}
	}
	current, ok := c.board.TaskState(id)
	if !ok {
		return Outcome{Kind: Cancelled, TaskID: id}
	}
	if current == target {
		return Outcome{Kind: Noop, TaskID: id, Target: target}
	}
	tr, err := c.board.RequestTransition(id, target)
	if err != nil {
		return Outcome{Kind: Failed, TaskID: id, Target: target, Err: err}
	}
	return Outcome{Kind: Dropped, TaskID: id, Target: target, Transition: tr}
}

func (c *Controller) resolve(p Point) (domain.WorkflowState, bool) {
	if c.targets == nil {
		return "", false
	}
	state, ok := c.targets.ColumnAt(p)
	if !ok || !state.Valid() {
		return "", false
	}
	return state, true
}

func (c *Controller) reset() {
	c.phase = Idle
	c.taskID = ""
	c.target = ""
	c.origin = Point{}
	c.pos = Point{}
	c.pressed = time.Time{}
}
