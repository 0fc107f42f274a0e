// Package counter implements the per-exercise repetition counting state
// machine.
//
// Each frame yields one scalar metric (a joint angle or a joint distance).
// The stage flips to down once the metric reaches the exercise's down
// threshold and a repetition is credited when it climbs back to the up
// threshold. Frames without a usable pose leave the state untouched.
//
// State is a plain value: callers own one State per session and thread it
// through Update. Nothing in this package is safe for concurrent use on the
// same State.
package counter

import (
	"fmt"
	"math"

	"github.com/bdougie/repcount/internal/pose"
)

// State is the mutable part of one counting session.
type State struct {
	Stage Stage
	Count int
	// Metric is the last successfully measured value, kept so overlays can
	// keep showing it across frames with no pose.
	Metric    float64
	HasMetric bool
}

// NewState returns the state at session start.
func NewState() State {
	return State{Stage: StageNone}
}

// Counter applies a threshold table to landmark frames.
type Counter struct {
	table         Table
	minVisibility float64

	width, height float64
}

// Option configures a Counter.
type Option func(*Counter)

// WithMinVisibility ignores joints whose reported visibility is below v.
func WithMinVisibility(v float64) Option {
	return func(c *Counter) {
		c.minVisibility = v
	}
}

// WithFrameSize treats landmarks as normalised [0, 1] coordinates and
// scales them to a width by height frame before measuring. Non-positive sizes
// are ignored.
func WithFrameSize(width, height float64) Option {
	return func(c *Counter) {
		if width > 0 && height > 0 {
			c.width, c.height = width, height
		}
	}
}

// New returns a Counter for the given table. A nil table means DefaultTable.
func New(table Table, opts ...Option) (*Counter, error) {
	if table == nil {
		table = DefaultTable()
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	c := &Counter{table: table.Clone()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Rule returns the counting rule for kind.
func (c *Counter) Rule(kind Kind) (Rule, bool) {
	r, ok := c.table[kind]
	return r, ok
}

// Update advances state by one frame and returns the new state together with
// the metric to display. When the pose or a required joint is missing the
// prior state is returned unchanged and the display value is the last known
// metric.
func (c *Counter) Update(kind Kind, lms pose.Landmarks, state State) (State, float64) {
	next, m, _ := c.Advance(kind, lms, state)
	return next, m
}

// Advance is Update that also reports whether the frame was measured. A
// false result means the frame was skipped.
func (c *Counter) Advance(kind Kind, lms pose.Landmarks, state State) (State, float64, bool) {
	rule, ok := c.table[kind]
	if !ok {
		return state, state.Metric, false
	}
	if c.width > 0 {
		lms = lms.Scale(c.width, c.height)
	}
	m, ok := rule.Measure(lms, c.minVisibility)
	if !ok {
		return state, state.Metric, false
	}
	return Step(rule, m, state), m, true
}

var defaultCounter, _ = New(DefaultTable())

// Update runs one frame against DefaultTable.
func Update(kind Kind, lms pose.Landmarks, state State) (State, float64) {
	return defaultCounter.Update(kind, lms, state)
}

// Step applies one metric reading to state. At most one transition happens
// per call, so Count grows by at most one.
func Step(rule Rule, m float64, state State) State {
	switch {
	case state.Stage != StageDown && m <= rule.Down:
		state.Stage = StageDown
	case state.Stage == StageDown && m >= rule.Up:
		state.Stage = StageUp
		state.Count++
	}
	state.Metric = m
	state.HasMetric = true
	return state
}

// Overlay is the text drawn over a frame.
type Overlay struct {
	Reps  string `json:"reps"`
	Angle string `json:"angle,omitempty"`
	Stage string `json:"stage,omitempty"`
}

// DisplayText formats the rep counter and the current metric for the frame
// overlay. The metric is omitted until one has been measured.
func DisplayText(state State) Overlay {
	o := Overlay{
		Reps:  fmt.Sprintf("REPS %d", state.Count),
		Stage: state.Stage.String(),
	}
	if state.HasMetric {
		o.Angle = fmt.Sprintf("%d", int(math.Round(state.Metric)))
	}
	return o
}
