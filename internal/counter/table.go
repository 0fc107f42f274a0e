package counter

import (
	"errors"
	"fmt"

	"github.com/bdougie/repcount/internal/pose"
)

// ErrInvalidRule is returned by Validate for rules that cannot count.
var ErrInvalidRule = errors.New("invalid counting rule")

// Metric selects how the per-frame scalar is derived from landmarks.
type Metric int

const (
	// MetricAngle is the directed angle in [0, 360) at Joints[1].
	MetricAngle Metric = iota + 1
	// MetricInteriorAngle is the angle at Joints[1] folded into [0, 180].
	MetricInteriorAngle
	// MetricDistance is the distance between Joints[0] and Joints[1].
	MetricDistance
)

func (m Metric) String() string {
	switch m {
	case MetricAngle:
		return "angle"
	case MetricInteriorAngle:
		return "interior-angle"
	case MetricDistance:
		return "distance"
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// Rule is one row of the threshold table. The stage becomes down once the
// metric is at or below Down, and a repetition is credited once it climbs
// back to Up or above.
type Rule struct {
	Metric Metric
	Joints [3]int
	Down   float64
	Up     float64
}

func (r Rule) joints() []int {
	if r.Metric == MetricDistance {
		return r.Joints[:2]
	}
	return r.Joints[:]
}

// Measure computes the rule's metric. ok is false when a required joint is
// missing from the frame.
func (r Rule) Measure(lms pose.Landmarks, minVisibility float64) (float64, bool) {
	if !lms.Detected() {
		return 0, false
	}
	points, ok := lms.LookupAll(minVisibility, r.joints()...)
	if !ok {
		return 0, false
	}

	switch r.Metric {
	case MetricAngle:
		return pose.Angle(points[0], points[1], points[2]), true
	case MetricInteriorAngle:
		return pose.InteriorAngle(points[0], points[1], points[2]), true
	case MetricDistance:
		return pose.Distance(points[0], points[1]), true
	default:
		return 0, false
	}
}

// Validate checks that the rule can produce a reading and that the two
// thresholds leave a gap between the stages.
func (r Rule) Validate() error {
	switch r.Metric {
	case MetricAngle, MetricInteriorAngle, MetricDistance:
	default:
		return fmt.Errorf("%w: unknown metric %v", ErrInvalidRule, r.Metric)
	}
	for _, j := range r.joints() {
		if j < 0 || j >= pose.NumLandmarks {
			return fmt.Errorf("%w: joint %d out of range", ErrInvalidRule, j)
		}
	}
	if r.Down >= r.Up {
		return fmt.Errorf("%w: down threshold %.1f must be below up threshold %.1f", ErrInvalidRule, r.Down, r.Up)
	}
	return nil
}

// Table maps every exercise to its counting rule.
type Table map[Kind]Rule

// DefaultTable returns the empirically tuned thresholds. The push-up limits
// are pixel distances, so normalised landmarks need WithFrameSize. Angles do
// not depend on the unit.
func DefaultTable() Table {
	return Table{
		PushUp: {
			Metric: MetricDistance,
			Joints: [3]int{pose.RightShoulder, pose.RightWrist},
			Down:   130,
			Up:     250,
		},
		Squat: {
			Metric: MetricInteriorAngle,
			Joints: [3]int{pose.RightHip, pose.RightKnee, pose.RightAnkle},
			Down:   80,
			Up:     140,
		},
		BicepCurl: {
			Metric: MetricAngle,
			Joints: [3]int{pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist},
			Down:   230,
			Up:     310,
		},
		ShoulderPress: {
			Metric: MetricAngle,
			Joints: [3]int{pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist},
			Down:   40,
			Up:     130,
		},
	}
}

// Clone returns a copy that can be modified without touching t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, r := range t {
		out[k] = r
	}
	return out
}

// Validate checks every rule in the table.
func (t Table) Validate() error {
	for _, k := range Kinds {
		r, ok := t[k]
		if !ok {
			continue
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}
