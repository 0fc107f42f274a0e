// Package pose holds the body landmark model produced by an external pose
// estimator and the joint geometry computed from it.
package pose

// Body landmark indices following the MediaPipe pose topology.
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// Point is a single joint position. Visibility is nil when the estimator
// does not report it; a reported 0 means fully occluded.
//
// Coordinates are in pixels of the source frame unless the counter is given a
// frame size, in which case they are taken as normalised [0, 1] values.
type Point struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z,omitempty"`
	Visibility *float64 `json:"visibility,omitempty"`
}

// WithVisibility returns a copy of p with a reported visibility of v.
func (p Point) WithVisibility(v float64) Point {
	p.Visibility = &v
	return p
}

// Unset reports whether p is the zero point with no visibility, which is how
// a joint the estimator never filled in arrives.
func (p Point) Unset() bool {
	return p.X == 0 && p.Y == 0 && p.Z == 0 && p.Visibility == nil
}

// Landmarks is the ordered joint set for one frame. A nil or empty set means
// no body was detected.
type Landmarks []Point

// Detected reports whether the estimator found a body in the frame.
func (l Landmarks) Detected() bool {
	return len(l) > 0
}

// Lookup resolves joint i. It fails when the index is out of range or when
// the estimator reported a visibility below minVisibility. Joints without a
// reported visibility always resolve.
func (l Landmarks) Lookup(i int, minVisibility float64) (Point, bool) {
	if i < 0 || i >= len(l) {
		return Point{}, false
	}
	p := l[i]
	if p.Visibility != nil && *p.Visibility < minVisibility {
		return Point{}, false
	}
	return p, true
}

// LookupAll resolves every index in order, failing if any joint is missing.
func (l Landmarks) LookupAll(minVisibility float64, idx ...int) ([]Point, bool) {
	points := make([]Point, 0, len(idx))
	for _, i := range idx {
		p, ok := l.Lookup(i, minVisibility)
		if !ok {
			return nil, false
		}
		points = append(points, p)
	}
	return points, true
}

// Scale returns a copy with x multiplied by width and y by height, turning
// normalised estimator output into frame pixels.
func (l Landmarks) Scale(width, height float64) Landmarks {
	if l == nil {
		return nil
	}
	out := make(Landmarks, len(l))
	for i, p := range l {
		p.X *= width
		p.Y *= height
		out[i] = p
	}
	return out
}
