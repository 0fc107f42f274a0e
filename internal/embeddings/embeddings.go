package embeddings

import (
	"errors"

	"github.com/bdougie/repcount/internal/pose"
)

// Dimensions is the length of a pose embedding: x and y for every landmark.
const Dimensions = 2 * pose.NumLandmarks

// ErrIncompletePose is returned when the joints used for normalisation are
// missing.
var ErrIncompletePose = errors.New("pose is missing hip or shoulder landmarks")

// FromLandmarks turns a pose into a position and scale invariant vector. The
// origin is the hip midpoint and coordinates are divided by the torso length
// (hip midpoint to shoulder midpoint). Joints the estimator did not report,
// or reported below minVisibility, are encoded as zero.
func FromLandmarks(lms pose.Landmarks, minVisibility float64) ([]float32, error) {
	core, ok := lms.LookupAll(minVisibility, pose.LeftHip, pose.RightHip, pose.LeftShoulder, pose.RightShoulder)
	if !ok {
		return nil, ErrIncompletePose
	}

	hips := pose.Midpoint(core[0], core[1])
	shoulders := pose.Midpoint(core[2], core[3])

	scale := pose.Distance(hips, shoulders)
	// Avoid division by zero
	if scale < 1e-10 {
		return nil, ErrIncompletePose
	}

	vec := make([]float32, Dimensions)
	for i := 0; i < len(lms) && i < pose.NumLandmarks; i++ {
		p, ok := lms.Lookup(i, minVisibility)
		if !ok || p.Unset() {
			continue
		}
		vec[2*i] = float32((p.X - hips.X) / scale)
		vec[2*i+1] = float32((p.Y - hips.Y) / scale)
	}
	return vec, nil
}
