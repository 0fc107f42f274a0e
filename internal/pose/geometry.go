package pose

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

func vec(p Point) r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// Angle returns the directed angle in degrees at vertex b, measured from the
// ray b→a to the ray b→c and normalised into [0, 360).
func Angle(a, b, c Point) float64 {
	ba := r2.Sub(vec(a), vec(b))
	bc := r2.Sub(vec(c), vec(b))

	deg := (math.Atan2(bc.Y, bc.X) - math.Atan2(ba.Y, ba.X)) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// InteriorAngle returns the angle at vertex b folded into [0, 180].
func InteriorAngle(a, b, c Point) float64 {
	deg := Angle(a, b, c)
	if deg > 180 {
		deg = 360 - deg
	}
	return deg
}

// Distance returns the 2-D Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return r2.Norm(r2.Sub(vec(b), vec(a)))
}

// Midpoint returns the 2-D point halfway between a and b.
func Midpoint(a, b Point) Point {
	m := r2.Scale(0.5, r2.Add(vec(a), vec(b)))
	return Point{X: m.X, Y: m.Y}
}
