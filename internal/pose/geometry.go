package pose

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// DegenerateAngle is returned by Angle when a ray has zero length.
const DegenerateAngle = 180.0

func vec(p Point) r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// Angle returns the angle at vertex b formed by the rays b→a and b→c, in
// degrees within [0, 180]. Swapping a and c gives the same result.
//
// If a or c coincides with b the angle is undefined and DegenerateAngle is
// returned. Collinear points return 180 when a and c lie on opposite sides of b
// and 0 when they lie on the same side.
func Angle(a, b, c Point) float64 {
	ba := r2.Sub(vec(a), vec(b))
	bc := r2.Sub(vec(c), vec(b))
	if r2.Norm(ba) == 0 || r2.Norm(bc) == 0 {
		return DegenerateAngle
	}

	radians := math.Atan2(bc.Y, bc.X) - math.Atan2(ba.Y, ba.X)
	angle := math.Abs(radians * 180.0 / math.Pi)
	if angle > 180.0 {
		angle = 360.0 - angle
	}
	return angle
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return r2.Norm(r2.Sub(vec(a), vec(b)))
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	m := r2.Scale(0.5, r2.Add(vec(a), vec(b)))
	return Point{X: m.X, Y: m.Y}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Interp linearly maps v from [x0, x1] onto [y0, y1], clamping to the output
// range.
func Interp(v, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	t := Clamp((v-x0)/(x1-x0), 0, 1)
	return y0 + t*(y1-y0)
}
