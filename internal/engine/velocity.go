package engine

import "math"

// Horizontal component of the ball's direction before normalization.
// Keeping it fixed means the bounce angle alone decides how steep the
// return is, while normalization keeps total speed constant.
const horizontalBias = 0.5

// Velocity computes the ball's velocity vector for one tick from the
// travel direction (+1 toward side 2, -1 toward side 1), the current
// speed scalar and the bounce angle in degrees.
func Velocity(direction, speed, angle float64) (vx, vy float64) {
	x := horizontalBias
	y := math.Sin(angle * math.Pi / 180)
	n := math.Hypot(x, y)
	return direction * speed * x / n, direction * speed * y / n
}
