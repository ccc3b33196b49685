// Package ramp steps an integer level from one value to another over time.
package ramp

import (
	"time"

	"clickboards-go/x/mathx"
)

// Set applies one level. Returning an error stops the ramp.
type Set func(level int) error

// Wait blocks for d.
type Wait func(d time.Duration)

// Linear moves from 'from' to 'to' in 'steps' equal increments spread over
// total, calling set after every wait. The last call always sets 'to'
// exactly. steps <= 1 or total <= 0 jumps straight to 'to'.
func Linear(from, to int, total time.Duration, steps int, wait Wait, set Set) error {
	if steps <= 1 || total <= 0 {
		return set(to)
	}
	per := total / time.Duration(steps)
	span := to - from
	for i := 1; i < steps; i++ {
		wait(per)
		// Integer interpolation rounded half away from zero.
		num := span * i
		lvl := from + num/steps
		if r := num % steps; mathx.Abs(2*r) >= steps {
			if num < 0 {
				lvl--
			} else {
				lvl++
			}
		}
		if err := set(lvl); err != nil {
			return err
		}
	}
	wait(per)
	return set(to)
}

// Levels returns the sequence Linear would set, without waiting.
func Levels(from, to, steps int) []int {
	var out []int
	_ = Linear(from, to, time.Duration(mathx.Max(steps, 1)), steps, func(time.Duration) {}, func(l int) error {
		out = append(out, l)
		return nil
	})
	return out
}
