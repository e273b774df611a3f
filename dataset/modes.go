package dataset

import "fmt"

// Mode is a spherical-harmonic mode (l, m) of the radiation.
type Mode struct {
	L int
	M int
}

// Mode22 is the dominant quadrupole mode.
var Mode22 = Mode{L: 2, M: 2}

// String formats the mode as "(l,m)".
func (m Mode) String() string {
	return fmt.Sprintf("(%d,%d)", m.L, m.M)
}

// Opposite returns (l, −m).
func (m Mode) Opposite() Mode {
	return Mode{L: m.L, M: -m.M}
}

// ModeToK maps a mode to a flat index: l(l−1)/2 + m − 2.
func ModeToK(m Mode) int {
	return m.L*(m.L-1)/2 + m.M - 2
}
