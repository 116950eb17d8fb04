package servo

// dims6 is a length-6 bit-vector ordered [lin_x, lin_y, lin_z, ang_x, ang_y, ang_z],
// used for both the control-dimension mask and the drift-dimension mask.
type dims6 [6]bool

// allTrue returns a dims6 with every dimension enabled, the default control
// mask: every Cartesian input dimension is honored unless explicitly masked
// off.
func allTrue() dims6 {
	return dims6{true, true, true, true, true, true}
}

// applyControlMask zeroes components of v where the mask is false.
func applyControlMask(v [6]float64, mask dims6) [6]float64 {
	for i := range v {
		if !mask[i] {
			v[i] = 0
		}
	}
	return v
}
