package servo

// lowPassFilter is a single-pole low-pass filter holding one scalar state.
// It is applied to joint positions only, after integration, before output.
// Callers must reset() it with a real joint position before the first
// filter() call; the core does this on every (re)start and pause.
type lowPassFilter struct {
	a     float64 // filter coefficient derived from the configured coef
	state float64
}

// newLowPassFilter builds a filter for a user-supplied coef >= 1.
func newLowPassFilter(coef float64) lowPassFilter {
	return lowPassFilter{a: (coef - 1) / (coef + 1)}
}

// reset seeds the filter state.
func (f *lowPassFilter) reset(x float64) {
	f.state = x
}

// filter applies the filter to x and returns (and stores) the new state:
// y = (1-a)*x + a*y.
func (f *lowPassFilter) filter(x float64) float64 {
	f.state = (1-f.a)*x + f.a*f.state
	return f.state
}

// filterBank is one lowPassFilter per active joint.
type filterBank struct {
	filters []lowPassFilter
}

func newFilterBank(n int, coef float64) *filterBank {
	fb := &filterBank{filters: make([]lowPassFilter, n)}
	for i := range fb.filters {
		fb.filters[i] = newLowPassFilter(coef)
	}
	return fb
}

func (fb *filterBank) reset(positions []float64) {
	for i, p := range positions {
		fb.filters[i].reset(p)
	}
}

func (fb *filterBank) filter(positions []float64) {
	for i, p := range positions {
		positions[i] = fb.filters[i].filter(p)
	}
}
