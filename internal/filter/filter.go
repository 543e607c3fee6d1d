// Package filter turns a jittery digital input into a stable boolean by
// counting positive samples over a fixed window.
package filter

// DefaultSize is the number of samples in the window.
const DefaultSize = 10

// Filter is a circular buffer of the most recent raw samples with a
// running positive count. The zero value is not usable; call New.
type Filter struct {
	buf      []bool
	next     int
	positive int
	percent  int
	stable   bool
}

// New creates a filter over size samples. Sizes below 1 select DefaultSize.
// The window starts filled with negative samples.
func New(size int) *Filter {
	if size < 1 {
		size = DefaultSize
	}
	return &Filter{buf: make([]bool, size)}
}

// Sample evicts the oldest sample, records raw, and returns the share of
// positive samples in the window and whether it reaches threshold percent.
// threshold may change between calls without disturbing the window.
func (f *Filter) Sample(raw bool, threshold int) (percent int, stable bool) {
	if f.buf[f.next] {
		f.positive--
	}
	f.buf[f.next] = raw
	if raw {
		f.positive++
	}
	f.next = (f.next + 1) % len(f.buf)

	f.percent = f.positive * 100 / len(f.buf)
	f.stable = f.percent >= threshold
	return f.percent, f.stable
}

// Percent returns the result of the last Sample.
func (f *Filter) Percent() int {
	return f.percent
}

// Stable returns the filtered motion state of the last Sample.
func (f *Filter) Stable() bool {
	return f.stable
}

// Size returns the window length.
func (f *Filter) Size() int {
	return len(f.buf)
}

// Reset clears the window to all-negative.
func (f *Filter) Reset() {
	for i := range f.buf {
		f.buf[i] = false
	}
	f.next = 0
	f.positive = 0
	f.percent = 0
	f.stable = false
}
