package gpio

import "errors"

// FakeReader is a test double that returns scripted motion values.
type FakeReader struct {
	// Samples are returned one per Read. When exhausted, the last sample
	// repeats.
	Samples []bool

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeReader) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Hold replaces the script with a single repeating value.
func (f *FakeReader) Hold(v bool) {
	f.Samples = []bool{v}
	f.index = 0
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the script.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeLED records every value written.
type FakeLED struct {
	On       bool
	Writes   []bool
	SetError error
	Closed   bool
}

func (l *FakeLED) Set(on bool) error {
	if l.SetError != nil {
		return l.SetError
	}
	l.On = on
	l.Writes = append(l.Writes, on)
	return nil
}

func (l *FakeLED) Close() error {
	l.Closed = true
	l.On = false
	return nil
}
