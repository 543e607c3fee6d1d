package gpio

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader(true, false, true)

	want := []bool{true, false, true, true} // last sample repeats
	for i, w := range want {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("read %d: got %v, want %v", i, got, w)
		}
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader()
	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader(true)
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderHoldAndReset(t *testing.T) {
	f := NewFakeReader(true, false)
	f.Read()
	f.Reset()
	if v, _ := f.Read(); v != true {
		t.Error("after reset: expected first sample")
	}

	f.Hold(false)
	for i := 0; i < 3; i++ {
		if v, _ := f.Read(); v {
			t.Fatal("hold(false) should repeat false")
		}
	}

	if err := f.Close(); err != nil || !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakeLED(t *testing.T) {
	l := &FakeLED{}
	l.Set(true)
	l.Set(false)
	l.Set(true)
	if !l.On {
		t.Error("expected on")
	}
	if len(l.Writes) != 3 {
		t.Errorf("writes: got %d, want 3", len(l.Writes))
	}

	l.SetError = errors.New("busy")
	if err := l.Set(false); err == nil {
		t.Error("expected error")
	}
	if !l.On {
		t.Error("failed write must not change state")
	}
}

func TestNopLED(t *testing.T) {
	var l LED = NopLED{}
	if err := l.Set(true); err != nil {
		t.Error(err)
	}
}
