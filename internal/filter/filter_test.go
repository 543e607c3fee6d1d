package filter

import "testing"

func TestNewDefaultsSize(t *testing.T) {
	if got := New(0).Size(); got != DefaultSize {
		t.Errorf("size: got %d, want %d", got, DefaultSize)
	}
	if got := New(4).Size(); got != 4 {
		t.Errorf("size: got %d, want 4", got)
	}
}

func TestFilterConvergesAndStays(t *testing.T) {
	for _, raw := range []bool{true, false} {
		f := New(10)
		if !raw {
			// Start from all-positive so the negative run has work to do
			for i := 0; i < 10; i++ {
				f.Sample(true, 50)
			}
		}
		want := 0
		if raw {
			want = 100
		}
		for i := 0; i < 10; i++ {
			f.Sample(raw, 50)
		}
		for i := 0; i < 25; i++ {
			pct, stable := f.Sample(raw, 50)
			if pct != want {
				t.Fatalf("raw=%v sample %d: percent %d, want %d", raw, i, pct, want)
			}
			if stable != raw {
				t.Fatalf("raw=%v sample %d: stable %v", raw, i, stable)
			}
		}
	}
}

func TestFilterPercentSteps(t *testing.T) {
	f := New(10)
	for i := 1; i <= 10; i++ {
		pct, _ := f.Sample(true, 100)
		if pct != i*10 {
			t.Errorf("after %d positives: got %d%%, want %d%%", i, pct, i*10)
		}
	}
}

func TestFilterThreshold(t *testing.T) {
	tests := []struct {
		positives int
		threshold int
		want      bool
	}{
		{5, 50, true},
		{4, 50, false},
		{10, 100, true},
		{9, 100, false},
		{1, 10, true},
		{0, 10, false},
	}
	for _, tt := range tests {
		f := New(10)
		var stable bool
		for i := 0; i < 10; i++ {
			_, stable = f.Sample(i < tt.positives, tt.threshold)
		}
		if stable != tt.want {
			t.Errorf("positives=%d threshold=%d: got %v, want %v", tt.positives, tt.threshold, stable, tt.want)
		}
	}
}

func TestFilterThresholdChangeKeepsWindow(t *testing.T) {
	f := New(10)
	for i := 0; i < 6; i++ {
		f.Sample(true, 50)
	}
	// 6 positives in the window. Raising the threshold re-evaluates the
	// same window on the next sample instead of starting over.
	pct, stable := f.Sample(true, 80)
	if pct != 70 {
		t.Errorf("percent: got %d, want 70", pct)
	}
	if stable {
		t.Error("70% should not satisfy 80% threshold")
	}
	pct, stable = f.Sample(true, 60)
	if pct != 80 || !stable {
		t.Errorf("got %d%% stable=%v, want 80%% stable", pct, stable)
	}
}

func TestFilterRejectsJitter(t *testing.T) {
	f := New(10)
	// Alternating samples hover at 50% and never reach 60%
	for i := 0; i < 40; i++ {
		if _, stable := f.Sample(i%2 == 0, 60); stable {
			t.Fatalf("sample %d: jitter passed the filter", i)
		}
	}
}

func TestFilterReset(t *testing.T) {
	f := New(5)
	for i := 0; i < 5; i++ {
		f.Sample(true, 50)
	}
	f.Reset()
	if f.Percent() != 0 || f.Stable() {
		t.Errorf("after reset: percent=%d stable=%v", f.Percent(), f.Stable())
	}
	pct, _ := f.Sample(true, 50)
	if pct != 20 {
		t.Errorf("first sample after reset: got %d, want 20", pct)
	}
}
