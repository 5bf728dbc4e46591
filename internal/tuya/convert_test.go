package tuya

import (
	"math"
	"testing"
)

// ─── Remap ─────────────────────────────────────────────────────────

func TestRemap(t *testing.T) {
	tests := []struct {
		name                  string
		value, oldMin, oldMax float64
		newMin, newMax        float64
		want                  float64
	}{
		{"identity range", 50, 0, 100, 0, 100, 50},
		{"scale up", 50, 0, 100, 0, 1000, 500},
		{"scale down", 500, 0, 1000, 0, 100, 50},
		{"offset range", 0, 0, 100, 25, 255, 25},
		{"top of offset range", 100, 0, 100, 25, 255, 255},
		{"clamps below", -10, 0, 100, 0, 1000, 0},
		{"clamps above", 150, 0, 100, 0, 1000, 1000},
		{"one decimal half-up", 1, 0, 3, 0, 1, 0.3},
		{"inverted target", 0, 0, 100, 100, 0, 100},
		{"degenerate source", 5, 7, 7, 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Remap(tt.value, tt.oldMin, tt.oldMax, tt.newMin, tt.newMax)
			if got != tt.want {
				t.Errorf("Remap(%g, %g, %g, %g, %g) = %g, want %g",
					tt.value, tt.oldMin, tt.oldMax, tt.newMin, tt.newMax, got, tt.want)
			}
		})
	}
}

func TestRemapMonotonic(t *testing.T) {
	prev := math.Inf(-1)
	for v := 0.0; v <= 100; v++ {
		got := Remap(v, 0, 100, 1, 1000)
		if got < prev {
			t.Fatalf("Remap not monotonic at %g: %g < %g", v, got, prev)
		}
		prev = got
	}
}

func TestRemapRoundTrip(t *testing.T) {
	for v := 0.0; v <= 100; v += 7 {
		forward := Remap(v, 0, 100, 1, 1000)
		back := Remap(forward, 1, 1000, 0, 100)
		if math.Abs(back-v) > 0.1 {
			t.Errorf("round trip of %g drifted to %g", v, back)
		}
	}
}

// ─── Colour temperature ────────────────────────────────────────────

func TestKelvinMiredsRoundTrip(t *testing.T) {
	tests := []struct {
		kelvin float64
		mireds float64
	}{
		{2000, 500},
		{4000, 250},
		{6500, 153.8461538461538},
	}

	for _, tt := range tests {
		if got := KelvinToMireds(tt.kelvin); math.Abs(got-tt.mireds) > 0.001 {
			t.Errorf("KelvinToMireds(%g) = %g, want %g", tt.kelvin, got, tt.mireds)
		}
		if got := MiredsToKelvin(tt.mireds); math.Abs(got-tt.kelvin) > 0.001 {
			t.Errorf("MiredsToKelvin(%g) = %g, want %g", tt.mireds, got, tt.kelvin)
		}
	}

	if KelvinToMireds(0) != 0 || MiredsToKelvin(-5) != 0 {
		t.Error("non-positive input should yield 0")
	}
}

// ─── Fan speeds ────────────────────────────────────────────────────

func TestFanSpeedNames(t *testing.T) {
	names := []string{"low", "medium-low", "medium", "medium-high", "high"}
	for i, name := range names {
		if got := FanSpeedIndex(name); got != i {
			t.Errorf("FanSpeedIndex(%q) = %d, want %d", name, got, i)
		}
		if got := FanSpeedName(i); got != name {
			t.Errorf("FanSpeedName(%d) = %q, want %q", i, got, name)
		}
	}

	if got := FanSpeedIndex("auto"); got != -1 {
		t.Errorf("FanSpeedIndex(auto) = %d, want -1", got)
	}
	if got := FanSpeedName(-3); got != "low" {
		t.Errorf("FanSpeedName(-3) = %q, want low", got)
	}
	if got := FanSpeedName(9); got != "high" {
		t.Errorf("FanSpeedName(9) = %q, want high", got)
	}
}

// ─── Colour names ──────────────────────────────────────────────────

func TestColorName(t *testing.T) {
	tests := []struct {
		name       string
		hue        float64
		saturation float64
		want       string
	}{
		{"zero hue is red", 0, 100, "Red"},
		{"full hue wraps to red", 100, 100, "Red"},
		{"green third", 33.3, 100, "Green"},
		{"blue two-thirds", 66.6, 100, "Blue"},
		{"orange", 8.3, 100, "Orange"},
		{"magenta", 83.3, 100, "Magenta"},
		{"low saturation is white", 50, 0.5, "White"},
		{"saturation at threshold keeps hue", 50, 1, "Cyan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ColorName(tt.hue, tt.saturation); got != tt.want {
				t.Errorf("ColorName(%g, %g) = %q, want %q", tt.hue, tt.saturation, got, tt.want)
			}
		})
	}
}
