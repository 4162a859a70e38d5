package units

import (
	"math"
	"testing"
)

func TestDegRadRoundTrip(t *testing.T) {
	for _, deg := range []float64{0, 45, 90, 180, 360, -30} {
		got := RadToDeg(DegToRad(deg))
		if math.Abs(got-deg) > 1e-12 {
			t.Errorf("round trip %v: got %v", deg, got)
		}
	}
}

func TestArcsecConversions(t *testing.T) {
	if got := DegToArcsec(1.0); got != 3600.0 {
		t.Errorf("DegToArcsec(1) = %v, want 3600", got)
	}
	if got := ArcsecToDeg(1800.0); got != 0.5 {
		t.Errorf("ArcsecToDeg(1800) = %v, want 0.5", got)
	}
}

func TestWrapRA(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{360, 0},
		{361.5, 1.5},
		{-10, 350},
		{725, 5},
	}
	for _, tc := range tests {
		if got := WrapRA(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("WrapRA(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormatRA(t *testing.T) {
	// 36.9306 deg = 2.46204 hours = 02:27:43.34
	got := FormatRA(36.930640)
	want := "02:27:43.354"
	if got != want {
		t.Errorf("FormatRA = %q, want %q", got, want)
	}
}

func TestFormatDec(t *testing.T) {
	got := FormatDec(-4.939560)
	want := "-04:56:22.42"
	if got != want {
		t.Errorf("FormatDec = %q, want %q", got, want)
	}
}
