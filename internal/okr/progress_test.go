package okr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeProgress(t *testing.T) {
	cases := []struct {
		name    string
		current float64
		target  float64
		want    int
	}{
		{"zero target", 42, 0, 0},
		{"negative target", 5, -10, 0},
		{"exact completion", 250, 250, 100},
		{"half way", 5, 10, 50},
		{"rounds half up", 1, 8, 13},
		{"overshoot clamps", 300, 100, 100},
		{"negative current clamps", -5, 10, 0},
		{"nan current", math.NaN(), 10, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeProgress(tc.current, tc.target))
		})
	}
}

func TestComputeProgressMonotonicAndBounded(t *testing.T) {
	for _, target := range []float64{0.5, 1, 7, 100, 12345} {
		prev := -1
		for i := 0; i <= 400; i++ {
			current := target * float64(i) / 200
			got := ComputeProgress(current, target)
			if got < 0 || got > 100 {
				t.Fatalf("progress(%v, %v) = %d, out of range", current, target, got)
			}
			if got < prev {
				t.Fatalf("progress decreased at current=%v target=%v: %d < %d", current, target, got, prev)
			}
			prev = got
		}
	}
}

func TestDeriveKRStatus(t *testing.T) {
	assert.Equal(t, KRCompleted, DeriveKRStatus(100, KRAtRisk))
	assert.Equal(t, KRAtRisk, DeriveKRStatus(40, KRAtRisk))
	assert.Equal(t, KRNotStarted, DeriveKRStatus(0, ""))
	assert.Equal(t, KROnTrack, DeriveKRStatus(10, ""))
	assert.Equal(t, KRCompleted, DeriveKRStatus(90, KRCompleted))
}

func TestKeyResultRefresh(t *testing.T) {
	kr := KeyResult{Target: 20, Current: 20, Status: KROnTrack}
	kr.Refresh()
	assert.Equal(t, 100, kr.Progress)
	assert.Equal(t, KRCompleted, kr.Status)
}
