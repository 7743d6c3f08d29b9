package curves

import (
	"math"
	"sync"
	"testing"
)

func TestCacheSharesCurves(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	results := make([][]float32, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(NewKey(SoftTanh, 0.5))
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		if &results[i][0] != &results[0][0] {
			t.Fatalf("request %d got a different curve", i)
		}
	}
	if c.Builds() != 1 || c.Len() != 1 {
		t.Fatalf("builds=%d len=%d, want 1/1", c.Builds(), c.Len())
	}
}

func TestKeyQuantisation(t *testing.T) {
	if NewKey(Tube, 0.30001) != NewKey(Tube, 0.3) {
		t.Fatalf("nearby amounts should share a key")
	}
	if NewKey(Tube, 0.3) == NewKey(Tape, 0.3) {
		t.Fatalf("kinds must not collide")
	}
}

func TestCurvesAreBoundedAndOrdered(t *testing.T) {
	kinds := []Kind{SoftTanh, AsymmetricClip, OddHarmonic, EvenHarmonic, SecondHarmonic, AtanClip, Tape, Tube, Warm}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			curve := Generate(NewKey(kind, 0.7), 1025)
			if len(curve) != 1025 {
				t.Fatalf("len = %d", len(curve))
			}
			for i, v := range curve {
				if math.IsNaN(float64(v)) || math.Abs(float64(v)) > 1.0001 {
					t.Fatalf("point %d = %v out of range", i, v)
				}
			}
			if curve[0] >= curve[len(curve)-1] {
				t.Fatalf("curve not increasing end to end")
			}
		})
	}
}

func TestSoftTanhPassesZero(t *testing.T) {
	curve := Generate(NewKey(SoftTanh, 1), 1025)
	if math.Abs(float64(curve[512])) > 1e-6 {
		t.Fatalf("center = %v, want 0", curve[512])
	}
	if math.Abs(float64(curve[1024])-1) > 1e-6 {
		t.Fatalf("end = %v, want 1", curve[1024])
	}
}
