// Package curves builds waveshaper transfer curves and shares them
// process-wide. A curve is computed once per key and handed out read-only.
package curves

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Size is the number of points in every generated curve.
const Size = 4096

type Kind string

const (
	SoftTanh       Kind = "tanh"
	AsymmetricClip Kind = "asym"
	OddHarmonic    Kind = "odd"
	EvenHarmonic   Kind = "even"
	SecondHarmonic Kind = "h2"
	AtanClip       Kind = "atan"
	Distortion     Kind = "dist"
	Tape           Kind = "tape"
	Tube           Kind = "tube"
	Warm           Kind = "warm"
)

// Key identifies a curve. Amounts are quantised to 1e-3 so nearby values
// share an entry.
type Key struct {
	Kind   Kind
	Amount int64
}

func NewKey(kind Kind, amount float64) Key {
	return Key{Kind: kind, Amount: int64(math.Round(amount * 1000))}
}

func (k Key) String() string { return fmt.Sprintf("%s:%d", k.Kind, k.Amount) }

func (k Key) amount() float64 { return float64(k.Amount) / 1000 }

// Cache is a get-or-create curve store. Concurrent requests for the same
// key run one generator and share its result.
type Cache struct {
	mu     sync.RWMutex
	curves map[Key][]float32
	group  singleflight.Group
	builds atomic.Int64
}

func NewCache() *Cache {
	return &Cache{curves: make(map[Key][]float32)}
}

// Shared is the process-wide curve cache.
var Shared = NewCache()

// Get returns the curve for kind at amount from the shared cache.
func Get(kind Kind, amount float64) []float32 {
	return Shared.Get(NewKey(kind, amount))
}

func (c *Cache) Get(key Key) []float32 {
	c.mu.RLock()
	curve, ok := c.curves[key]
	c.mu.RUnlock()
	if ok {
		return curve
	}
	v, _, _ := c.group.Do(key.String(), func() (any, error) {
		c.mu.RLock()
		curve, ok := c.curves[key]
		c.mu.RUnlock()
		if ok {
			return curve, nil
		}
		curve = Generate(key, Size)
		c.builds.Add(1)
		c.mu.Lock()
		c.curves[key] = curve
		c.mu.Unlock()
		return curve, nil
	})
	return v.([]float32)
}

// Len returns the number of cached curves.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.curves)
}

// Builds returns how many curves have been generated.
func (c *Cache) Builds() int64 { return c.builds.Load() }

// Generate samples the transfer function for key over [-1, 1].
func Generate(key Key, n int) []float32 {
	if n < 2 {
		n = 2
	}
	fn := transfer(key.Kind, key.amount())
	curve := make([]float32, n)
	for i := range curve {
		x := float64(i)*2/float64(n-1) - 1
		curve[i] = float32(fn(x))
	}
	return curve
}

func transfer(kind Kind, a float64) func(float64) float64 {
	switch kind {
	case SoftTanh:
		k := 1 + a*4
		norm := math.Tanh(k)
		return func(x float64) float64 { return math.Tanh(x*k) / norm }
	case AsymmetricClip:
		k := 1 + a*6
		return func(x float64) float64 {
			if x >= 0 {
				return math.Tanh(x*k) / math.Tanh(k)
			}
			// negative half clips harder and earlier
			return math.Tanh(x*k*1.6) / math.Tanh(k*1.6) * 0.8
		}
	case OddHarmonic:
		return func(x float64) float64 {
			return clamp1(x - 0.5*a*x*x*x)
		}
	case EvenHarmonic:
		return func(x float64) float64 {
			return clamp1(x + a*0.25*(x*x-0.5))
		}
	case SecondHarmonic:
		// x^2 carries the second harmonic; its DC offset is blocked downstream.
		return func(x float64) float64 {
			return clamp1(x + 0.5*a*x*x)
		}
	case AtanClip:
		k := 1 + a*9
		norm := math.Atan(k)
		return func(x float64) float64 { return math.Atan(x*k) / norm }
	case Distortion:
		k := a * 100
		deg := math.Pi / 180
		return func(x float64) float64 {
			return (3 + k) * x * 20 * deg / (math.Pi + k*math.Abs(x))
		}
	case Tape:
		k := 1 + a*3
		return func(x float64) float64 {
			y := math.Tanh(x * k)
			return y - 0.1*a*y*y*y
		}
	case Tube:
		k := 1 + a*5
		return func(x float64) float64 {
			if x >= 0 {
				return 1 - math.Exp(-x*k)
			}
			return -(1 - math.Exp(x*k*0.8)) * 0.9
		}
	case Warm:
		k := 1 + a*2
		norm := math.Tanh(k + 0.1*a)
		return func(x float64) float64 {
			return math.Tanh(x*k+0.1*a*x*x) / norm
		}
	}
	return func(x float64) float64 { return x }
}

func clamp1(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
