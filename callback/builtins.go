package callback

import (
	"context"
	"math"
	"slices"
)

const invSqrt2Pi = 0.3989422804014327

// Names of the built-in distance weight callbacks.
const (
	GaussianName   = "gaussian"
	MexicanHatName = "mexican_hat"
)

// Gauss evaluates a gaussian of width sig at dist. With norm the curve
// peaks at exactly peak; otherwise it integrates to peak.
func Gauss(dist, peak, sig float64, norm bool) float64 {
	coeff := peak
	if !norm {
		coeff *= invSqrt2Pi / sig
	}
	a := dist / sig
	return coeff * math.Exp(-0.5*a*a)
}

// DiffGauss evaluates a difference of gaussians with widths sig and
// 1.6*sig. With norm the center value equals peak.
func DiffGauss(dist, peak, sig float64, norm bool) float64 {
	v := Gauss(dist, peak, sig, false) - Gauss(dist, peak, sig*1.6, false)
	if norm {
		v /= invSqrt2Pi/sig - invSqrt2Pi/(sig*1.6)
	}
	return v
}

// Gaussian scales each weight by a gaussian of its distance, using half
// the largest distance as the width. Weights are untouched when every
// distance is zero.
func Gaussian(_ int32, weights, distances []float32) {
	smooth(weights, distances, Gauss)
}

// MexicanHat is Gaussian with a difference of gaussians, giving an
// excitatory center and an inhibitory surround.
func MexicanHat(_ int32, weights, distances []float32) {
	smooth(weights, distances, DiffGauss)
}

func smooth(weights, distances []float32, f func(dist, peak, sig float64, norm bool) float64) {
	n := min(len(weights), len(distances))
	if n == 0 {
		return
	}
	sigma := float64(slices.Max(distances[:n])) / 2
	if sigma == 0 {
		return
	}
	for i := range n {
		weights[i] = float32(f(float64(distances[i]), float64(weights[i]), sigma, true))
	}
}

// RegisterBuiltins registers the gaussian and mexican_hat distance weight
// callbacks.
func (r *Registry) RegisterBuiltins(ctx context.Context) error {
	if _, err := r.RegisterDistanceWeight(ctx, GaussianName, Gaussian); err != nil {
		return err
	}
	_, err := r.RegisterDistanceWeight(ctx, MexicanHatName, MexicanHat)
	return err
}
