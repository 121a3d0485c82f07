// Package metrics provides quality measures for comparing a reconstructed
// volume against a reference grid, for simulation studies and for judging
// successive estimates of the registration/reconstruction alternation.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MSE returns the mean squared error between a reference and a reconstruction
// of the same grid size.
func MSE(ref, rec []float64) (float64, error) {
	if len(ref) == 0 || len(ref) != len(rec) {
		return 0, fmt.Errorf("metrics: length mismatch: %d vs %d", len(ref), len(rec))
	}
	mse := 0.0
	for i := range ref {
		d := ref[i] - rec[i]
		mse += d * d
	}
	return mse / float64(len(ref)), nil
}

// RMSE returns the root mean squared error.
func RMSE(ref, rec []float64) (float64, error) {
	mse, err := MSE(ref, rec)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// NRMSE returns the RMSE normalized by the dynamic range of the reference.
// A constant reference has no range to normalize by and is an error.
func NRMSE(ref, rec []float64) (float64, error) {
	rmse, err := RMSE(ref, rec)
	if err != nil {
		return 0, err
	}
	lo, hi := bounds(ref)
	if hi == lo {
		return 0, fmt.Errorf("metrics: reference has zero dynamic range")
	}
	return rmse / (hi - lo), nil
}

// PSNR returns the peak signal-to-noise ratio in dB, using the dynamic range
// of the reference as the peak. Identical inputs give +Inf.
func PSNR(ref, rec []float64) (float64, error) {
	rmse, err := RMSE(ref, rec)
	if err != nil {
		return 0, err
	}
	lo, hi := bounds(ref)
	if hi == lo {
		return 0, fmt.Errorf("metrics: reference has zero dynamic range")
	}
	if rmse == 0 {
		return math.Inf(1), nil
	}
	return 20 * math.Log10((hi-lo)/rmse), nil
}

// SSIM returns the global structural similarity index between reference and
// reconstruction, with the standard stabilizing constants scaled to the
// reference's dynamic range.
func SSIM(ref, rec []float64) (float64, error) {
	if len(ref) == 0 || len(ref) != len(rec) {
		return 0, fmt.Errorf("metrics: length mismatch: %d vs %d", len(ref), len(rec))
	}
	lo, hi := bounds(ref)
	l := hi - lo
	if l == 0 {
		return 0, fmt.Errorf("metrics: reference has zero dynamic range")
	}
	const k1, k2 = 0.01, 0.03
	c1 := (k1 * l) * (k1 * l)
	c2 := (k2 * l) * (k2 * l)

	muX := stat.Mean(ref, nil)
	muY := stat.Mean(rec, nil)
	sigmaX := stat.Variance(ref, nil)
	sigmaY := stat.Variance(rec, nil)
	sigmaXY := stat.Covariance(ref, rec, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	return num / den, nil
}

func bounds(data []float64) (lo, hi float64) {
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
