// Package confidence estimates how reliable a theme's evidence pool is,
// using a Beta-Binomial model computed from first principles without a
// numerics library, so results reproduce bit-for-bit across platforms.
//
// Each relevance score is reduced to a Bernoulli trial: scores at or above
// SuccessThreshold count as successes. With a Beta(2,2) prior the posterior
// is Beta(2+successes, 2+failures), and the 95% credible interval comes
// from a normal approximation around the posterior mean.
package confidence

import (
	"math"
	"sort"

	"github.com/esglens/retrieval-engine/internal/rank"
	"github.com/esglens/retrieval-engine/pkg/errors"
)

// SuccessThreshold is the relevance score at which a chunk counts as
// supporting evidence. The downstream theme scorer depends on this exact
// cut-off; do not make it configurable.
const SuccessThreshold = 0.7

// Beta(2,2) prior: weakly centered on 0.5 so a handful of observations
// cannot pin the posterior to the extremes.
const (
	priorAlpha = 2.0
	priorBeta  = 2.0
)

// z-score for a 95% two-sided interval, ≈1.95996.
var z95 = inverseNormalCDF(0.975)

// PosteriorEstimate is the Beta-Binomial posterior summary published to
// the evidence pipeline. All floats are rounded to 4 decimal places for
// audit-log stability.
type PosteriorEstimate struct {
	Alpha         float64 `json:"alpha"`
	Beta          float64 `json:"beta"`
	Mean          float64 `json:"mean"`
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	IntervalWidth float64 `json:"interval_width"`
}

// knownThemes is the canonical ESG theme taxonomy. The theme label is used
// only for validation and logging, never for computation.
var knownThemes = map[string]struct{}{
	"Climate":         {},
	"Emissions":       {},
	"Energy":          {},
	"Water":           {},
	"Waste":           {},
	"Biodiversity":    {},
	"Social":          {},
	"Health & Safety": {},
	"Supply Chain":    {},
	"Governance":      {},
}

// KnownThemes returns the recognized theme labels in sorted order.
func KnownThemes() []string {
	themes := make([]string, 0, len(knownThemes))
	for t := range knownThemes {
		themes = append(themes, t)
	}
	sort.Strings(themes)
	return themes
}

// ComputePosterior estimates the Beta-Binomial posterior over a theme's
// relevance scores. An empty score list, a score outside [0,1], or an
// unrecognized theme label is a validation error. A zero-variance
// posterior collapses the interval to a point at the mean rather than
// erroring.
func ComputePosterior(scores []float64, theme string) (PosteriorEstimate, error) {
	if len(scores) == 0 {
		return PosteriorEstimate{}, errors.Newf(errors.ErrValidation, "no scores for theme %q", theme)
	}
	if _, ok := knownThemes[theme]; !ok {
		return PosteriorEstimate{}, errors.Newf(errors.ErrValidation, "unknown theme %q", theme)
	}
	successes := 0
	for i, s := range scores {
		if !(s >= 0 && s <= 1) { // also rejects NaN
			return PosteriorEstimate{}, errors.Newf(errors.ErrValidation,
				"score %g at position %d is outside [0,1]", s, i)
		}
		if s >= SuccessThreshold {
			successes++
		}
	}
	failures := len(scores) - successes

	a := priorAlpha + float64(successes)
	b := priorBeta + float64(failures)
	mean := a / (a + b)
	variance := a * b / ((a + b) * (a + b) * (a + b + 1))
	std := math.Sqrt(variance)

	var lower, upper float64
	if std == 0 {
		lower, upper = mean, mean
	} else {
		lower = clamp01(mean - z95*std)
		upper = clamp01(mean + z95*std)
	}

	mean = rank.Round4(mean)
	lower = rank.Round4(lower)
	upper = rank.Round4(upper)
	return PosteriorEstimate{
		Alpha:         a,
		Beta:          b,
		Mean:          mean,
		Lower:         lower,
		Upper:         upper,
		IntervalWidth: rank.Round4(upper - lower),
	}, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
