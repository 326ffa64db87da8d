package ensemble

import (
	"fmt"
	"log/slog"
	"math/rand"
)

// Default search parameters.
const (
	DefaultTrials        = 200
	DefaultThresholdLo   = 0.0
	DefaultThresholdHi   = 1.0
	DefaultThresholdStep = 0.05
)

// Observations is the graded scoring data the tuner optimizes against:
// one score vector per component and one correct/incorrect label per prompt.
type Observations struct {
	ComponentScores [][]float64
	Labels          []bool
}

// Tuner searches weight space by random sampling and sweeps the decision
// threshold independently. Given the same seed and observations the result
// is deterministic.
type Tuner struct {
	trials        int
	seed          int64
	thresholdLo   float64
	thresholdHi   float64
	thresholdStep float64
	beta          float64
}

// TunerOption configures a Tuner.
type TunerOption func(*Tuner)

// WithTrials sets how many random weight vectors are sampled.
func WithTrials(n int) TunerOption {
	return func(t *Tuner) {
		if n > 0 {
			t.trials = n
		}
	}
}

// WithSeed fixes the random source so repeated runs reproduce.
func WithSeed(seed int64) TunerOption {
	return func(t *Tuner) { t.seed = seed }
}

// WithThresholdSweep sets the threshold search range and step.
func WithThresholdSweep(lo, hi, step float64) TunerOption {
	return func(t *Tuner) {
		t.thresholdLo = lo
		t.thresholdHi = hi
		if step > 0 {
			t.thresholdStep = step
		}
	}
}

// WithFBeta switches the threshold objective from accuracy to F-beta with
// the given beta. Beta 0 means plain accuracy.
func WithFBeta(beta float64) TunerOption {
	return func(t *Tuner) {
		if beta >= 0 {
			t.beta = beta
		}
	}
}

// NewTuner builds a tuner with the default search parameters and seed 1.
func NewTuner(opts ...TunerOption) *Tuner {
	t := &Tuner{
		trials:        DefaultTrials,
		seed:          1,
		thresholdLo:   DefaultThresholdLo,
		thresholdHi:   DefaultThresholdHi,
		thresholdStep: DefaultThresholdStep,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Tune returns optimized weights and threshold for the observations.
// Weights are optimized first by ROC-AUC over randomly sampled re-normalized
// vectors, then the threshold is swept independently. The two searches are
// sequential, not joint.
func (t *Tuner) Tune(obs *Observations, initialWeights []float64) ([]float64, float64, error) {
	if obs == nil || len(obs.ComponentScores) == 0 {
		return nil, 0, fmt.Errorf("must score before tuning")
	}
	numComponents := len(obs.ComponentScores)
	numPrompts := len(obs.Labels)
	for i, scores := range obs.ComponentScores {
		if len(scores) != numPrompts {
			return nil, 0, fmt.Errorf("component %d has %d scores for %d labels", i, len(scores), numPrompts)
		}
	}
	if numPrompts == 0 {
		return nil, 0, fmt.Errorf("must score before tuning")
	}

	best, err := NormalizeWeights(initialWeights)
	if err != nil || len(best) != numComponents {
		best = make([]float64, numComponents)
		for i := range best {
			best[i] = 1.0 / float64(numComponents)
		}
	}
	bestAUC := rocAUC(combine(obs.ComponentScores, best, numPrompts), obs.Labels)

	rng := rand.New(rand.NewSource(t.seed))
	for trial := 0; trial < t.trials; trial++ {
		candidate := make([]float64, numComponents)
		for i := range candidate {
			candidate[i] = rng.Float64()
		}
		candidate, err := NormalizeWeights(candidate)
		if err != nil {
			continue
		}

		auc := rocAUC(combine(obs.ComponentScores, candidate, numPrompts), obs.Labels)
		if auc > bestAUC {
			bestAUC = auc
			best = candidate
		}
	}

	ensembleScores := combine(obs.ComponentScores, best, numPrompts)
	threshold := t.sweepThreshold(ensembleScores, obs.Labels)

	slog.Debug("tuning complete",
		"trials", t.trials,
		"auc", bestAUC,
		"threshold", threshold)
	return best, threshold, nil
}

// sweepThreshold walks [lo, hi] in step increments and keeps the threshold
// maximizing the configured metric. Earlier thresholds win ties.
func (t *Tuner) sweepThreshold(scores []float64, labels []bool) float64 {
	bestThreshold := t.thresholdLo
	bestMetric := -1.0

	for threshold := t.thresholdLo; threshold <= t.thresholdHi+1e-12; threshold += t.thresholdStep {
		var metric float64
		if t.beta > 0 {
			metric = fBeta(scores, labels, threshold, t.beta)
		} else {
			metric = accuracy(scores, labels, threshold)
		}
		if metric > bestMetric {
			bestMetric = metric
			bestThreshold = threshold
		}
	}
	return bestThreshold
}

// rocAUC is the rank-based AUC: the fraction of (positive, negative) pairs
// where the positive's score is strictly greater. Ties contribute nothing.
// With no positives or no negatives the value is 0.5 (chance).
func rocAUC(scores []float64, labels []bool) float64 {
	var ordered, pairs int
	for i, si := range scores {
		if !labels[i] {
			continue
		}
		for j, sj := range scores {
			if labels[j] {
				continue
			}
			pairs++
			if si > sj {
				ordered++
			}
		}
	}
	if pairs == 0 {
		return 0.5
	}
	return float64(ordered) / float64(pairs)
}

func accuracy(scores []float64, labels []bool, threshold float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var correct int
	for i, s := range scores {
		if (s >= threshold) == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(scores))
}

// fBeta is the harmonic mean of precision and recall weighted by beta.
func fBeta(scores []float64, labels []bool, threshold, beta float64) float64 {
	var tp, fp, fn float64
	for i, s := range scores {
		predicted := s >= threshold
		switch {
		case predicted && labels[i]:
			tp++
		case predicted && !labels[i]:
			fp++
		case !predicted && labels[i]:
			fn++
		}
	}
	if tp == 0 {
		return 0
	}
	precision := tp / (tp + fp)
	recall := tp / (tp + fn)
	b2 := beta * beta
	return (1 + b2) * precision * recall / (b2*precision + recall)
}
