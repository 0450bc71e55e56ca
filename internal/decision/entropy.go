// Package decision implements the entropy-gated tool routing primitives:
// the scheduler that turns raw tool scores into an act-or-clarify decision,
// and the adaptive threshold tuned online from observed outcomes.
package decision

import (
	"math"
	"sort"
)

// Reason explains why the scheduler declined to act.
type Reason string

const (
	ReasonNoSignal    Reason = "no-signal"
	ReasonHighEntropy Reason = "entropy-above-threshold"
	ReasonArgsInvalid Reason = "args-invalid"
)

// Decision is the outcome of one scheduling pass over tool scores.
// Either ToolName is set (act) or Clarify is true with a Reason.
type Decision struct {
	ToolName      string             `json:"tool_name,omitempty"`
	Clarify       bool               `json:"clarify"`
	Reason        Reason             `json:"reason,omitempty"`
	EntropyBits   float64            `json:"entropy_bits"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// TopCandidates returns the n highest-probability tool names with their
// probabilities, for clarification messages.
func (d Decision) TopCandidates(n int) []Candidate {
	cands := make([]Candidate, 0, len(d.Probabilities))
	for name, p := range d.Probabilities {
		cands = append(cands, Candidate{Name: name, Probability: p})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Probability != cands[j].Probability {
			return cands[i].Probability > cands[j].Probability
		}
		return cands[i].Name < cands[j].Name
	})
	if n < len(cands) {
		cands = cands[:n]
	}
	return cands
}

// Candidate is a tool name with its normalized probability.
type Candidate struct {
	Name        string
	Probability float64
}

// Scheduler gates tool selection on Shannon entropy of the normalized
// score distribution: low entropy means one tool dominates, which is the
// necessary condition to act.
type Scheduler struct{}

func NewScheduler() *Scheduler { return &Scheduler{} }

// Decide is a pure function of (scores, thresholdBits).
//
// Scores are normalized proportionally (p_i = s_i / Σ s_j) and the entropy
// H = −Σ p·log₂(p) is compared against the threshold. With a single
// candidate the gate degenerates to "act iff its score is positive".
func (s *Scheduler) Decide(scores map[string]float64, thresholdBits float64) Decision {
	if len(scores) == 0 {
		return Decision{Clarify: true, Reason: ReasonNoSignal}
	}

	var sum float64
	for _, v := range scores {
		if v > 0 {
			sum += v
		}
	}
	if sum <= 0 {
		return Decision{Clarify: true, Reason: ReasonNoSignal, Probabilities: zeroProbs(scores)}
	}

	probs := make(map[string]float64, len(scores))
	top, topP := "", -1.0
	for name, v := range scores {
		p := 0.0
		if v > 0 {
			p = v / sum
		}
		probs[name] = p
		// Ties broken by lexicographic name so the decision is deterministic.
		if p > topP || (p == topP && name < top) {
			top, topP = name, p
		}
	}

	if len(scores) == 1 {
		return Decision{ToolName: top, Confidence: 1, Probabilities: probs}
	}

	h := Entropy(probs)
	if h >= thresholdBits {
		return Decision{Clarify: true, Reason: ReasonHighEntropy, EntropyBits: h, Probabilities: probs}
	}

	hMax := math.Log2(float64(len(scores)))
	return Decision{
		ToolName:      top,
		EntropyBits:   h,
		Confidence:    1 - h/hMax,
		Probabilities: probs,
	}
}

// Entropy returns the Shannon entropy of a probability map in bits,
// with the 0·log 0 = 0 convention.
func Entropy(probs map[string]float64) float64 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}

func zeroProbs(scores map[string]float64) map[string]float64 {
	probs := make(map[string]float64, len(scores))
	for name := range scores {
		probs[name] = 0
	}
	return probs
}
