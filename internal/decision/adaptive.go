package decision

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AdaptiveDefaults are the tuning constants for a fresh threshold.
const (
	DefaultInitialThreshold = 1.5
	DefaultMinThreshold     = 0.3
	DefaultMaxThreshold     = 3.0
	DefaultLearningRate     = 0.1

	outcomeHistorySize = 64
)

// Outcome records one observed turn for the bounded history ring.
type Outcome struct {
	Acted   bool    `json:"acted"`
	Success bool    `json:"success"`
	Entropy float64 `json:"entropy"`
}

// AdaptiveState is the persisted shape of the threshold tuner.
type AdaptiveState struct {
	ThresholdBits float64   `json:"threshold_bits"`
	Successes     int       `json:"successes"`
	Failures      int       `json:"failures"`
	Updates       int       `json:"updates"`
	Recent        []Outcome `json:"recent,omitempty"`
}

// Stats is the read-only view returned by Stats().
type Stats struct {
	Threshold   float64 `json:"threshold"`
	WinRate     float64 `json:"win_rate"`
	SampleCount int     `json:"sample_count"`
}

// AdaptiveThreshold tunes the entropy gate online from observed outcomes.
// Successful acts pull the threshold up toward the entropy they acted at
// (permitting bolder future acts); failures pull it down toward the floor.
// Safe for concurrent use.
type AdaptiveThreshold struct {
	mu    sync.Mutex
	path  string // empty = in-memory only
	state AdaptiveState

	min    float64
	max    float64
	eta    float64
	logger *slog.Logger
}

// AdaptiveOption configures a new AdaptiveThreshold.
type AdaptiveOption func(*AdaptiveThreshold)

// WithBounds overrides the clamp range.
func WithBounds(min, max float64) AdaptiveOption {
	return func(a *AdaptiveThreshold) { a.min, a.max = min, max }
}

// WithLearningRate overrides η. Values outside (0, 0.5] are ignored.
func WithLearningRate(eta float64) AdaptiveOption {
	return func(a *AdaptiveThreshold) {
		if eta > 0 && eta <= 0.5 {
			a.eta = eta
		}
	}
}

// WithAdaptiveLogger sets the logger for persistence warnings.
func WithAdaptiveLogger(logger *slog.Logger) AdaptiveOption {
	return func(a *AdaptiveThreshold) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdaptiveThreshold creates a tuner persisted at path (may be empty for
// in-memory use, e.g. tests). Existing state on disk is loaded and clamped.
func NewAdaptiveThreshold(path string, initial float64, opts ...AdaptiveOption) *AdaptiveThreshold {
	if initial <= 0 {
		initial = DefaultInitialThreshold
	}
	a := &AdaptiveThreshold{
		path:  path,
		state: AdaptiveState{ThresholdBits: initial},
		min:    DefaultMinThreshold,
		max:    DefaultMaxThreshold,
		eta:    DefaultLearningRate,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.load()
	return a
}

// Current returns the threshold τ in bits.
func (a *AdaptiveThreshold) Current() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.ThresholdBits
}

// Observe updates τ from one turn outcome.
//
//	acted && success:  τ += η·(H − τ)         (allow bolder acts)
//	acted && !success: τ −= η·(τ − τ_min)     (demand more certainty)
//	!acted (clarify):  τ −= (η/4)·(τ − τ_min) (slow decay toward the floor)
//
// τ is clamped to [τ_min, τ_max] after every update.
func (a *AdaptiveThreshold) Observe(acted, success bool, entropyAtDecision float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	tau := a.state.ThresholdBits
	switch {
	case acted && success:
		tau += a.eta * (entropyAtDecision - tau)
		a.state.Successes++
	case acted:
		tau -= a.eta * (tau - a.min)
		a.state.Failures++
	default:
		tau -= (a.eta / 4) * (tau - a.min)
	}
	if tau < a.min {
		tau = a.min
	}
	if tau > a.max {
		tau = a.max
	}
	a.state.ThresholdBits = tau
	a.state.Updates++

	a.state.Recent = append(a.state.Recent, Outcome{Acted: acted, Success: success, Entropy: entropyAtDecision})
	if len(a.state.Recent) > outcomeHistorySize {
		a.state.Recent = a.state.Recent[len(a.state.Recent)-outcomeHistorySize:]
	}

	if err := a.save(); err != nil {
		// Persistence is best-effort; the in-memory value stays authoritative.
		a.logger.Warn("threshold save failed", "path", a.path, "error", err)
	}
	return tau
}

// Stats reports the threshold, win rate over acted turns, and sample count.
func (a *AdaptiveThreshold) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	acted := a.state.Successes + a.state.Failures
	winRate := 0.0
	if acted > 0 {
		winRate = float64(a.state.Successes) / float64(acted)
	}
	return Stats{
		Threshold:   a.state.ThresholdBits,
		WinRate:     winRate,
		SampleCount: a.state.Updates,
	}
}

func (a *AdaptiveThreshold) load() {
	if a.path == "" {
		return
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return
	}
	var st AdaptiveState
	if err := json.Unmarshal(data, &st); err != nil {
		return
	}
	if st.ThresholdBits < a.min {
		st.ThresholdBits = a.min
	}
	if st.ThresholdBits > a.max {
		st.ThresholdBits = a.max
	}
	a.state = st
}

func (a *AdaptiveThreshold) save() error {
	if a.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(a.state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.path), 0o700); err != nil {
		return fmt.Errorf("create threshold dir: %w", err)
	}
	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write threshold state: %w", err)
	}
	return os.Rename(tmp, a.path)
}
