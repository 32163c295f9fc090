package observability

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ent0n29/voicebot/internal/reliability"
)

// Pipeline stages in turn order, with the p95 budget each one is held to.
var pipelineStages = []struct {
	name     string
	budgetMS float64
}{
	{"capture", 150},
	{"transcribe", 1500},
	{"generate", 2000},
	{"synthesize", 2500},
}

func stageIndex(name string) int {
	for i, s := range pipelineStages {
		if s.name == name {
			return i
		}
	}
	return -1
}

// StageStats summarizes the recent turns for one pipeline stage.
type StageStats struct {
	Stage      string                   `json:"stage"`
	Samples    int                      `json:"samples"`
	LastMS     float64                  `json:"last_ms"`
	MeanMS     float64                  `json:"mean_ms"`
	P50MS      float64                  `json:"p50_ms"`
	P95MS      float64                  `json:"p95_ms"`
	MaxMS      float64                  `json:"max_ms"`
	BudgetMS   float64                  `json:"budget_p95_ms"`
	OverBudget int                      `json:"over_budget"`
	Errors     map[reliability.Kind]int `json:"errors,omitempty"`
}

// StageSnapshot is the payload of the latency endpoint.
type StageSnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []StageStats   `json:"stages"`
	Fallbacks   map[string]int `json:"fallbacks,omitempty"`
}

type stageRing struct {
	samples []float64
	count   int
	last    float64
	errors  map[reliability.Kind]int
}

func (r *stageRing) add(ms float64) {
	r.samples[r.count%len(r.samples)] = ms
	r.count++
	r.last = ms
}

func (r *stageRing) held() []float64 {
	n := min(r.count, len(r.samples))
	out := make([]float64, n)
	copy(out, r.samples[:n])
	return out
}

// latencyWindow keeps the last size measurements of each pipeline stage.
type latencyWindow struct {
	mu        sync.Mutex
	size      int
	stages    []stageRing
	fallbacks map[string]int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	w := &latencyWindow{size: size}
	w.resetLocked()
	return w
}

func (w *latencyWindow) resetLocked() {
	w.stages = make([]stageRing, len(pipelineStages))
	for i := range w.stages {
		w.stages[i] = stageRing{samples: make([]float64, w.size), errors: make(map[reliability.Kind]int)}
	}
	w.fallbacks = make(map[string]int)
}

// observe records a stage latency. Stages outside the pipeline are ignored.
func (w *latencyWindow) observe(stage string, ms float64) {
	i := stageIndex(stage)
	if i < 0 || ms < 0 {
		return
	}
	w.mu.Lock()
	w.stages[i].add(ms)
	w.mu.Unlock()
}

func (w *latencyWindow) observeError(stage string, kind reliability.Kind) {
	i := stageIndex(stage)
	if i < 0 || kind == "" {
		return
	}
	w.mu.Lock()
	w.stages[i].errors[kind]++
	w.mu.Unlock()
}

func (w *latencyWindow) observeFallback(provider string) {
	if provider == "" {
		return
	}
	w.mu.Lock()
	w.fallbacks[provider]++
	w.mu.Unlock()
}

func (w *latencyWindow) reset() {
	w.mu.Lock()
	w.resetLocked()
	w.mu.Unlock()
}

// snapshot reports stages in pipeline order, skipping stages with neither samples nor errors.
func (w *latencyWindow) snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      []StageStats{},
	}
	for i, spec := range pipelineStages {
		ring := &w.stages[i]
		if ring.count == 0 && len(ring.errors) == 0 {
			continue
		}
		st := StageStats{Stage: spec.name, BudgetMS: spec.budgetMS}
		if len(ring.errors) > 0 {
			st.Errors = make(map[reliability.Kind]int, len(ring.errors))
			for k, v := range ring.errors {
				st.Errors[k] = v
			}
		}
		if vals := ring.held(); len(vals) > 0 {
			sort.Float64s(vals)
			var sum float64
			for _, v := range vals {
				sum += v
				if v > spec.budgetMS {
					st.OverBudget++
				}
			}
			st.Samples = len(vals)
			st.LastMS = roundMS(ring.last)
			st.MeanMS = roundMS(sum / float64(len(vals)))
			st.P50MS = roundMS(nearestRank(vals, 50))
			st.P95MS = roundMS(nearestRank(vals, 95))
			st.MaxMS = roundMS(vals[len(vals)-1])
		}
		out.Stages = append(out.Stages, st)
	}
	if len(w.fallbacks) > 0 {
		out.Fallbacks = make(map[string]int, len(w.fallbacks))
		for k, v := range w.fallbacks {
			out.Fallbacks[k] = v
		}
	}
	return out
}

// nearestRank returns the p-th percentile of sorted values.
func nearestRank(sorted []float64, p int) float64 {
	rank := int(math.Ceil(float64(p) / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func roundMS(v float64) float64 {
	return math.Round(v*10) / 10
}
