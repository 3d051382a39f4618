package supply

import (
	"time"

	"makerwatch/internal/model"
)

// History is the trailing window of supply samples, ordered by time.
//
// Samples older than the window are evicted oldest-first. The most recently
// evicted sample is kept aside as the baseline: it has left the live window but
// still anchors the change-over-window query.
type History struct {
	window   time.Duration
	samples  []model.SupplySample
	baseline *model.SupplySample
}

// NewHistory creates an empty history bounded to window.
func NewHistory(window time.Duration) *History {
	return &History{window: window}
}

// Window returns the configured trailing window.
func (h *History) Window() time.Duration { return h.window }

// Len reports the number of samples inside the live window.
func (h *History) Len() int { return len(h.samples) }

// Append adds a sample. Samples are expected in time order; an out-of-order
// sample is placed after every entry at or before its timestamp.
func (h *History) Append(sample model.SupplySample) {
	idx := len(h.samples)
	for idx > 0 && h.samples[idx-1].Timestamp.After(sample.Timestamp) {
		idx--
	}
	h.samples = append(h.samples, model.SupplySample{})
	copy(h.samples[idx+1:], h.samples[idx:])
	h.samples[idx] = sample
}

// Evict drops every sample older than the window relative to now.
func (h *History) Evict(now time.Time) int {
	cutoff := now.Add(-h.window)
	n := 0
	for n < len(h.samples) && h.samples[n].Timestamp.Before(cutoff) {
		n++
	}
	if n == 0 {
		return 0
	}
	last := h.samples[n-1]
	h.baseline = &last
	h.samples = append(h.samples[:0:0], h.samples[n:]...)
	return n
}

// Baseline returns the earliest known sample with timestamp <= now - window.
func (h *History) Baseline(now time.Time) (model.SupplySample, bool) {
	boundary := now.Add(-h.window)
	if h.baseline != nil && !h.baseline.Timestamp.After(boundary) {
		return *h.baseline, true
	}
	if len(h.samples) > 0 && !h.samples[0].Timestamp.After(boundary) {
		return h.samples[0], true
	}
	return model.SupplySample{}, false
}

// Samples returns a copy of the live window.
func (h *History) Samples() []model.SupplySample {
	out := make([]model.SupplySample, len(h.samples))
	copy(out, h.samples)
	return out
}
