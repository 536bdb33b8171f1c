package risk

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Summary describes the fake-probability scores observed in a session window.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Max    float64
}

// Tracker keeps a bounded ring of recent fake probabilities and summarizes
// them. The window is fixed at construction so steady-state observation does
// not allocate.
type Tracker struct {
	mu     sync.Mutex
	scores []float64
	next   int
	filled bool
}

// NewTracker returns a tracker over the last windowSize scores.
func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = 64
	}
	return &Tracker{scores: make([]float64, windowSize)}
}

// Observe records one score, evicting the oldest once the window is full.
func (t *Tracker) Observe(fakeProb float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scores[t.next] = float64(fakeProb)
	t.next++
	if t.next == len(t.scores) {
		t.next = 0
		t.filled = true
	}
}

// Summarize reports mean, standard deviation and maximum over the current
// window. A zero Summary is returned before any score arrives.
func (t *Tracker) Summarize() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.next
	if t.filled {
		n = len(t.scores)
	}
	if n == 0 {
		return Summary{}
	}

	window := t.scores[:n]
	s := Summary{
		Count: n,
		Mean:  stat.Mean(window, nil),
		Max:   window[0],
	}
	if n > 1 {
		s.StdDev = stat.StdDev(window, nil)
	}
	for _, v := range window[1:] {
		if v > s.Max {
			s.Max = v
		}
	}
	return s
}

// Reset discards the window contents.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = 0
	t.filled = false
}
