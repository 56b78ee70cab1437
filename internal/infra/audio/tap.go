package audio

import (
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
)

// tap wraps a streamer and records the RMS amplitude of the most recent block
// of samples. It is the only analysis performed on the signal.
type tap struct {
	src beep.Streamer

	mu  sync.Mutex
	rms float64
}

func newTap(src beep.Streamer) *tap {
	return &tap{src: src}
}

func (t *tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.src.Stream(samples)
	if n > 0 {
		var sum float64
		for i := 0; i < n; i++ {
			mono := (samples[i][0] + samples[i][1]) / 2
			sum += mono * mono
		}
		t.mu.Lock()
		t.rms = math.Sqrt(sum / float64(n))
		t.mu.Unlock()
	}
	return n, ok
}

func (t *tap) Err() error {
	return t.src.Err()
}

// Amplitude returns the latest RMS scaled into [0,1].
func (t *tap) Amplitude() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := t.rms * 3
	if v > 1 {
		v = 1
	}
	return v
}
