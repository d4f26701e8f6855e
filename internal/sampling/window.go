package sampling

// Window is a fixed-size circular buffer with a running sum. The mean is
// taken over the occupied slots only.
type Window struct {
	buf   []float64
	pos   int
	count int
	sum   float64
}

func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{buf: make([]float64, size)}
}

// Add inserts v, evicting the oldest value once the window is full, and
// returns the new mean.
func (w *Window) Add(v float64) float64 {
	if w.count == len(w.buf) {
		w.sum -= w.buf[w.pos]
	} else {
		w.count++
	}
	w.buf[w.pos] = v
	w.sum += v
	w.pos = (w.pos + 1) % len(w.buf)
	return w.Mean()
}

func (w *Window) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

func (w *Window) Count() int { return w.count }

func (w *Window) Size() int { return len(w.buf) }
