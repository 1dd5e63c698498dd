package audioio

// Framer turns an arbitrary stream of samples into overlapping frames of
// size samples, a new frame every hop samples.
type Framer struct {
	size   int
	hop    int
	window []int16
	filled int
	fresh  int
}

// NewFramer creates a framer. hop must be in (0, size].
func NewFramer(size, hop int) *Framer {
	return &Framer{
		size:   size,
		hop:    hop,
		window: make([]int16, size),
	}
}

// Push appends samples and returns every frame completed by them.
// Returned slices are fresh copies owned by the caller.
func (f *Framer) Push(samples []int16) [][]int16 {
	var out [][]int16
	for len(samples) > 0 {
		// Shift in at most the samples still missing from the next frame.
		need := f.hop - f.fresh
		if f.filled < f.size {
			need = f.size - f.filled
		}
		n := min(need, len(samples))

		copy(f.window, f.window[n:])
		copy(f.window[f.size-n:], samples[:n])
		samples = samples[n:]
		f.filled = min(f.size, f.filled+n)
		f.fresh += n

		if f.filled == f.size && f.fresh >= f.hop {
			frame := make([]int16, f.size)
			copy(frame, f.window)
			out = append(out, frame)
			f.fresh = 0
		}
	}
	return out
}

// Reset drops buffered samples, e.g. after the input stream restarts.
func (f *Framer) Reset() {
	clear(f.window)
	f.filled = 0
	f.fresh = 0
}
