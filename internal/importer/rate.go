package importer

// rateTracker keeps a moving average of per-video processing throughput in
// bytes per second and derives a seconds-remaining estimate from it.
type rateTracker struct {
	window  int
	samples []rateSample
}

type rateSample struct {
	bytes   int64
	seconds float64
}

func newRateTracker(window int) *rateTracker {
	if window <= 0 {
		window = 5
	}
	return &rateTracker{window: window}
}

func (r *rateTracker) observe(bytes int64, seconds float64) {
	if seconds <= 0 {
		return
	}
	r.samples = append(r.samples, rateSample{bytes: bytes, seconds: seconds})
	if len(r.samples) > r.window {
		r.samples = r.samples[len(r.samples)-r.window:]
	}
}

// bytesPerSecond returns 0 until at least one sample has been observed.
func (r *rateTracker) bytesPerSecond() float64 {
	var bytes int64
	var seconds float64
	for _, s := range r.samples {
		bytes += s.bytes
		seconds += s.seconds
	}
	if seconds <= 0 {
		return 0
	}
	return float64(bytes) / seconds
}

// etaSeconds estimates time remaining for the given backlog; 0 when unknown.
func (r *rateTracker) etaSeconds(bytesRemaining int64) float64 {
	rate := r.bytesPerSecond()
	if rate <= 0 || bytesRemaining <= 0 {
		return 0
	}
	return float64(bytesRemaining) / rate
}
