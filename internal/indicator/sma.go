package indicator

import "math"

// SMA calculates Simple Moving Average over a rolling window.
// The mean is recomputed from the whole window on every update.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	current float64
}

var _ Indicator = (*SMA)(nil)

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(price float64) {
	s.buf[s.idx] = price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		var sum float64
		for _, v := range s.buf {
			sum += v
		}
		s.current = sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// SMASeries returns the trailing simple moving average for every index of
// values. Entries before the window is full are NaN.
func SMASeries(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sma := NewSMA(window)
	for i, v := range values {
		sma.Update(v)
		if sma.Ready() {
			out[i] = sma.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
