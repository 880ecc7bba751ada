package attachment

import "io"

// ProgressFunc receives the fractional completion of the current transfer
// attempt, in [0,1], monotonically non-decreasing within one attempt.
type ProgressFunc func(fraction float64)

// progressReader reports bytes read through it as a fraction of total.
type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	fn    ProgressFunc
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	if fn == nil || total <= 0 {
		return r
	}
	return &progressReader{r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(float64(p.sent) / float64(p.total))
	}
	return n, err
}
