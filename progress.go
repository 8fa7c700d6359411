package udefarp

// ProgressFunc receives a percentage in [0, 100]. Values passed to it never
// decrease within one engine call.
type ProgressFunc func(percent int)

// progress clamps and deduplicates checkpoints before forwarding them.
type progress struct {
	fn   ProgressFunc
	last int
}

func newProgress(fn ProgressFunc) *progress {
	return &progress{fn: fn, last: -1}
}

// report emits p if it moves the bar forward.
func (p *progress) report(percent int) {
	if p == nil || p.fn == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent <= p.last {
		return
	}
	p.last = percent
	p.fn(percent)
}

// span maps step/total into [from, to].
func (p *progress) span(from, to, step, total int) {
	if total <= 0 {
		p.report(to)
		return
	}
	p.report(from + (to-from)*step/total)
}

// sub returns a ProgressFunc that maps a nested call's 0-100 into [from, to]
// of this call.
func (p *progress) sub(from, to int) ProgressFunc {
	return func(percent int) {
		p.report(from + (to-from)*percent/100)
	}
}
