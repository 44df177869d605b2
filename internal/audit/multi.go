package audit

import "context"

type multi []Sink

// Multi returns a Sink that forwards every entry to each non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) LogCommand(ctx context.Context, e Entry) {
	e = fill(e)
	for _, s := range m {
		s.LogCommand(ctx, e)
	}
}
