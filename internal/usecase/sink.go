package usecase

import (
	"context"

	"go.uber.org/multierr"
)

// MultiSink writes every artifact to each sink in order.
type MultiSink []Sink

func NewMultiSink(sinks ...Sink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m MultiSink) WriteFile(ctx context.Context, rel string, data []byte) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.WriteFile(ctx, rel, data))
	}
	return err
}
