package runtime

import (
	"context"

	"github.com/aretw0/conductor/pkg/domain"
)

// ChannelSink adapts callbacks into a typed event stream. Sends block until
// the receiver is ready or the run context ends, so the receiver must drain
// ch for the duration of the run.
func ChannelSink(ch chan<- domain.Event) domain.Callbacks {
	return domain.Callbacks{
		OnEvent: func(ctx context.Context, e domain.Event) {
			select {
			case ch <- e:
			case <-ctx.Done():
			}
		},
	}
}
