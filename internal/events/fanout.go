package events

import (
	"context"

	"github.com/nerrad567/claimd/internal/claim"
)

// Fanout delivers each event to every observer in order.
type Fanout []claim.Observer

// Observe implements claim.Observer.
func (f Fanout) Observe(ctx context.Context, ev claim.Event) {
	for _, o := range f {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}
