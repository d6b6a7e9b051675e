package tail

import "context"

// Merge forwards the events of every feed to one feed. Events of the same
// source keep their order; sources interleave arbitrarily. The merged feed
// completes once all sources have completed and fails as soon as one of them
// fails. Sources are never cancelled: after a failure their remaining output
// is drained and discarded.
func Merge(ctx context.Context, feeds ...Feed) Feed {
	out := make(chan Message)
	go func() {
		defer close(out)
		e := emitter{ctx: ctx, out: out}

		in := make(chan Message)
		done := make(chan struct{})
		defer close(done)
		for _, f := range feeds {
			go forward(f, in, done)
		}

		for pending := len(feeds); pending > 0; {
			var m Message
			select {
			case m = <-in:
			case <-ctx.Done():
				return
			}
			switch m.Kind {
			case KindEvent:
				if !e.send(m) {
					return
				}
			case KindComplete:
				pending--
			case KindError:
				e.send(m)
				return
			}
		}
		e.send(completeMessage())
	}()
	return out
}

func forward(src Feed, in chan<- Message, done <-chan struct{}) {
	terminated := false
	for m := range src {
		if m.Kind != KindEvent {
			terminated = true
		}
		select {
		case in <- m:
		case <-done:
		}
	}
	if !terminated {
		select {
		case in <- errorMessage(ErrFeedClosed):
		case <-done:
		}
	}
}

// Defer returns a feed that runs resolve and then merges the feeds it
// returns. A resolve error fails the feed.
func Defer(ctx context.Context, resolve func(ctx context.Context) ([]Feed, error)) Feed {
	out := make(chan Message)
	go func() {
		defer close(out)
		e := emitter{ctx: ctx, out: out}
		feeds, err := resolve(ctx)
		if err != nil {
			e.send(errorMessage(err))
			return
		}
		for m := range Merge(ctx, feeds...) {
			if !e.send(m) {
				return
			}
		}
	}()
	return out
}
