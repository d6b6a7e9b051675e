package tail

import (
	"context"
	"errors"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/model"
)

// ErrFeedClosed is reported when a feed ends without a terminal message,
// which happens only when its producer was cancelled.
var ErrFeedClosed = errors.New("feed closed before completion")

// Kind tags a Message.
type Kind uint8

const (
	KindEvent Kind = iota
	KindError
	KindComplete
)

// Message is one item of a Feed: an event, or the single terminal error or
// completion after which the channel is closed.
type Message struct {
	Kind  Kind
	Event model.LogEvent
	Err   error
}

func eventMessage(e model.LogEvent) Message { return Message{Kind: KindEvent, Event: e} }
func errorMessage(err error) Message       { return Message{Kind: KindError, Err: err} }
func completeMessage() Message             { return Message{Kind: KindComplete} }

// Feed is a live sequence of log events. A producer sends zero or more
// KindEvent messages followed by at most one KindError or KindComplete, then
// closes the channel.
type Feed <-chan Message

// Subscribe consumes f until it terminates or ctx is done. onEvent is called
// for each event, then exactly one of onError or onComplete. Nil callbacks are
// skipped. The terminal error, if any, is also returned.
func Subscribe(ctx context.Context, f Feed, onEvent func(model.LogEvent), onError func(error), onComplete func()) error {
	fail := func(err error) error {
		if onError != nil {
			onError(err)
		}
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case m, ok := <-f:
			if !ok {
				return fail(ErrFeedClosed)
			}
			switch m.Kind {
			case KindEvent:
				if onEvent != nil {
					onEvent(m.Event)
				}
			case KindError:
				return fail(m.Err)
			case KindComplete:
				if onComplete != nil {
					onComplete()
				}
				return nil
			}
		}
	}
}

// emitter sends on a feed channel until its context is done.
type emitter struct {
	ctx context.Context
	out chan<- Message
}

func (e emitter) send(m Message) bool {
	select {
	case e.out <- m:
		return true
	case <-e.ctx.Done():
		return false
	}
}
