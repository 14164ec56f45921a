// Package stream bridges a token-by-token producer to a client-visible
// event sequence with explicit completion and error framing.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Event types delivered to a Sink.
const (
	// TypeContent carries one generated token.
	TypeContent = "content"

	// TypeDone marks successful completion. It is always the last event of
	// a successful stream.
	TypeDone = "done"

	// TypeError marks failed completion. At most one terminal event is
	// ever delivered, so TypeDone and TypeError are mutually exclusive.
	TypeError = "error"
)

// ErrSinkClosed indicates the client side of the stream went away. The
// coordinator stops requesting tokens when it sees this.
var ErrSinkClosed = errors.New("stream sink closed")

// Event is one element of the outgoing stream.
type Event struct {
	Type  string
	Token string // set for TypeContent
	Err   string // set for TypeError
}

// Sink receives stream events in order. Send returning an error means the
// client can no longer be reached; the coordinator will not call Send again.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event) error

// Send implements Sink.
func (f SinkFunc) Send(e Event) error { return f(e) }

// Producer generates tokens and hands each one to emit as it becomes
// available. It must stop and return promptly once emit returns an error.
// llm.Generator.GenerateStream satisfies this shape via a closure.
type Producer func(ctx context.Context, emit func(token string) error) error

// Coordinator turns a Producer's tokens into a framed event stream.
type Coordinator struct{}

// New creates a Coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Run drives producer and forwards its tokens to sink as content events,
// then emits exactly one terminal event: done on success, error if the
// producer failed. Already-delivered tokens are never retracted.
//
// If the sink fails or ctx is canceled, the producer is stopped through its
// emit callback and no terminal event is sent; there is no client left to
// receive one. The returned error is nil only for a completed stream.
func (c *Coordinator) Run(ctx context.Context, producer Producer, sink Sink) error {
	var sinkBroken bool

	emit := func(token string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.Send(Event{Type: TypeContent, Token: token}); err != nil {
			sinkBroken = true
			return fmt.Errorf("%w: %v", ErrSinkClosed, err)
		}
		return nil
	}

	err := producer(ctx, emit)

	switch {
	case err == nil:
		if sendErr := sink.Send(Event{Type: TypeDone}); sendErr != nil {
			return fmt.Errorf("%w: %v", ErrSinkClosed, sendErr)
		}
		return nil

	case sinkBroken:
		return err

	case ctx.Err() != nil:
		return ctx.Err()

	default:
		// Producer failure: deliver the terminal error event, keeping the
		// partial output that already reached the client.
		if sendErr := sink.Send(Event{Type: TypeError, Err: err.Error()}); sendErr != nil {
			return errors.Join(err, fmt.Errorf("%w: %v", ErrSinkClosed, sendErr))
		}
		return err
	}
}

// Collect drives producer to completion and returns the concatenated
// output. Used for non-streaming responses.
func (c *Coordinator) Collect(ctx context.Context, producer Producer) (string, error) {
	var sb strings.Builder
	err := producer(ctx, func(token string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sb.WriteString(token)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
