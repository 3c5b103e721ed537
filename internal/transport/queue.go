// internal/transport/queue.go
package transport

import (
	"context"
	"time"
)

// Exchanger is the single blocking operation of the bus. The Queue is its
// only caller at runtime; tests substitute fakes.
type Exchanger interface {
	SendAndWait(frame []byte, timeout time.Duration) ([]byte, error)
	Connected() bool
}

type result struct {
	data []byte
	err  error
}

type request struct {
	frame   []byte
	timeout time.Duration
	reply   chan result
}

// Queue serializes all bus traffic onto one logical access lane, so the
// poller and the dispatcher never write to the port concurrently. User
// commands go through the urgent lane and are taken ahead of the next
// scheduled poll; an exchange already on the wire always completes first.
type Queue struct {
	bus     Exchanger
	urgent  chan request
	routine chan request
}

func NewQueue(bus Exchanger) *Queue {
	return &Queue{
		bus:     bus,
		urgent:  make(chan request),
		routine: make(chan request),
	}
}

// Connected reports the underlying bus state.
func (q *Queue) Connected() bool {
	return q.bus.Connected()
}

// Run services submissions until the context is cancelled. Urgent requests
// win whenever both lanes are ready.
func (q *Queue) Run(ctx context.Context) {
	for {
		// Drain the urgent lane first.
		select {
		case r := <-q.urgent:
			q.serve(r)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case r := <-q.urgent:
			q.serve(r)
		case r := <-q.routine:
			q.serve(r)
		}
	}
}

func (q *Queue) serve(r request) {
	data, err := q.bus.SendAndWait(r.frame, r.timeout)
	r.reply <- result{data: data, err: err}
}

// Urgent submits a command exchange ahead of scheduled polling.
func (q *Queue) Urgent(ctx context.Context, frame []byte, timeout time.Duration) ([]byte, error) {
	return q.submit(ctx, q.urgent, frame, timeout)
}

// Routine submits a scheduled poll exchange.
func (q *Queue) Routine(ctx context.Context, frame []byte, timeout time.Duration) ([]byte, error) {
	return q.submit(ctx, q.routine, frame, timeout)
}

func (q *Queue) submit(ctx context.Context, lane chan request, frame []byte, timeout time.Duration) ([]byte, error) {
	r := request{frame: frame, timeout: timeout, reply: make(chan result, 1)}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case lane <- r:
	}

	select {
	case <-ctx.Done():
		// The exchange may still complete on the wire; the worker's reply
		// lands in the buffered channel and is dropped with the request.
		return nil, ctx.Err()
	case res := <-r.reply:
		return res.data, res.err
	}
}
