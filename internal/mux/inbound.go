package mux

import (
	"fmt"
	"math"
	"sync"
)

// FetchUnbounded, passed to Fetch, grants unlimited delivery permits.
const FetchUnbounded = int64(math.MaxInt64)

// inboundEntry is one element of the inbound queue: either a data chunk or
// the terminal end-of-stream marker. The explicit tag replaces the classic
// magic-sentinel-object trick, so exhaustive handling is compiler-visible.
type inboundEntry struct {
	data []byte
	end  bool
}

// inboundQueue is the demand-driven ordered queue between the connection's
// inbound path and the application handler.
//
// Contract: Push never blocks and always preserves order; the end entry,
// once pushed, is always the last entry delivered and nothing may be pushed
// after it. Delivery is governed by permits: Pause zeroes the demand,
// Fetch(n) adds up to n permits and resumes draining. The queue is
// logically unbounded; the high watermark only feeds the producer-side
// backpressure hint returned by Push, it never drops data.
//
// The queue starts with unbounded demand, matching a consumer that never
// throttles. Handler panics are recovered and routed to the error handler
// rather than propagating into the producer.
type inboundQueue struct {
	mu        sync.Mutex
	entries   []inboundEntry
	demand    int64
	draining  bool
	ended     bool // end entry pushed; nothing more may be enqueued
	highWater int

	handler    func(inboundEntry)
	errHandler func(error)
}

func newInboundQueue(highWater int) *inboundQueue {
	if highWater < 1 {
		highWater = 1
	}
	return &inboundQueue{
		demand:    FetchUnbounded,
		highWater: highWater,
	}
}

// SetHandler installs the single drain callback. Must be set before the
// first Push.
func (q *inboundQueue) SetHandler(h func(inboundEntry)) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

// SetErrorHandler installs the sink for consumer failures.
func (q *inboundQueue) SetErrorHandler(h func(error)) {
	q.mu.Lock()
	q.errHandler = h
	q.mu.Unlock()
}

// Push enqueues a data chunk. It never blocks. The return value is the
// producer-side backpressure hint: false means the pending backlog has
// reached the high watermark and the transport feeding this queue should
// throttle itself.
func (q *inboundQueue) Push(chunk []byte) bool {
	q.mu.Lock()
	if q.ended {
		eh := q.errHandler
		q.mu.Unlock()
		if eh != nil {
			eh(fmt.Errorf("inbound queue: data pushed after end of stream"))
		}
		return false
	}
	q.entries = append(q.entries, inboundEntry{data: chunk})
	room := len(q.entries) < q.highWater
	q.mu.Unlock()

	q.drain()
	return room
}

// PushEnd enqueues the terminal end-of-stream entry.
func (q *inboundQueue) PushEnd() {
	q.mu.Lock()
	if q.ended {
		eh := q.errHandler
		q.mu.Unlock()
		if eh != nil {
			eh(fmt.Errorf("inbound queue: duplicate end of stream"))
		}
		return
	}
	q.ended = true
	q.entries = append(q.entries, inboundEntry{end: true})
	q.mu.Unlock()

	q.drain()
}

// Pause suspends delivery. Entries accumulate until Fetch grants permits.
func (q *inboundQueue) Pause() {
	q.mu.Lock()
	q.demand = 0
	q.mu.Unlock()
}

// Fetch grants up to n more delivery permits (FetchUnbounded for no limit)
// and resumes draining if entries are pending. A non-positive n is a no-op.
func (q *inboundQueue) Fetch(n int64) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	if n == FetchUnbounded || q.demand > FetchUnbounded-n {
		q.demand = FetchUnbounded
	} else {
		q.demand += n
	}
	q.mu.Unlock()

	q.drain()
}

// Pending returns the number of undelivered entries. Metrics/test helper.
func (q *inboundQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// drain delivers entries in order while demand allows, on the caller's
// goroutine. A re-entrancy guard keeps nested Push/Fetch calls issued from
// inside the handler from recursing the drain; the outer drain picks the
// new work up on its next iteration.
func (q *inboundQueue) drain() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	for len(q.entries) > 0 && q.demand > 0 {
		e := q.entries[0]
		q.entries = q.entries[1:]
		if q.demand != FetchUnbounded {
			q.demand--
		}
		h := q.handler
		q.mu.Unlock()

		q.deliver(h, e)

		q.mu.Lock()
	}
	q.draining = false
	q.mu.Unlock()
}

func (q *inboundQueue) deliver(h func(inboundEntry), e inboundEntry) {
	defer func() {
		if r := recover(); r != nil {
			q.mu.Lock()
			eh := q.errHandler
			q.mu.Unlock()
			if eh != nil {
				eh(fmt.Errorf("inbound queue: consumer panic: %v", r))
			}
		}
	}()
	if h != nil {
		h(e)
	}
}
