package mux

import "sync"

// dispatchLoop is the stream's single logical execution context: one
// goroutine draining an unbounded mailbox of jobs. All inbound signal
// handlers and all completion callbacks for a stream run here, so
// stream-local state needs no per-call locking.
//
// Dispatch never blocks the caller (the mailbox grows as needed); the
// producer-facing backpressure story lives in the inbound queue's
// watermarks, not here.
type dispatchLoop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	jobs    []func()
	stopped bool
	done    chan struct{}

	// onPanic receives the recovered value when a job panics. The loop
	// itself survives the panic.
	onPanic func(recovered interface{})
}

func newDispatchLoop(onPanic func(interface{})) *dispatchLoop {
	d := &dispatchLoop{
		onPanic: onPanic,
		done:    make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatchLoop) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.jobs) == 0 && !d.stopped {
			d.cond.Wait()
		}
		if d.stopped {
			d.mu.Unlock()
			return
		}
		job := d.jobs[0]
		d.jobs = d.jobs[1:]
		d.mu.Unlock()

		d.invoke(job)
	}
}

func (d *dispatchLoop) invoke(job func()) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(r)
		}
	}()
	job()
}

// Dispatch queues fn for execution on the loop. Returns false if the loop
// has already stopped, in which case fn will never run.
func (d *dispatchLoop) Dispatch(fn func()) bool {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}
	d.jobs = append(d.jobs, fn)
	d.mu.Unlock()
	d.cond.Signal()
	return true
}

// Stop halts the loop. Jobs not yet started are discarded: stopping
// happens when the stream has closed, and late work must not run.
// Safe to call more than once, and from a job running on the loop itself.
func (d *dispatchLoop) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.jobs = nil
	d.mu.Unlock()
	d.cond.Signal()
}

// Wait blocks until the loop goroutine has exited. Test helper.
func (d *dispatchLoop) Wait() {
	<-d.done
}
