package eventsource

import (
	"sync"

	"github.com/rs/zerolog"
)

// dispatcher serializes handler callbacks onto a single worker goroutine so
// that slow handlers never block stream reads beyond the configured bound,
// and callbacks never overlap.
type dispatcher struct {
	handler EventHandler
	log     zerolog.Logger
	metrics *clientMetrics

	// sem bounds the number of queued-or-running tasks; nil means
	// unbounded. Submitters block while the bound is reached.
	sem chan struct{}

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newDispatcher(handler EventHandler, log zerolog.Logger, metrics *clientMetrics, maxInFlight int) *dispatcher {
	d := &dispatcher{
		handler: handler,
		log:     log,
		metrics: metrics,
		done:    make(chan struct{}),
	}
	if maxInFlight > 0 {
		d.sem = make(chan struct{}, maxInFlight)
	}
	d.cond = sync.NewCond(&d.mu)
	go d.worker()
	return d
}

// submit enqueues a task for the worker. It returns false when the
// dispatcher has shut down and the task was dropped. With a task bound
// configured, submit blocks the caller until a permit is available.
func (d *dispatcher) submit(task func()) bool {
	if d.sem != nil {
		d.sem <- struct{}{}
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		if d.sem != nil {
			<-d.sem
		}
		return false
	}
	d.queue = append(d.queue, task)
	d.cond.Signal()
	d.mu.Unlock()
	return true
}

// submitWait enqueues a task and blocks until the worker has executed it,
// which also means every previously submitted task has completed.
func (d *dispatcher) submitWait(task func()) {
	ran := make(chan struct{})
	if !d.submit(func() {
		defer close(ran)
		task()
	}) {
		return
	}
	<-ran
}

func (d *dispatcher) worker() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		task := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.invoke(task)
		if d.sem != nil {
			<-d.sem
		}
	}
}

// invoke runs one handler task, containing any panic it raises.
func (d *dispatcher) invoke(task func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("event handler panicked")
		}
	}()
	task()
}

// close stops accepting tasks. Already queued tasks still run; the worker
// exits once the queue drains.
func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.cond.Broadcast()
	}
	d.mu.Unlock()
}

func (d *dispatcher) onOpen() {
	d.submit(d.handler.OnOpen)
}

func (d *dispatcher) onClosed() {
	d.submit(d.handler.OnClosed)
}

func (d *dispatcher) onMessage(event string, message *MessageEvent) {
	d.metrics.eventReceived(event)
	d.submit(func() { d.handler.OnMessage(event, message) })
}

// onMessageSync delivers a streaming event and blocks until the handler has
// returned, keeping the stream goroutine from reading past data the
// handler has not consumed yet.
func (d *dispatcher) onMessageSync(event string, message *MessageEvent) {
	d.metrics.eventReceived(event)
	d.submitWait(func() { d.handler.OnMessage(event, message) })
}

func (d *dispatcher) onComment(comment string) {
	d.submit(func() { d.handler.OnComment(comment) })
}

func (d *dispatcher) onError(err error) {
	d.submit(func() { d.handler.OnError(err) })
}
