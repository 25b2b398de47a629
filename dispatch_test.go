package eventsource

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type funcHandler struct {
	onMessage func(string, *MessageEvent)
}

func (h *funcHandler) OnOpen()   {}
func (h *funcHandler) OnClosed() {}
func (h *funcHandler) OnMessage(event string, m *MessageEvent) {
	if h.onMessage != nil {
		h.onMessage(event, m)
	}
}
func (h *funcHandler) OnComment(string) {}
func (h *funcHandler) OnError(error)    {}

func TestDispatcher_TasksRunInSubmissionOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int
	d := newDispatcher(&funcHandler{}, zerolog.Nop(), newClientMetrics(""), 0)
	for i := 0; i < 100; i++ {
		i := i
		d.submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	d.close()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not drain")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestDispatcher_CallbacksNeverOverlap(t *testing.T) {
	var running atomic.Int32
	var overlapped atomic.Bool
	d := newDispatcher(&funcHandler{}, zerolog.Nop(), newClientMetrics(""), 0)
	for i := 0; i < 50; i++ {
		d.submit(func() {
			if running.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		})
	}
	d.close()
	<-d.done
	if overlapped.Load() {
		t.Fatal("handler tasks overlapped")
	}
}

func TestDispatcher_BackpressureBlocksSubmitter(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d := newDispatcher(&funcHandler{}, zerolog.Nop(), newClientMetrics(""), 1)
	d.submit(func() {
		started <- struct{}{}
		<-release
	})
	<-started

	blocked := make(chan struct{})
	go func() {
		d.submit(func() {})
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("submit did not block while the permit was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("submit stayed blocked after the permit was released")
	}
	d.close()
	<-d.done
}

func TestDispatcher_SubmitWaitBlocksUntilTaskRan(t *testing.T) {
	var ran atomic.Bool
	d := newDispatcher(&funcHandler{}, zerolog.Nop(), newClientMetrics(""), 0)
	d.submit(func() { time.Sleep(10 * time.Millisecond) })
	d.submitWait(func() { ran.Store(true) })
	if !ran.Load() {
		t.Fatal("submitWait returned before the task ran")
	}
	d.close()
	<-d.done
}

func TestDispatcher_PanicInHandlerIsContained(t *testing.T) {
	var after atomic.Bool
	d := newDispatcher(&funcHandler{}, zerolog.Nop(), newClientMetrics(""), 0)
	d.submit(func() { panic("boom") })
	d.submit(func() { after.Store(true) })
	d.close()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
	if !after.Load() {
		t.Fatal("task after panic did not run")
	}
}

func TestDispatcher_SubmitAfterCloseIsDropped(t *testing.T) {
	d := newDispatcher(&funcHandler{}, zerolog.Nop(), newClientMetrics(""), 0)
	d.close()
	<-d.done
	if d.submit(func() {}) {
		t.Fatal("submit accepted a task after close")
	}
	// must not deadlock
	d.submitWait(func() {})
}
