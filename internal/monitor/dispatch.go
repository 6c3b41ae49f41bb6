package monitor

import "sync"

// dispatcher delivers ids to handlers on its own goroutine so a slow
// consumer never stalls the poll loop. Ids are delivered in emit order.
type dispatcher struct {
	mu       sync.Mutex
	handlers []Handler
	pending  []int64
	closed   bool
	wake     chan struct{}
	finished chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		wake:     make(chan struct{}, 1),
		finished: make(chan struct{}),
	}
}

func (d *dispatcher) subscribe(h Handler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

func (d *dispatcher) emit(ids []int64) {
	d.mu.Lock()
	d.pending = append(d.pending, ids...)
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// close delivers whatever is pending and stops the goroutine
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
	<-d.finished
}

func (d *dispatcher) run() {
	defer close(d.finished)
	for range d.wake {
		d.mu.Lock()
		ids := d.pending
		d.pending = nil
		handlers := d.handlers
		closed := d.closed
		d.mu.Unlock()

		for _, id := range ids {
			for _, h := range handlers {
				h(id)
			}
		}
		if closed {
			return
		}
	}
}
