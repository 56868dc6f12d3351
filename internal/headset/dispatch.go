package headset

import (
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

// Handler receives every decoded sample together with the current blink
// classification, or nil if no blink has been classified yet this session.
type Handler func(thinkgear.Sample, *blink.Event)

type delivery struct {
	sample thinkgear.Sample
	blink  *blink.Event
}

// subscriber owns an unbounded FIFO and a goroutine that drains it into the
// handler. The acquisition loop only ever appends, so a slow handler delays
// its own deliveries and nothing else.
type subscriber struct {
	id      string
	handler Handler

	mu      sync.Mutex
	queue   []delivery
	queued  uint64
	handled uint64
	idle    *sync.Cond
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newSubscriber(h Handler) *subscriber {
	s := &subscriber{
		id:      uuid.NewString(),
		handler: h,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *subscriber) push(d delivery) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, d)
	s.queued++
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// flush blocks until the handler has returned for every delivery queued
// before the call.
func (s *subscriber) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.queued
	for s.handled < target {
		s.idle.Wait()
	}
}

// close stops accepting deliveries. Anything already queued is still handed
// to the handler before run returns.
func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			<-s.wake
			continue
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, d := range batch {
			s.handler(d.sample, d.blink)
			s.mu.Lock()
			s.handled++
			s.idle.Broadcast()
			s.mu.Unlock()
		}
	}
}

// dispatcher fans samples out to subscribers in decode order.
type dispatcher struct {
	mu   sync.Mutex
	subs map[string]*subscriber
	// order keeps delivery deterministic across subscribers
	order []string
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[string]*subscriber)}
}

func (d *dispatcher) add(h Handler) string {
	s := newSubscriber(h)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[s.id] = s
	d.order = append(d.order, s.id)
	return s.id
}

func (d *dispatcher) remove(id string) *subscriber {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.subs[id]
	if !ok {
		return nil
	}
	delete(d.subs, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	s.close()
	return s
}

func (d *dispatcher) publish(sample thinkgear.Sample, ev *blink.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.order {
		var cp *blink.Event
		if ev != nil {
			e := *ev
			cp = &e
		}
		d.subs[id].push(delivery{sample: sample, blink: cp})
	}
}

func (d *dispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

func (d *dispatcher) backlog() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.subs {
		n += s.pending()
	}
	return n
}

// flush waits until every subscriber has handled what was published before
// the call. Handlers must not wait on the acquisition loop.
func (d *dispatcher) flush() {
	d.mu.Lock()
	subs := make([]*subscriber, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.mu.Unlock()

	for _, s := range subs {
		s.flush()
	}
}

// closeAll closes every subscriber and waits for their queues to drain.
func (d *dispatcher) closeAll() {
	d.mu.Lock()
	subs := make([]*subscriber, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
		s.close()
	}
	d.subs = make(map[string]*subscriber)
	d.order = nil
	d.mu.Unlock()

	for _, s := range subs {
		<-s.done
	}
}
