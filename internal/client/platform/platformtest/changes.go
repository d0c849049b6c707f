package platformtest

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
)

// subscription delivers every event in order through an unbounded queue, so
// a slow consumer never makes a writer block or lose an event.
type subscription struct {
	p     *Platform
	table string

	out    chan platform.ChangeEvent
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	queue []platform.ChangeEvent
}

func (c *Conn) Subscribe(ctx context.Context, table string) (platform.Subscription, error) {
	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(OpSubscribe, table); err != nil {
		return nil, err
	}
	if _, err := lookup(table); err != nil {
		return nil, err
	}

	s := &subscription{
		p:      p,
		table:  table,
		out:    make(chan platform.ChangeEvent),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	p.subs[s] = struct{}{}
	go s.run(ctx)
	return s, nil
}

// Subscribers returns the number of open feeds on table.
func (p *Platform) Subscribers(table string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for s := range p.subs {
		if s.table == table {
			n++
		}
	}
	return n
}

// broadcast queues an event for every feed on table. Callers hold p.mu.
func (p *Platform) broadcast(table string, typ platform.EventType) {
	ev := platform.ChangeEvent{Table: table, Type: typ}
	for s := range p.subs {
		if s.table == table {
			s.push(ev)
		}
	}
}

func (s *subscription) Events() <-chan platform.ChangeEvent { return s.out }

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.p.mu.Lock()
		delete(s.p.subs, s)
		s.p.mu.Unlock()
	})
	return nil
}

func (s *subscription) push(ev platform.ChangeEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) next() (platform.ChangeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return platform.ChangeEvent{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.out)
	for {
		ev, ok := s.next()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			case <-ctx.Done():
				_ = s.Close()
				return
			}
		}

		select {
		case s.out <- ev:
		case <-s.done:
			return
		case <-ctx.Done():
			_ = s.Close()
			return
		}
	}
}
