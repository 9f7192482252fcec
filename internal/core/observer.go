package core

import (
	"log/slog"
)

// Subscribe returns a channel that receives every event committed after
// the call, and a function that ends the subscription. A subscriber that
// falls more than buffer events behind misses live events; the durable log
// in Events still has them.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
	return ch, cancel
}

func (s *Store) publish(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("subscriber lagging, dropped live event", "subscriber", id, "seq", ev.Seq)
		}
	}
}
