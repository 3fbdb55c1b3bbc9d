package sim

import (
	"container/heap"
	"time"
)

// EventID identifies a pending scheduler event.
type EventID uint64

type event struct {
	id    EventID
	at    time.Duration
	seq   uint64
	label string
	fn    func()
	index int
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at == q[j].at {
		return q[i].seq < q[j].seq
	}
	return q[i].at < q[j].at
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}

// Scheduler is a virtual clock with an ordered queue of one-shot events.
// Events due at the same instant fire in the order they were scheduled.
// It is not safe for concurrent use; owners serialize access.
type Scheduler struct {
	now    time.Duration
	seq    uint64
	nextID EventID
	queue  eventQueue
	byID   map[EventID]*event
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		byID: make(map[EventID]*event),
	}
}

// Now returns the virtual time elapsed since the scheduler was created.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// After schedules fn to run d from now. Negative delays count as zero.
func (s *Scheduler) After(d time.Duration, label string, fn func()) EventID {
	if d < 0 {
		d = 0
	}
	s.nextID++
	s.seq++
	ev := &event{
		id:    s.nextID,
		at:    s.now + d,
		seq:   s.seq,
		label: label,
		fn:    fn,
	}
	heap.Push(&s.queue, ev)
	s.byID[ev.id] = ev
	return ev.id
}

// Cancel drops a pending event. It reports false if the event already ran
// or was cancelled before.
func (s *Scheduler) Cancel(id EventID) bool {
	ev, ok := s.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, ev.index)
	delete(s.byID, id)
	return true
}

// AdvanceTo fires every event due at or before t and returns how many ran.
func (s *Scheduler) AdvanceTo(t time.Duration) int {
	fired := 0
	for len(s.queue) > 0 && s.queue[0].at <= t {
		ev := heap.Pop(&s.queue).(*event)
		delete(s.byID, ev.id)
		s.now = ev.at
		ev.fn()
		fired++
	}
	if t > s.now {
		s.now = t
	}
	return fired
}

func (s *Scheduler) Advance(d time.Duration) int {
	if d < 0 {
		d = 0
	}
	return s.AdvanceTo(s.now + d)
}

func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// PendingLabeled counts pending events carrying label.
func (s *Scheduler) PendingLabeled(label string) int {
	n := 0
	for _, ev := range s.queue {
		if ev.label == label {
			n++
		}
	}
	return n
}

// NextAt reports when the earliest pending event is due.
func (s *Scheduler) NextAt() (time.Duration, bool) {
	if len(s.queue) == 0 {
		return 0, false
	}
	return s.queue[0].at, true
}

// Clear drops every pending event.
func (s *Scheduler) Clear() {
	for _, ev := range s.queue {
		ev.index = -1
	}
	s.queue = nil
	s.byID = make(map[EventID]*event)
}

// loop re-arms itself after each firing until stopped.
type loop struct {
	name    string
	sched   *Scheduler
	next    func() time.Duration
	fire    func()
	id      EventID
	stopped bool
}

func startLoop(s *Scheduler, name string, next func() time.Duration, fire func()) *loop {
	l := &loop{name: name, sched: s, next: next, fire: fire}
	l.arm()
	return l
}

func (l *loop) arm() {
	l.id = l.sched.After(l.next(), l.name, l.run)
}

func (l *loop) run() {
	if l.stopped {
		return
	}
	l.fire()
	if !l.stopped {
		l.arm()
	}
}

func (l *loop) stop() {
	l.stopped = true
	l.sched.Cancel(l.id)
}

func every(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}
