package ril

import "time"

// Lane selects which queue an event or request goes to.
type Lane int

const (
	LaneNormal Lane = iota
	LanePrio
	// LaneAll schedules an event on every lane.
	LaneAll
)

func (l Lane) String() string {
	switch l {
	case LaneNormal:
		return "normal"
	case LanePrio:
		return "prio"
	case LaneAll:
		return "all"
	default:
		return "unknown"
	}
}

// prioRequests are served on the priority lane when there is one.
var prioRequests = map[Code]bool{
	RequestSignalStrength: true,
}

// Scheduler routes requests and events onto the normal and, optionally,
// the priority lane. Without a priority lane everything goes to normal.
type Scheduler struct {
	normal *Queue
	prio   *Queue
}

// NewScheduler returns a scheduler with a normal lane and, if withPrio is
// set, a priority lane.
func NewScheduler(withPrio bool) *Scheduler {
	s := &Scheduler{normal: NewQueue()}
	if withPrio {
		s.prio = NewQueue()
	}
	return s
}

// HasPrio reports whether a priority lane exists.
func (s *Scheduler) HasPrio() bool {
	return s.prio != nil
}

// Queue returns the queue serving lane. LaneAll and LanePrio without a
// priority lane resolve to the normal queue.
func (s *Scheduler) Queue(lane Lane) *Queue {
	if lane == LanePrio && s.prio != nil {
		return s.prio
	}
	return s.normal
}

// Dispatch queues req on the lane it belongs to.
func (s *Scheduler) Dispatch(req Request) error {
	lane := LaneNormal
	if prioRequests[req.Code] {
		lane = LanePrio
	}
	return s.Queue(lane).Push(req)
}

// Enqueue schedules fn on lane after delay.
func (s *Scheduler) Enqueue(lane Lane, fn EventFunc, delay time.Duration) {
	s.Queue(lane).Schedule(fn, delay)
	if lane == LaneAll && s.prio != nil {
		s.prio.Schedule(fn, delay)
	}
}

// CloseAll closes every lane and returns the requests they dropped.
func (s *Scheduler) CloseAll() []Request {
	dropped := s.normal.Close()
	if s.prio != nil {
		dropped = append(dropped, s.prio.Close()...)
	}
	return dropped
}

func (s *Scheduler) lanes() []Lane {
	if s.prio != nil {
		return []Lane{LaneNormal, LanePrio}
	}
	return []Lane{LaneNormal}
}
