package core

// Task is a foreground job run when the clock reaches WakeAt
type Task struct {
	WakeAt  Epoch
	Handler func(t *Task, now Epoch) uint8
	Next    *Task
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps tasks sorted by wake time. It runs from the main loop, never
// from the tick handler, so it needs no interrupt masking.
type Scheduler struct {
	taskList *Task
	lastNow  Epoch
	started  bool
}

// Every builds a task that runs fn every interval seconds, starting at first
func Every(first Epoch, interval uint32, fn func(now Epoch)) *Task {
	return &Task{
		WakeAt: first,
		Handler: func(t *Task, now Epoch) uint8 {
			fn(now)
			t.WakeAt = now + Epoch(interval)
			return SF_RESCHEDULE
		},
	}
}

// Add inserts a task in sorted order by WakeAt
func (s *Scheduler) Add(t *Task) {
	if s.taskList == nil || t.WakeAt < s.taskList.WakeAt {
		t.Next = s.taskList
		s.taskList = t
		return
	}

	current := s.taskList
	for current.Next != nil && current.Next.WakeAt <= t.WakeAt {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Len returns the number of queued tasks
func (s *Scheduler) Len() int {
	n := 0
	for t := s.taskList; t != nil; t = t.Next {
		n++
	}
	return n
}

// Dispatch runs every task due at now and returns how many ran.
// If the clock went backwards since the last call, every task is pulled
// forward to now so a manual correction cannot stall the schedule.
func (s *Scheduler) Dispatch(now Epoch) int {
	if s.started && now < s.lastNow {
		s.rebase(now)
	}
	s.lastNow = now
	s.started = true

	ran := 0
	for s.taskList != nil && s.taskList.WakeAt <= now {
		task := s.taskList
		s.taskList = task.Next
		task.Next = nil

		result := task.Handler(task, now)
		ran++

		if result == SF_RESCHEDULE {
			if task.WakeAt <= now {
				// Never run a task twice in one dispatch
				task.WakeAt = now + 1
			}
			s.Add(task)
		}
	}
	return ran
}

func (s *Scheduler) rebase(now Epoch) {
	var tasks []*Task
	for t := s.taskList; t != nil; {
		next := t.Next
		t.Next = nil
		t.WakeAt = now
		tasks = append(tasks, t)
		t = next
	}
	s.taskList = nil
	for _, t := range tasks {
		s.Add(t)
	}
}
