package service

// LiveLoops reports how many worker goroutines are currently inside run.
func (s *Supervisor) LiveLoops() int64 {
	return s.liveLoops.Load()
}

func (s *Supervisor) HeldLocks() int {
	return s.locks.size()
}

var (
	EventTypeFor = eventTypeFor
	PickUsername = pickUsername
)

var EventTypesByDevice = eventTypesByDevice

func (c SupervisorConfig) WithDefaults() SupervisorConfig {
	return c.withDefaults()
}
