package ports

import "time"

// SchedulerService runs the resolver's polling loops. Jobs registered after
// Start are picked up immediately; Stop waits for in-flight runs to finish.
type SchedulerService interface {
	Start()
	Stop()

	// ScheduleRecurring registers fn to run every interval. The same job
	// never overlaps itself.
	ScheduleRecurring(name string, interval time.Duration, fn func()) error
}
