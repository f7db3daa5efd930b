package placement

import "github.com/ayjanu/EEC-Project/internal/domain"

// PriorityFor maps a task to its scheduling priority. SLA0 runs HIGH,
// SLA1 MID and everything else LOW, except that a task whose deadline
// headroom is at or below the urgent window is forced HIGH regardless of
// tier.
func PriorityFor(task domain.TaskInfo, now domain.Time, urgentWindow uint64) domain.Priority {
	var prio domain.Priority
	switch task.SLA {
	case domain.SLA0:
		prio = domain.PriorityHigh
	case domain.SLA1:
		prio = domain.PriorityMid
	case domain.SLA2:
		prio = domain.PriorityLow
	default:
		prio = domain.PriorityLow
	}

	if task.TargetCompletion > 0 {
		if task.TargetCompletion <= now || uint64(task.TargetCompletion-now) <= urgentWindow {
			prio = domain.PriorityHigh
		}
	}
	return prio
}

// highSLA reports whether a tier gets the strict placement treatment:
// idle-VM short-circuit, tighter escalation gate and a P0 raise on the
// host.
func highSLA(sla domain.SLA) bool {
	return sla == domain.SLA0 || sla == domain.SLA1
}
