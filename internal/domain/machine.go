package domain

// MachineInfo is the simulator's view of a physical machine at the moment
// of the query. Fixed fields (CPU, NumCores, MemorySize, GPU, SStatePower)
// never change after the census; the rest is live state and must be treated
// as stale the moment it is read.
type MachineInfo struct {
	ID         MachineID
	CPU        CPUType
	NumCores   int
	MemorySize uint64 // MB
	MemoryUsed uint64 // MB
	GPU        bool

	ActiveTasks int
	ActiveVMs   int

	SState SState
	PState PState

	// SStatePower holds the idle power draw for each supported sleep
	// state, indexed by SState ordinal. May be shorter than the full
	// state list for machines that do not support deep sleep.
	SStatePower []uint64
}

// IdlePower returns the idle power draw in the given sleep state, or
// maxUint64 when the machine does not report one. Machines without a
// reported S0 draw sort last in the efficiency ordering.
func (m MachineInfo) IdlePower(s SState) uint64 {
	if int(s) < len(m.SStatePower) {
		return m.SStatePower[s]
	}
	return ^uint64(0)
}

// Utilization is active tasks over core count for an S0 machine and zero
// for any other sleep state.
func (m MachineInfo) Utilization() float64 {
	if m.SState != S0 || m.NumCores <= 0 {
		return 0
	}
	return float64(m.ActiveTasks) / float64(m.NumCores)
}

// MemoryFits reports whether the machine has room for the given number of
// additional MB.
func (m MachineInfo) MemoryFits(mb uint64) bool {
	return m.MemoryUsed+mb <= m.MemorySize
}
