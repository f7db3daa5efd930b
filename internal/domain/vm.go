package domain

// VMInfo is the simulator's view of a virtual machine. Type and CPU are
// fixed at creation; the machine binding and task set are live state.
type VMInfo struct {
	ID   VMID
	Type VMType
	CPU  CPUType

	// MachineID is the host the VM is attached to, or NoMachine while
	// the VM awaits attachment.
	MachineID MachineID

	ActiveTasks []TaskID
}

// Attached reports whether the VM is bound to a host.
func (v VMInfo) Attached() bool {
	return v.MachineID != NoMachine
}

// Load is the number of active tasks on the VM, the load measure used by
// the placement engine's fewest-tasks fit.
func (v VMInfo) Load() int {
	return len(v.ActiveTasks)
}
