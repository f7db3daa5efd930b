// Package cluster defines the interface between the placement controller
// and the simulated datacenter. Every outbound effect and query the
// controller performs goes through this interface; the controller never
// touches simulator state any other way.
package cluster

import "github.com/ayjanu/EEC-Project/internal/domain"

// Cluster is the actuator and query surface of the simulated cluster.
//
// Mutators with asynchronous completion are SetMachineState (reported via
// the StateChangeComplete hook) and MigrateVM (reported via MigrationDone).
// Their post-conditions are not observable until the completion callback
// fires; callers must not assume the new state before then.
type Cluster interface {
	// MachineTotal returns the number of machines in the census.
	// Machine ids are the dense range [0, MachineTotal).
	MachineTotal() int

	// MachineInfo returns the live state of a machine.
	MachineInfo(id domain.MachineID) (domain.MachineInfo, error)

	// CreateVM creates a new, unattached VM of the given type targeting
	// the given CPU architecture.
	CreateVM(vmType domain.VMType, cpu domain.CPUType) (domain.VMID, error)

	// AttachVM binds an unattached VM to a machine. The machine must be
	// in S0, share the VM's CPU architecture and have room for the VM
	// memory overhead.
	AttachVM(vm domain.VMID, machine domain.MachineID) error

	// AddTask starts a task on a VM at the given priority.
	AddTask(vm domain.VMID, task domain.TaskID, prio domain.Priority) error

	// RemoveTask detaches a task from a VM.
	RemoveTask(vm domain.VMID, task domain.TaskID) error

	// MigrateVM begins moving a VM to another machine. Completion is
	// reported through the MigrationDone hook; until then the VM must
	// not receive or lose tasks.
	MigrateVM(vm domain.VMID, machine domain.MachineID) error

	// ShutdownVM stops a VM and releases its host memory.
	ShutdownVM(vm domain.VMID) error

	// VMInfo returns the live state of a VM.
	VMInfo(id domain.VMID) (domain.VMInfo, error)

	// SetMachineState requests a sleep-state transition. Completion is
	// reported through the StateChangeComplete hook.
	SetMachineState(id domain.MachineID, s domain.SState) error

	// SetCorePerformance sets the performance level of one core. Under
	// the simulator's semantics a single call on core 0 applies
	// machine-wide.
	SetCorePerformance(id domain.MachineID, core int, p domain.PState) error

	// TaskInfo returns the live state of a task, including its fixed
	// requirements.
	TaskInfo(id domain.TaskID) (domain.TaskInfo, error)

	// SetTaskPriority changes the scheduling hint for a task.
	SetTaskPriority(id domain.TaskID, prio domain.Priority) error

	// SLAReport returns the percentage of tasks in the given tier that
	// violated their SLA so far.
	SLAReport(sla domain.SLA) float64

	// ClusterEnergy returns the total energy consumed so far in KW-Hour.
	ClusterEnergy() float64
}
