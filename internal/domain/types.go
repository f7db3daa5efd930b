// Package domain contains the data model shared by the placement engine,
// the power governor and the migration planner. The controller never owns a
// pointer graph: machines, VMs and tasks are referred to by their stable
// simulator-assigned integer ids and resolved through cluster queries at
// each use.
package domain

// MachineID identifies a physical machine. Ids are dense integers assigned
// by the simulator census and are never reused.
type MachineID uint32

// VMID identifies a virtual machine.
type VMID uint32

// TaskID identifies a task.
type TaskID uint64

// NoMachine marks a VM that is not attached to any machine.
const NoMachine = MachineID(^uint32(0))

// Time is a simulator timestamp in microseconds since the start of the run.
type Time uint64

// Seconds converts a simulator timestamp to wall-clock seconds.
func (t Time) Seconds() float64 {
	return float64(t) / 1e6
}

// CPUType is the instruction set architecture of a machine or VM.
type CPUType int

const (
	ARM CPUType = iota
	POWER
	RISCV
	X86
)

func (c CPUType) String() string {
	switch c {
	case ARM:
		return "ARM"
	case POWER:
		return "POWER"
	case RISCV:
		return "RISCV"
	case X86:
		return "X86"
	default:
		return "UNKNOWN_CPU"
	}
}

// VMType is the guest flavor a VM runs. A task may only be placed on a VM
// of its required type.
type VMType int

const (
	AIX VMType = iota
	Linux
	LinuxRT
	Win
)

func (v VMType) String() string {
	switch v {
	case AIX:
		return "AIX"
	case Linux:
		return "LINUX"
	case LinuxRT:
		return "LINUX_RT"
	case Win:
		return "WIN"
	default:
		return "UNKNOWN_VM"
	}
}

// SLA is the service-level class of a task. SLA0 is the strictest tier,
// SLA3 is best effort.
type SLA int

const (
	SLA0 SLA = iota
	SLA1
	SLA2
	SLA3
)

func (s SLA) String() string {
	switch s {
	case SLA0:
		return "SLA0"
	case SLA1:
		return "SLA1"
	case SLA2:
		return "SLA2"
	case SLA3:
		return "SLA3"
	default:
		return "UNKNOWN_SLA"
	}
}

// Priority is the scheduling hint handed to the cluster's underlying
// scheduler alongside a task.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMid
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMid:
		return "MID"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN_PRIORITY"
	}
}

// PState is a per-core performance level. P0 is the highest frequency and
// power draw, P3 the lowest.
type PState int

const (
	P0 PState = iota
	P1
	P2
	P3
)

func (p PState) String() string {
	switch p {
	case P0:
		return "P0"
	case P1:
		return "P1"
	case P2:
		return "P2"
	case P3:
		return "P3"
	default:
		return "UNKNOWN_PSTATE"
	}
}

// SState is a machine sleep state. S0 is fully active, S5 is powered off;
// the intermediate states trade wake latency for idle power. The ordinal
// value indexes the machine's idle-power table.
type SState int

const (
	S0 SState = iota
	S0i1
	S1
	S2
	S3
	S4
	S5
)

func (s SState) String() string {
	switch s {
	case S0:
		return "S0"
	case S0i1:
		return "S0i1"
	case S1:
		return "S1"
	case S2:
		return "S2"
	case S3:
		return "S3"
	case S4:
		return "S4"
	case S5:
		return "S5"
	default:
		return "UNKNOWN_SSTATE"
	}
}

// VMMemoryOverhead is the memory cost in MB of instantiating a VM,
// reserved on the host in addition to per-task memory.
const VMMemoryOverhead = 8
