// Package simfake is an in-memory stand-in for the discrete-event
// simulator's cluster. Tests and the demo driver build a fleet, feed the
// controller hooks and assert on the resulting machine, VM and task
// state. Asynchronous effects (sleep transitions, migrations) stay
// pending until the caller completes them, mirroring the simulator's
// completion callbacks.
package simfake

import (
	"fmt"

	"github.com/ayjanu/EEC-Project/internal/cluster"
	"github.com/ayjanu/EEC-Project/internal/domain"
)

type machine struct {
	info domain.MachineInfo

	// pendingSState is the target of an in-flight sleep transition.
	pendingSState *domain.SState
}

type vm struct {
	info domain.VMInfo

	// pendingTarget is the destination of an in-flight migration.
	pendingTarget *domain.MachineID
	migrating     bool
}

type task struct {
	info domain.TaskInfo
	vm   domain.VMID
	on   bool
}

// Cluster is the fake simulator cluster.
type Cluster struct {
	machines []*machine
	vms      []*vm
	tasks    map[domain.TaskID]*task
	nextTask domain.TaskID

	calls []string

	// Error injection for actuator-failure tests.
	FailCreateVM error
	FailAttachVM error
	FailAddTask  error
	FailMigrate  error

	// SLAViolations and Energy feed the final report queries.
	SLAViolations map[domain.SLA]float64
	Energy        float64
}

// MachineSpec describes a fake machine.
type MachineSpec struct {
	CPU         domain.CPUType
	Cores       int
	MemoryMB    uint64
	GPU         bool
	SState      domain.SState
	SStatePower []uint64
}

// TaskSpec describes a fake task.
type TaskSpec struct {
	CPU        domain.CPUType
	VMType     domain.VMType
	MemoryMB   uint64
	SLA        domain.SLA
	Deadline   domain.Time
	GPUCapable bool
}

// New creates an empty fake cluster.
func New() *Cluster {
	return &Cluster{
		tasks:         make(map[domain.TaskID]*task),
		SLAViolations: make(map[domain.SLA]float64),
	}
}

// AddMachine registers a machine and returns its id.
func (c *Cluster) AddMachine(spec MachineSpec) domain.MachineID {
	id := domain.MachineID(len(c.machines))
	power := spec.SStatePower
	if power == nil {
		power = []uint64{100, 50, 40, 30, 20, 10, 0}
	}
	c.machines = append(c.machines, &machine{
		info: domain.MachineInfo{
			ID:          id,
			CPU:         spec.CPU,
			NumCores:    spec.Cores,
			MemorySize:  spec.MemoryMB,
			GPU:         spec.GPU,
			SState:      spec.SState,
			PState:      domain.P3,
			SStatePower: power,
		},
	})
	return id
}

// SubmitTask registers a task definition and returns its id. The task is
// not running anywhere until the controller places it.
func (c *Cluster) SubmitTask(spec TaskSpec) domain.TaskID {
	id := c.nextTask
	c.nextTask++
	c.tasks[id] = &task{
		info: domain.TaskInfo{
			ID:               id,
			RequiredCPU:      spec.CPU,
			RequiredVMType:   spec.VMType,
			RequiredMemory:   spec.MemoryMB,
			SLA:              spec.SLA,
			Priority:         domain.PriorityLow,
			TargetCompletion: spec.Deadline,
			GPUCapable:       spec.GPUCapable,
		},
	}
	return id
}

func (c *Cluster) record(format string, args ...interface{}) {
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

// Calls returns the actuator call log.
func (c *Cluster) Calls() []string {
	return c.calls
}

// ResetCalls clears the actuator call log.
func (c *Cluster) ResetCalls() {
	c.calls = nil
}

// MachineTotal implements cluster.Cluster.
func (c *Cluster) MachineTotal() int {
	return len(c.machines)
}

// MachineInfo implements cluster.Cluster.
func (c *Cluster) MachineInfo(id domain.MachineID) (domain.MachineInfo, error) {
	m, err := c.machine(id)
	if err != nil {
		return domain.MachineInfo{}, err
	}
	return m.info, nil
}

// CreateVM implements cluster.Cluster.
func (c *Cluster) CreateVM(vmType domain.VMType, cpu domain.CPUType) (domain.VMID, error) {
	if c.FailCreateVM != nil {
		return 0, c.FailCreateVM
	}
	id := domain.VMID(len(c.vms))
	c.vms = append(c.vms, &vm{
		info: domain.VMInfo{
			ID:        id,
			Type:      vmType,
			CPU:       cpu,
			MachineID: domain.NoMachine,
		},
	})
	c.record("CreateVM(%s,%s)=%d", vmType, cpu, id)
	return id, nil
}

// AttachVM implements cluster.Cluster.
func (c *Cluster) AttachVM(id domain.VMID, machineID domain.MachineID) error {
	if c.FailAttachVM != nil {
		return c.FailAttachVM
	}
	v, err := c.vm(id)
	if err != nil {
		return err
	}
	m, err := c.machine(machineID)
	if err != nil {
		return err
	}
	if v.info.Attached() {
		return fmt.Errorf("vm %d: %w", id, domain.ErrConflict)
	}
	if m.info.SState != domain.S0 {
		return fmt.Errorf("machine %d not awake: %w", machineID, domain.ErrInvalidState)
	}
	if m.info.CPU != v.info.CPU {
		return fmt.Errorf("cpu mismatch: %w", domain.ErrConflict)
	}
	if !m.info.MemoryFits(domain.VMMemoryOverhead) {
		return fmt.Errorf("machine %d: %w", machineID, domain.ErrResourceExhausted)
	}
	m.info.MemoryUsed += domain.VMMemoryOverhead
	m.info.ActiveVMs++
	v.info.MachineID = machineID
	c.record("AttachVM(%d,%d)", id, machineID)
	return nil
}

// AddTask implements cluster.Cluster.
func (c *Cluster) AddTask(id domain.VMID, taskID domain.TaskID, prio domain.Priority) error {
	if c.FailAddTask != nil {
		return c.FailAddTask
	}
	v, err := c.vm(id)
	if err != nil {
		return err
	}
	t, ok := c.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %d: %w", taskID, domain.ErrNotFound)
	}
	if v.migrating {
		return fmt.Errorf("vm %d migrating: %w", id, domain.ErrConflict)
	}
	if !v.info.Attached() {
		return fmt.Errorf("vm %d unattached: %w", id, domain.ErrInvalidState)
	}
	m, err := c.machine(v.info.MachineID)
	if err != nil {
		return err
	}
	if m.info.SState != domain.S0 {
		return fmt.Errorf("machine %d not awake: %w", v.info.MachineID, domain.ErrInvalidState)
	}
	if !m.info.MemoryFits(t.info.RequiredMemory) {
		return fmt.Errorf("machine %d: %w", v.info.MachineID, domain.ErrResourceExhausted)
	}

	m.info.MemoryUsed += t.info.RequiredMemory
	m.info.ActiveTasks++
	v.info.ActiveTasks = append(v.info.ActiveTasks, taskID)
	t.vm = id
	t.on = true
	t.info.Priority = prio
	c.record("AddTask(%d,%d,%s)", id, taskID, prio)
	return nil
}

// RemoveTask implements cluster.Cluster.
func (c *Cluster) RemoveTask(id domain.VMID, taskID domain.TaskID) error {
	v, err := c.vm(id)
	if err != nil {
		return err
	}
	t, ok := c.tasks[taskID]
	if !ok || !t.on || t.vm != id {
		return fmt.Errorf("task %d not on vm %d: %w", taskID, id, domain.ErrNotFound)
	}
	c.detachTask(v, t)
	c.record("RemoveTask(%d,%d)", id, taskID)
	return nil
}

func (c *Cluster) detachTask(v *vm, t *task) {
	for i, tid := range v.info.ActiveTasks {
		if tid == t.info.ID {
			v.info.ActiveTasks = append(v.info.ActiveTasks[:i], v.info.ActiveTasks[i+1:]...)
			break
		}
	}
	if v.info.Attached() {
		if m, err := c.machine(v.info.MachineID); err == nil {
			m.info.ActiveTasks--
			m.info.MemoryUsed -= t.info.RequiredMemory
		}
	}
	t.on = false
}

// CompleteTask finishes a running task, freeing its memory. The caller
// then fires the controller's task-completion hook.
func (c *Cluster) CompleteTask(taskID domain.TaskID) {
	t, ok := c.tasks[taskID]
	if !ok || !t.on {
		return
	}
	if v, err := c.vm(t.vm); err == nil {
		c.detachTask(v, t)
	}
}

// MigrateVM implements cluster.Cluster. The move stays pending until
// CompleteMigration.
func (c *Cluster) MigrateVM(id domain.VMID, machineID domain.MachineID) error {
	if c.FailMigrate != nil {
		return c.FailMigrate
	}
	v, err := c.vm(id)
	if err != nil {
		return err
	}
	if _, err := c.machine(machineID); err != nil {
		return err
	}
	if v.migrating {
		return fmt.Errorf("vm %d: %w", id, domain.ErrConflict)
	}
	target := machineID
	v.pendingTarget = &target
	v.migrating = true
	c.record("MigrateVM(%d,%d)", id, machineID)
	return nil
}

// CompleteMigration lands a pending migration, moving the VM's memory and
// task accounting to the destination. The caller then fires the
// controller's migration-done hook.
func (c *Cluster) CompleteMigration(id domain.VMID) bool {
	v, err := c.vm(id)
	if err != nil || !v.migrating || v.pendingTarget == nil {
		return false
	}

	var moved uint64 = domain.VMMemoryOverhead
	for _, tid := range v.info.ActiveTasks {
		if t, ok := c.tasks[tid]; ok {
			moved += t.info.RequiredMemory
		}
	}

	if src, err := c.machine(v.info.MachineID); err == nil {
		src.info.MemoryUsed -= moved
		src.info.ActiveTasks -= len(v.info.ActiveTasks)
		src.info.ActiveVMs--
	}
	dst, err := c.machine(*v.pendingTarget)
	if err != nil {
		return false
	}
	dst.info.MemoryUsed += moved
	dst.info.ActiveTasks += len(v.info.ActiveTasks)
	dst.info.ActiveVMs++

	v.info.MachineID = *v.pendingTarget
	v.pendingTarget = nil
	v.migrating = false
	return true
}

// ShutdownVM implements cluster.Cluster.
func (c *Cluster) ShutdownVM(id domain.VMID) error {
	v, err := c.vm(id)
	if err != nil {
		return err
	}
	if v.info.Attached() {
		if m, err := c.machine(v.info.MachineID); err == nil {
			var held uint64 = domain.VMMemoryOverhead
			for _, tid := range v.info.ActiveTasks {
				if t, ok := c.tasks[tid]; ok {
					held += t.info.RequiredMemory
					t.on = false
				}
			}
			m.info.MemoryUsed -= held
			m.info.ActiveTasks -= len(v.info.ActiveTasks)
			m.info.ActiveVMs--
		}
	}
	v.info.MachineID = domain.NoMachine
	v.info.ActiveTasks = nil
	c.record("ShutdownVM(%d)", id)
	return nil
}

// VMInfo implements cluster.Cluster.
func (c *Cluster) VMInfo(id domain.VMID) (domain.VMInfo, error) {
	v, err := c.vm(id)
	if err != nil {
		return domain.VMInfo{}, err
	}
	return v.info, nil
}

// SetMachineState implements cluster.Cluster. The transition stays
// pending until CompleteStateChange.
func (c *Cluster) SetMachineState(id domain.MachineID, s domain.SState) error {
	m, err := c.machine(id)
	if err != nil {
		return err
	}
	target := s
	m.pendingSState = &target
	c.record("SetMachineState(%d,%s)", id, s)
	return nil
}

// CompleteStateChange lands a pending sleep transition. The caller then
// fires the controller's state-change hook.
func (c *Cluster) CompleteStateChange(id domain.MachineID) bool {
	m, err := c.machine(id)
	if err != nil || m.pendingSState == nil {
		return false
	}
	m.info.SState = *m.pendingSState
	m.pendingSState = nil
	return true
}

// SetCorePerformance implements cluster.Cluster. The simulator applies a
// single-core call machine-wide; the fake does the same.
func (c *Cluster) SetCorePerformance(id domain.MachineID, core int, p domain.PState) error {
	m, err := c.machine(id)
	if err != nil {
		return err
	}
	if core < 0 || core >= m.info.NumCores {
		return fmt.Errorf("core %d on machine %d: %w", core, id, domain.ErrNotFound)
	}
	m.info.PState = p
	c.record("SetCorePerformance(%d,%d,%s)", id, core, p)
	return nil
}

// TaskInfo implements cluster.Cluster.
func (c *Cluster) TaskInfo(id domain.TaskID) (domain.TaskInfo, error) {
	t, ok := c.tasks[id]
	if !ok {
		return domain.TaskInfo{}, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
	}
	return t.info, nil
}

// SetTaskPriority implements cluster.Cluster.
func (c *Cluster) SetTaskPriority(id domain.TaskID, prio domain.Priority) error {
	t, ok := c.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
	}
	t.info.Priority = prio
	c.record("SetTaskPriority(%d,%s)", id, prio)
	return nil
}

// SLAReport implements cluster.Cluster.
func (c *Cluster) SLAReport(sla domain.SLA) float64 {
	return c.SLAViolations[sla]
}

// ClusterEnergy implements cluster.Cluster.
func (c *Cluster) ClusterEnergy() float64 {
	return c.Energy
}

// TaskHost returns the VM a task is running on.
func (c *Cluster) TaskHost(id domain.TaskID) (domain.VMID, bool) {
	t, ok := c.tasks[id]
	if !ok || !t.on {
		return 0, false
	}
	return t.vm, true
}

// PendingSState returns the target of an in-flight sleep transition.
func (c *Cluster) PendingSState(id domain.MachineID) (domain.SState, bool) {
	m, err := c.machine(id)
	if err != nil || m.pendingSState == nil {
		return 0, false
	}
	return *m.pendingSState, true
}

func (c *Cluster) machine(id domain.MachineID) (*machine, error) {
	if int(id) >= len(c.machines) {
		return nil, fmt.Errorf("machine %d: %w", id, domain.ErrNotFound)
	}
	return c.machines[id], nil
}

func (c *Cluster) vm(id domain.VMID) (*vm, error) {
	if int(id) >= len(c.vms) {
		return nil, fmt.Errorf("vm %d: %w", id, domain.ErrNotFound)
	}
	return c.vms[id], nil
}

var _ cluster.Cluster = (*Cluster)(nil)

// PendingStateChanges lists machines with an in-flight sleep transition.
func (c *Cluster) PendingStateChanges() []domain.MachineID {
	var out []domain.MachineID
	for _, m := range c.machines {
		if m.pendingSState != nil {
			out = append(out, m.info.ID)
		}
	}
	return out
}

// PendingMigrationVMs lists VMs with an in-flight migration.
func (c *Cluster) PendingMigrationVMs() []domain.VMID {
	var out []domain.VMID
	for _, v := range c.vms {
		if v.migrating {
			out = append(out, v.info.ID)
		}
	}
	return out
}
