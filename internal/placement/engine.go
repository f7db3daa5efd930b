// Package placement implements the task placement engine. On every new
// task it selects a target VM, creating one or waking a parked machine
// when the registered fleet cannot host the task, and keeps a
// deadline-ordered queue of tasks waiting for capacity.
package placement

import (
	"go.uber.org/zap"

	"github.com/ayjanu/EEC-Project/internal/cluster"
	"github.com/ayjanu/EEC-Project/internal/config"
	"github.com/ayjanu/EEC-Project/internal/domain"
	"github.com/ayjanu/EEC-Project/internal/metrics"
	"github.com/ayjanu/EEC-Project/internal/model"
)

// PressureHandler receives memory-pressure reports raised when a
// placement finds its target host over-committed at add time.
type PressureHandler interface {
	MemoryPressure(now domain.Time, machine domain.MachineID)
}

// Engine places arriving tasks onto VMs.
type Engine struct {
	cluster cluster.Cluster
	model   *model.Model
	cfg     config.SchedulerConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	pending  *Queue
	pressure PressureHandler
}

// New creates a placement engine.
func New(c cluster.Cluster, m *model.Model, cfg config.SchedulerConfig, mtr *metrics.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		cluster: c,
		model:   m,
		cfg:     cfg,
		metrics: mtr,
		logger:  logger.With(zap.String("component", "placement")),
		pending: NewQueue(),
	}
}

// SetPressureHandler wires the memory-pressure sink. The dispatcher
// routes these back into its MemoryWarning path.
func (e *Engine) SetPressureHandler(h PressureHandler) {
	e.pressure = h
}

// PlaceNewTask handles an arriving task: assigns its priority, selects a
// target VM and starts the task. Tasks that find no capacity are parked
// in the pending queue and retried on later events.
func (e *Engine) PlaceNewTask(now domain.Time, task domain.TaskID) {
	info, err := e.cluster.TaskInfo(task)
	if err != nil {
		e.logger.Warn("Failed to read arriving task", zap.Uint64("task_id", uint64(task)), zap.Error(err))
		return
	}
	e.place(now, info)
}

func (e *Engine) place(now domain.Time, info domain.TaskInfo) {
	prio := PriorityFor(info, now, e.cfg.UrgentWindow)

	vm, found := e.selectVM(info)
	if !found {
		vm, found = e.escalate(info)
	}
	if !found {
		e.park(info)
		return
	}

	e.addTask(now, vm, info, prio)
}

// selectVM scans the VM registry for a host. Rejections: migrating VMs,
// CPU or VM type mismatch, unattached VMs, hosts outside S0, hosts
// without memory room. Among survivors an idle VM wins, otherwise the
// fewest-tasks VM; ties go to registration order. SLA0/SLA1 tasks take
// the first idle VM without finishing the scan.
func (e *Engine) selectVM(info domain.TaskInfo) (domain.VMID, bool) {
	var (
		idleVM    domain.VMID
		idleFound bool
		bestVM    domain.VMID
		bestLoad  = int(^uint(0) >> 1)
		bestFound bool
	)

	for _, id := range e.model.VMs() {
		if e.model.IsMigrating(id) {
			continue
		}
		vmInfo, err := e.cluster.VMInfo(id)
		if err != nil {
			e.logger.Debug("Dropping unreadable VM from candidates", zap.Uint32("vm_id", uint32(id)), zap.Error(err))
			continue
		}
		if vmInfo.CPU != info.RequiredCPU || vmInfo.Type != info.RequiredVMType {
			continue
		}
		if !vmInfo.Attached() {
			continue
		}
		machInfo, err := e.cluster.MachineInfo(vmInfo.MachineID)
		if err != nil || machInfo.SState != domain.S0 {
			continue
		}
		if !machInfo.MemoryFits(info.RequiredMemory) {
			continue
		}

		if vmInfo.Load() == 0 {
			if highSLA(info.SLA) {
				return id, true
			}
			if !idleFound {
				idleVM = id
				idleFound = true
			}
			continue
		}
		if vmInfo.Load() < bestLoad {
			bestVM = id
			bestLoad = vmInfo.Load()
			bestFound = true
		}
	}

	if idleFound {
		return idleVM, true
	}
	return bestVM, bestFound
}

// escalate runs when no registered VM can take the task: first try to
// create a VM on an already-active machine, then wake a parked one.
func (e *Engine) escalate(info domain.TaskInfo) (domain.VMID, bool) {
	if vm, ok := e.createOnActive(info); ok {
		return vm, true
	}
	e.wakeForTask(info)
	return 0, false
}

// createOnActive creates and attaches a fresh VM on the most efficient
// active machine with room and headroom. SLA0/SLA1 tasks only accept
// lightly loaded hosts.
func (e *Engine) createOnActive(info domain.TaskInfo) (domain.VMID, bool) {
	utilizationGate := e.cfg.OverloadThreshold
	if highSLA(info.SLA) {
		utilizationGate = e.cfg.HighSLAUtilization
	}

	for _, id := range e.model.SortedByEfficiency() {
		if !e.model.IsActive(id) {
			continue
		}
		machInfo, err := e.cluster.MachineInfo(id)
		if err != nil || machInfo.SState != domain.S0 {
			continue
		}
		if machInfo.CPU != info.RequiredCPU {
			continue
		}
		if !machInfo.MemoryFits(info.RequiredMemory + e.cfg.VMMemoryOverhead) {
			continue
		}
		if e.model.Utilization(id) > utilizationGate {
			continue
		}

		vm, err := e.cluster.CreateVM(info.RequiredVMType, info.RequiredCPU)
		if err != nil {
			e.logger.Debug("VM create failed", zap.Uint32("machine_id", uint32(id)), zap.Error(err))
			continue
		}
		if err := e.cluster.AttachVM(vm, id); err != nil {
			e.logger.Debug("VM attach failed", zap.Uint32("vm_id", uint32(vm)),
				zap.Uint32("machine_id", uint32(id)), zap.Error(err))
			continue
		}
		e.model.RegisterVM(vm)
		e.logger.Info("Created VM for task",
			zap.Uint32("vm_id", uint32(vm)),
			zap.Uint32("machine_id", uint32(id)),
			zap.String("vm_type", info.RequiredVMType.String()),
		)
		return vm, true
	}
	return 0, false
}

// wakeForTask requests S0 on a parked machine that could host the task
// and registers a deferred-attach VM for it. The task itself stays in the
// pending queue until the wake-up completes. No new wake is issued while
// a deferred VM for the same CPU type is already waiting.
func (e *Engine) wakeForTask(info domain.TaskInfo) {
	if e.model.HasUnattached(info.RequiredCPU) {
		return
	}

	for _, id := range e.model.SortedByEfficiency() {
		if e.model.IsActive(id) {
			continue
		}
		machInfo, err := e.cluster.MachineInfo(id)
		if err != nil {
			continue
		}
		if machInfo.CPU != info.RequiredCPU || machInfo.SState == domain.S0 {
			continue
		}
		if machInfo.MemorySize < info.RequiredMemory+e.cfg.VMMemoryOverhead {
			continue
		}

		if err := e.cluster.SetMachineState(id, domain.S0); err != nil {
			e.logger.Debug("Wake request failed", zap.Uint32("machine_id", uint32(id)), zap.Error(err))
			continue
		}
		e.metrics.WakeRequests.Inc()

		vm, err := e.cluster.CreateVM(info.RequiredVMType, info.RequiredCPU)
		if err != nil {
			e.logger.Debug("Deferred VM create failed", zap.Error(err))
			return
		}
		e.model.RegisterVM(vm)
		e.model.AddUnattached(info.RequiredCPU, vm)
		e.logger.Info("Waking machine for task",
			zap.Uint32("machine_id", uint32(id)),
			zap.Uint32("vm_id", uint32(vm)),
			zap.String("cpu", info.RequiredCPU.String()),
		)
		return
	}
}

// addTask re-verifies the target host and starts the task. The scan that
// picked the VM may be stale: effects are eager even though events are
// serialized, so sleep state and memory are checked again at the moment
// of the add.
func (e *Engine) addTask(now domain.Time, vm domain.VMID, info domain.TaskInfo, prio domain.Priority) {
	vmInfo, err := e.cluster.VMInfo(vm)
	if err != nil || !vmInfo.Attached() {
		e.logger.Debug("Placement target vanished", zap.Uint32("vm_id", uint32(vm)), zap.Error(err))
		e.park(info)
		return
	}
	machInfo, err := e.cluster.MachineInfo(vmInfo.MachineID)
	if err != nil {
		e.park(info)
		return
	}
	if machInfo.SState != domain.S0 || !machInfo.MemoryFits(info.RequiredMemory) {
		if e.pressure != nil {
			e.pressure.MemoryPressure(now, vmInfo.MachineID)
		}
		e.park(info)
		return
	}

	if err := e.cluster.AddTask(vm, info.ID, prio); err != nil {
		e.logger.Debug("Add task failed",
			zap.Uint64("task_id", uint64(info.ID)),
			zap.Uint32("vm_id", uint32(vm)),
			zap.Error(err),
		)
		e.park(info)
		return
	}

	e.metrics.PlacementsTotal.WithLabelValues(info.SLA.String()).Inc()
	e.logger.Debug("Task placed",
		zap.Uint64("task_id", uint64(info.ID)),
		zap.Uint32("vm_id", uint32(vm)),
		zap.Uint32("machine_id", uint32(vmInfo.MachineID)),
		zap.String("priority", prio.String()),
	)

	if highSLA(info.SLA) {
		e.raiseToP0(vmInfo.MachineID, machInfo.NumCores)
	}
}

// raiseToP0 pushes every core of the host to full performance.
func (e *Engine) raiseToP0(machine domain.MachineID, cores int) {
	for core := 0; core < cores; core++ {
		if err := e.cluster.SetCorePerformance(machine, core, domain.P0); err != nil {
			e.logger.Debug("P-state raise failed",
				zap.Uint32("machine_id", uint32(machine)),
				zap.Int("core", core),
				zap.Error(err),
			)
			return
		}
	}
	e.metrics.PStateChanges.Inc()
}

// park puts a task in the pending queue for the next retry pass.
func (e *Engine) park(info domain.TaskInfo) {
	e.pending.Push(info.ID, info.TargetCompletion)
	e.metrics.PlacementsDeferred.Inc()
	e.metrics.QueuedTasks.Set(float64(e.pending.Len()))
	e.logger.Debug("Task deferred",
		zap.Uint64("task_id", uint64(info.ID)),
		zap.Int("queued", e.pending.Len()),
	)
}

// RetryPending replays queued tasks shortest-deadline-first. Tasks that
// still find no capacity go back on the queue; completed or vanished
// tasks are dropped.
func (e *Engine) RetryPending(now domain.Time) {
	n := e.pending.Len()
	if n == 0 {
		return
	}
	// Drain the queue before replaying so a task that is parked again
	// waits for the next pass instead of being popped a second time.
	batch := make([]domain.TaskID, 0, n)
	for i := 0; i < n; i++ {
		task, ok := e.pending.Pop()
		if !ok {
			break
		}
		batch = append(batch, task)
	}
	for _, task := range batch {
		info, err := e.cluster.TaskInfo(task)
		if err != nil {
			e.metrics.PlacementsDropped.Inc()
			continue
		}
		e.place(now, info)
	}
	e.metrics.QueuedTasks.Set(float64(e.pending.Len()))
}

// Forget removes a task from the pending queue, if present.
func (e *Engine) Forget(task domain.TaskID) {
	e.pending.Remove(task)
	e.metrics.QueuedTasks.Set(float64(e.pending.Len()))
}

// PendingCount returns the number of tasks waiting for capacity.
func (e *Engine) PendingCount() int {
	return e.pending.Len()
}
