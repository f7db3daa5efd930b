// Package migration implements the migration planner: relieving
// overloaded hosts by moving VMs to efficient machines with headroom, and
// tracking every migration from the actuator call to its completion
// callback.
package migration

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayjanu/EEC-Project/internal/cluster"
	"github.com/ayjanu/EEC-Project/internal/config"
	"github.com/ayjanu/EEC-Project/internal/domain"
	"github.com/ayjanu/EEC-Project/internal/metrics"
	"github.com/ayjanu/EEC-Project/internal/model"
)

// Decision is the record of one planned migration.
type Decision struct {
	ID     string
	VM     domain.VMID
	Source domain.MachineID
	Target domain.MachineID
	Reason string
	At     domain.Time
}

// Planner selects migration targets and tracks in-flight migrations.
type Planner struct {
	cluster cluster.Cluster
	model   *model.Model
	cfg     config.MigrationConfig
	sched   config.SchedulerConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	lastMigrationAt map[domain.VMID]domain.Time
	decisions       []Decision
}

// New creates a migration planner.
func New(c cluster.Cluster, m *model.Model, cfg config.MigrationConfig, sched config.SchedulerConfig, mtr *metrics.Metrics, logger *zap.Logger) *Planner {
	return &Planner{
		cluster:         c,
		model:           m,
		cfg:             cfg,
		sched:           sched,
		metrics:         mtr,
		logger:          logger.With(zap.String("component", "migration")),
		lastMigrationAt: make(map[domain.VMID]domain.Time),
	}
}

// HandleSLAWarning reacts to a predicted SLA miss. Strict-tier tasks are
// forced to HIGH priority and their host to full performance; if the host
// is overloaded the hosting VM is migrated away. An SLA2 task running at
// LOW priority is raised to MID.
func (p *Planner) HandleSLAWarning(now domain.Time, task domain.TaskID) {
	info, err := p.cluster.TaskInfo(task)
	if err != nil {
		p.logger.Debug("SLA warning for unknown task", zap.Uint64("task_id", uint64(task)), zap.Error(err))
		return
	}

	switch info.SLA {
	case domain.SLA0, domain.SLA1:
		if err := p.cluster.SetTaskPriority(task, domain.PriorityHigh); err != nil {
			p.logger.Debug("Priority raise failed", zap.Uint64("task_id", uint64(task)), zap.Error(err))
		}

		vm, host, ok := p.findHost(task)
		if !ok {
			return
		}
		p.raiseToP0(host)

		p.model.RefreshUtilization(host)
		if p.model.Utilization(host) > p.sched.OverloadThreshold {
			p.Migrate(now, vm, "host overloaded after SLA warning")
		}

	case domain.SLA2:
		if info.Priority == domain.PriorityLow {
			if err := p.cluster.SetTaskPriority(task, domain.PriorityMid); err != nil {
				p.logger.Debug("Priority raise failed", zap.Uint64("task_id", uint64(task)), zap.Error(err))
			}
		}
	}
}

// HandleMemoryWarning reacts to an over-committed host: the machine is
// pushed to full performance and its busiest VM is offered to the
// planner. VMs already migrating are never candidates.
func (p *Planner) HandleMemoryWarning(now domain.Time, machine domain.MachineID) {
	p.raiseToP0(machine)

	var (
		largest     domain.VMID
		largestLoad = -1
	)
	for _, vm := range p.model.VMs() {
		if p.model.IsMigrating(vm) {
			continue
		}
		info, err := p.cluster.VMInfo(vm)
		if err != nil || info.MachineID != machine {
			continue
		}
		if info.Load() > largestLoad {
			largest = vm
			largestLoad = info.Load()
		}
	}
	if largestLoad < 0 {
		return
	}

	p.Migrate(now, largest, "memory pressure on host")
}

// Migrate plans and issues a migration for the VM. VMs already in flight
// or inside the cooldown window are left alone.
func (p *Planner) Migrate(now domain.Time, vm domain.VMID, reason string) {
	if p.model.IsMigrating(vm) {
		return
	}
	if last, ok := p.lastMigrationAt[vm]; ok && uint64(now-last) < p.cfg.Cooldown {
		p.logger.Debug("Migration suppressed by cooldown", zap.Uint32("vm_id", uint32(vm)))
		return
	}

	info, err := p.cluster.VMInfo(vm)
	if err != nil || !info.Attached() {
		return
	}

	target, ok := p.FindTarget(vm, info)
	if !ok {
		p.logger.Debug("No migration target", zap.Uint32("vm_id", uint32(vm)))
		return
	}

	if !p.model.BeginMigration(vm, target) {
		return
	}
	if err := p.cluster.MigrateVM(vm, target); err != nil {
		p.model.EndMigration(vm)
		p.logger.Warn("Migration request failed",
			zap.Uint32("vm_id", uint32(vm)),
			zap.Uint32("target", uint32(target)),
			zap.Error(err),
		)
		return
	}

	p.lastMigrationAt[vm] = now
	p.record(Decision{
		ID:     uuid.NewString(),
		VM:     vm,
		Source: info.MachineID,
		Target: target,
		Reason: reason,
		At:     now,
	})
	p.metrics.MigrationsPlanned.Inc()
	p.logger.Info("Migration planned",
		zap.Uint32("vm_id", uint32(vm)),
		zap.Uint32("source", uint32(info.MachineID)),
		zap.Uint32("target", uint32(target)),
		zap.String("reason", reason),
	)
}

// FindTarget walks the efficiency ordering for a machine that can absorb
// the whole VM: matching CPU, awake, room for the VM overhead plus every
// task's memory, and utilization under the overload threshold. Parked
// machines encountered on the way are opportunistically woken for future
// placements but skipped for this migration.
func (p *Planner) FindTarget(vm domain.VMID, info domain.VMInfo) (domain.MachineID, bool) {
	var totalNeeded uint64 = p.sched.VMMemoryOverhead
	for _, task := range info.ActiveTasks {
		taskInfo, err := p.cluster.TaskInfo(task)
		if err != nil {
			continue
		}
		totalNeeded += taskInfo.RequiredMemory
	}

	for _, id := range p.model.SortedByEfficiency() {
		if id == info.MachineID {
			continue
		}
		machInfo, err := p.cluster.MachineInfo(id)
		if err != nil {
			continue
		}
		if machInfo.CPU != info.CPU {
			continue
		}
		if machInfo.SState != domain.S0 {
			if err := p.cluster.SetMachineState(id, domain.S0); err == nil {
				p.metrics.WakeRequests.Inc()
				p.model.ActivateMachine(id)
			}
			continue
		}
		if !machInfo.MemoryFits(totalNeeded) {
			continue
		}
		if p.model.Utilization(id) >= p.sched.OverloadThreshold {
			continue
		}
		return id, true
	}
	return 0, false
}

// HandleMigrationComplete clears the pending record and, when the
// destination now hosts HIGH-priority work, ensures it runs at full
// performance.
func (p *Planner) HandleMigrationComplete(now domain.Time, vm domain.VMID) {
	if _, ok := p.model.EndMigration(vm); !ok {
		p.logger.Debug("Completion for unknown migration", zap.Uint32("vm_id", uint32(vm)))
	}
	p.metrics.MigrationsCompleted.Inc()

	info, err := p.cluster.VMInfo(vm)
	if err != nil || !info.Attached() {
		return
	}
	p.model.RefreshUtilization(info.MachineID)

	for _, task := range info.ActiveTasks {
		taskInfo, err := p.cluster.TaskInfo(task)
		if err != nil {
			continue
		}
		if taskInfo.Priority == domain.PriorityHigh {
			p.raiseToP0(info.MachineID)
			break
		}
	}

	p.logger.Info("Migration complete",
		zap.Uint32("vm_id", uint32(vm)),
		zap.Uint32("machine_id", uint32(info.MachineID)),
	)
}

// raiseToP0 pushes every core of the machine to full performance.
func (p *Planner) raiseToP0(machine domain.MachineID) {
	info, err := p.cluster.MachineInfo(machine)
	if err != nil {
		return
	}
	for core := 0; core < info.NumCores; core++ {
		if err := p.cluster.SetCorePerformance(machine, core, domain.P0); err != nil {
			p.logger.Debug("P-state raise failed",
				zap.Uint32("machine_id", uint32(machine)),
				zap.Int("core", core),
				zap.Error(err),
			)
			return
		}
	}
	p.metrics.PStateChanges.Inc()
}

// record appends a decision to the bounded history.
func (p *Planner) record(d Decision) {
	p.decisions = append(p.decisions, d)
	if p.cfg.HistoryLimit > 0 && len(p.decisions) > p.cfg.HistoryLimit {
		p.decisions = p.decisions[len(p.decisions)-p.cfg.HistoryLimit:]
	}
}

// RecentDecisions returns the recorded migration decisions, oldest first.
func (p *Planner) RecentDecisions() []Decision {
	return p.decisions
}

// findHost locates the VM running a task and that VM's machine.
func (p *Planner) findHost(task domain.TaskID) (domain.VMID, domain.MachineID, bool) {
	for _, vm := range p.model.VMs() {
		info, err := p.cluster.VMInfo(vm)
		if err != nil || !info.Attached() {
			continue
		}
		for _, t := range info.ActiveTasks {
			if t == task {
				return vm, info.MachineID, true
			}
		}
	}
	return 0, 0, false
}
