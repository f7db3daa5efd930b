// Package controller is the event dispatcher of the placement engine. It
// routes the simulator's callbacks to the cluster model, the placement
// engine, the power governor and the migration planner, and owns the
// init-time prefill, the completion events and the final report.
//
// Every entry point is total: actuator failures are logged and absorbed,
// never propagated back into the simulator.
package controller

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ayjanu/EEC-Project/internal/cluster"
	"github.com/ayjanu/EEC-Project/internal/config"
	"github.com/ayjanu/EEC-Project/internal/domain"
	"github.com/ayjanu/EEC-Project/internal/metrics"
	"github.com/ayjanu/EEC-Project/internal/migration"
	"github.com/ayjanu/EEC-Project/internal/model"
	"github.com/ayjanu/EEC-Project/internal/placement"
	"github.com/ayjanu/EEC-Project/internal/power"
)

// Controller dispatches simulator events to the placement subsystems.
type Controller struct {
	cluster  cluster.Cluster
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	model     *model.Model
	placement *placement.Engine
	governor  *power.Governor
	planner   *migration.Planner

	// reportOut receives the final run report.
	reportOut io.Writer
}

// New wires a controller against a cluster. Each controller owns its own
// metrics registry so tests can run several side by side.
func New(c cluster.Cluster, cfg *config.Config, logger *zap.Logger) *Controller {
	registry := prometheus.NewRegistry()
	mtr := metrics.New(registry)

	mdl := model.New(c, logger)
	eng := placement.New(c, mdl, cfg.Scheduler, mtr, logger)
	gov := power.New(c, mdl, cfg.Power, cfg.Scheduler, mtr, logger)
	pln := migration.New(c, mdl, cfg.Migration, cfg.Scheduler, mtr, logger)

	ctrl := &Controller{
		cluster:   c,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "controller")),
		registry:  registry,
		metrics:   mtr,
		model:     mdl,
		placement: eng,
		governor:  gov,
		planner:   pln,
		reportOut: os.Stdout,
	}
	eng.SetPressureHandler(ctrl)
	return ctrl
}

// SetReportWriter redirects the final run report.
func (ctl *Controller) SetReportWriter(w io.Writer) {
	ctl.reportOut = w
}

// Registry exposes the controller's metrics registry.
func (ctl *Controller) Registry() *prometheus.Registry {
	return ctl.registry
}

// Model exposes the cluster model for inspection.
func (ctl *Controller) Model() *model.Model {
	return ctl.model
}

// Planner exposes the migration planner for inspection.
func (ctl *Controller) Planner() *migration.Planner {
	return ctl.planner
}

// PendingTasks returns the number of tasks waiting for capacity.
func (ctl *Controller) PendingTasks() int {
	return ctl.placement.PendingCount()
}

// Init builds the cluster model from the census and prefills each active
// machine with a small assortment of VMs so early arrivals find a home
// without paying VM creation latency.
func (ctl *Controller) Init() {
	ctl.model.Rebuild()
	ctl.prefill()
	ctl.metrics.ActiveMachines.Set(float64(ctl.model.ActiveCount()))
	ctl.logger.Info("Controller initialized",
		zap.Int("machines", len(ctl.model.Machines())),
		zap.Int("vms", len(ctl.model.VMs())),
	)
}

// prefillAssortment is the VM mix created on a machine at init, chosen by
// the host's CPU architecture.
func prefillAssortment(cpu domain.CPUType) []domain.VMType {
	switch cpu {
	case domain.X86, domain.ARM:
		return []domain.VMType{domain.Win, domain.Win, domain.Linux, domain.LinuxRT}
	case domain.POWER:
		return []domain.VMType{domain.AIX, domain.AIX, domain.Linux, domain.LinuxRT}
	default:
		return []domain.VMType{domain.Linux, domain.Linux, domain.LinuxRT, domain.LinuxRT}
	}
}

func (ctl *Controller) prefill() {
	perMachine := ctl.cfg.Scheduler.PrefillPerMachine
	if perMachine <= 0 {
		return
	}
	overhead := ctl.cfg.Scheduler.VMMemoryOverhead

	created := 0
	for _, id := range ctl.model.SortedByEfficiency() {
		if !ctl.model.IsActive(id) {
			continue
		}
		info, err := ctl.cluster.MachineInfo(id)
		if err != nil || info.SState != domain.S0 {
			continue
		}
		if !info.MemoryFits(uint64(perMachine) * overhead) {
			continue
		}

		assortment := prefillAssortment(info.CPU)
		for i := 0; i < perMachine; i++ {
			vmType := assortment[i%len(assortment)]
			vm, err := ctl.cluster.CreateVM(vmType, info.CPU)
			if err != nil {
				ctl.logger.Debug("Prefill create failed", zap.Uint32("machine_id", uint32(id)), zap.Error(err))
				continue
			}
			if err := ctl.cluster.AttachVM(vm, id); err != nil {
				ctl.logger.Debug("Prefill attach failed",
					zap.Uint32("vm_id", uint32(vm)),
					zap.Uint32("machine_id", uint32(id)),
					zap.Error(err),
				)
				continue
			}
			ctl.model.RegisterVM(vm)
			created++
		}
	}
	ctl.logger.Info("Prefill complete", zap.Int("vms_created", created))
}

// HandleNewTask places an arriving task.
func (ctl *Controller) HandleNewTask(now domain.Time, task domain.TaskID) {
	ctl.placement.PlaceNewTask(now, task)
}

// HandleTaskCompletion refreshes derived state after a task finishes.
func (ctl *Controller) HandleTaskCompletion(now domain.Time, task domain.TaskID) {
	ctl.placement.Forget(task)
	ctl.model.RefreshAllUtilization()
	ctl.logger.Debug("Task complete", zap.Uint64("task_id", uint64(task)))
}

// SchedulerCheck is the periodic tick: governor pass, pending-queue
// retry, energy gauge refresh.
func (ctl *Controller) SchedulerCheck(now domain.Time) {
	ctl.governor.PeriodicCheck(now)
	ctl.placement.RetryPending(now)
	ctl.metrics.ClusterEnergy.Set(ctl.cluster.ClusterEnergy())
}

// MemoryWarning reacts to an over-committed host.
func (ctl *Controller) MemoryWarning(now domain.Time, machine domain.MachineID) {
	ctl.logger.Warn("Memory pressure on machine", zap.Uint32("machine_id", uint32(machine)))
	ctl.planner.HandleMemoryWarning(now, machine)
}

// MemoryPressure implements placement.PressureHandler: a placement that
// found its target over-committed at add time surfaces the host here.
func (ctl *Controller) MemoryPressure(now domain.Time, machine domain.MachineID) {
	ctl.MemoryWarning(now, machine)
}

// SLAWarning reacts to a predicted SLA miss.
func (ctl *Controller) SLAWarning(now domain.Time, task domain.TaskID) {
	ctl.planner.HandleSLAWarning(now, task)
}

// StateChangeComplete finalizes an asynchronous sleep-state transition.
// A machine arriving in S0 joins the active set at P1 and receives a VM
// if it has none; a machine leaving S0 drops out of the active set. A
// completion reporting a state the model already reflects is a no-op
// beyond the governor pass.
func (ctl *Controller) StateChangeComplete(now domain.Time, machine domain.MachineID) {
	info, err := ctl.cluster.MachineInfo(machine)
	if err != nil {
		ctl.logger.Warn("State change for unreadable machine",
			zap.Uint32("machine_id", uint32(machine)), zap.Error(err))
		return
	}

	if info.SState == domain.S0 {
		if !ctl.model.IsActive(machine) {
			ctl.model.ActivateMachine(machine)
			if info.PState != domain.P1 {
				if err := ctl.cluster.SetCorePerformance(machine, 0, domain.P1); err != nil {
					ctl.logger.Debug("Initial P-state set failed",
						zap.Uint32("machine_id", uint32(machine)), zap.Error(err))
				}
			}
			ctl.ensureVM(machine, info)
			ctl.logger.Info("Machine awake", zap.Uint32("machine_id", uint32(machine)))
		}
	} else {
		ctl.model.DeactivateMachine(machine)
		ctl.logger.Info("Machine asleep",
			zap.Uint32("machine_id", uint32(machine)),
			zap.String("state", info.SState.String()),
		)
	}

	ctl.SchedulerCheck(now)
}

// ensureVM gives a freshly woken machine a VM: first any deferred-attach
// VM created when the wake-up was requested, otherwise a default LINUX VM
// matching the host CPU. Machines that already host a VM are left alone.
func (ctl *Controller) ensureVM(machine domain.MachineID, info domain.MachineInfo) {
	if len(ctl.model.VMsOn(machine)) > 0 {
		return
	}

	vm, ok := ctl.model.TakeUnattached(info.CPU)
	if !ok {
		created, err := ctl.cluster.CreateVM(domain.Linux, info.CPU)
		if err != nil {
			ctl.logger.Debug("Default VM create failed",
				zap.Uint32("machine_id", uint32(machine)), zap.Error(err))
			return
		}
		ctl.model.RegisterVM(created)
		vm = created
	}

	if err := ctl.cluster.AttachVM(vm, machine); err != nil {
		ctl.logger.Debug("Attach to woken machine failed",
			zap.Uint32("vm_id", uint32(vm)),
			zap.Uint32("machine_id", uint32(machine)),
			zap.Error(err),
		)
		ctl.model.AddUnattached(info.CPU, vm)
	}
}

// MigrationDone finalizes an asynchronous migration.
func (ctl *Controller) MigrationDone(now domain.Time, vm domain.VMID) {
	ctl.planner.HandleMigrationComplete(now, vm)
}

// SimulationComplete emits the final report and shuts the fleet down.
func (ctl *Controller) SimulationComplete(now domain.Time) {
	ctl.metrics.ClusterEnergy.Set(ctl.cluster.ClusterEnergy())
	ctl.report(now)
	ctl.shutdown()
}

// report writes the per-tier SLA violation summary, the total energy and
// the elapsed simulated time.
func (ctl *Controller) report(now domain.Time) {
	fmt.Fprintln(ctl.reportOut, "SLA violation report:")
	for _, sla := range []domain.SLA{domain.SLA0, domain.SLA1, domain.SLA2, domain.SLA3} {
		fmt.Fprintf(ctl.reportOut, "  %s: %g%%\n", sla, ctl.cluster.SLAReport(sla))
	}
	fmt.Fprintf(ctl.reportOut, "Total Energy: %g KW-Hour\n", ctl.cluster.ClusterEnergy())
	fmt.Fprintf(ctl.reportOut, "Finished in %g seconds\n", now.Seconds())
}

// shutdown stops every attached VM. Failures are aggregated and logged;
// the run is over either way.
func (ctl *Controller) shutdown() {
	var errs error
	for _, vm := range ctl.model.VMs() {
		info, err := ctl.cluster.VMInfo(vm)
		if err != nil || !info.Attached() {
			continue
		}
		if err := ctl.cluster.ShutdownVM(vm); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("vm %d: %w", vm, err))
		}
	}
	if errs != nil {
		ctl.logger.Warn("Some VMs failed to shut down", zap.Error(errs))
	}
	ctl.logger.Info("Shutdown complete", zap.Int("vms", len(ctl.model.VMs())))
}
