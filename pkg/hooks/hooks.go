// Package hooks is the simulator-facing surface of the placement
// controller: one process-wide controller instance behind thin adapter
// functions matching the simulator's callback table. Tests construct
// controllers directly against fake clusters instead of going through
// this package.
package hooks

import (
	"go.uber.org/zap"

	"github.com/ayjanu/EEC-Project/internal/cluster"
	"github.com/ayjanu/EEC-Project/internal/config"
	"github.com/ayjanu/EEC-Project/internal/controller"
	"github.com/ayjanu/EEC-Project/internal/domain"
)

var instance *controller.Controller

// Bind installs the process-wide controller the hook functions dispatch
// to. It must be called before InitScheduler, typically from the
// embedding program's startup path.
func Bind(c cluster.Cluster, cfg *config.Config, logger *zap.Logger) {
	instance = controller.New(c, cfg, logger)
}

// BindDefault installs a controller with built-in configuration and a
// production logger.
func BindDefault(c cluster.Cluster) {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	Bind(c, config.Default(), logger)
}

// Controller returns the bound controller, for inspection.
func Controller() *controller.Controller {
	return instance
}

// InitScheduler builds the cluster model and prefills VMs.
func InitScheduler() {
	instance.Init()
}

// HandleNewTask places an arriving task.
func HandleNewTask(now domain.Time, task domain.TaskID) {
	instance.HandleNewTask(now, task)
}

// HandleTaskCompletion updates derived state after a task finishes.
func HandleTaskCompletion(now domain.Time, task domain.TaskID) {
	instance.HandleTaskCompletion(now, task)
}

// SchedulerCheck runs the periodic governor pass.
func SchedulerCheck(now domain.Time) {
	instance.SchedulerCheck(now)
}

// MemoryWarning reacts to an over-committed host.
func MemoryWarning(now domain.Time, machine domain.MachineID) {
	instance.MemoryWarning(now, machine)
}

// SLAWarning reacts to a predicted SLA miss.
func SLAWarning(now domain.Time, task domain.TaskID) {
	instance.SLAWarning(now, task)
}

// StateChangeComplete finalizes an asynchronous sleep transition.
func StateChangeComplete(now domain.Time, machine domain.MachineID) {
	instance.StateChangeComplete(now, machine)
}

// MigrationDone finalizes an asynchronous migration.
func MigrationDone(now domain.Time, vm domain.VMID) {
	instance.MigrationDone(now, vm)
}

// SimulationComplete emits the final report and shuts down.
func SimulationComplete(now domain.Time) {
	instance.SimulationComplete(now)
}
