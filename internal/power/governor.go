// Package power implements the power governor: per-machine P-state
// selection from utilization and SLA pressure, and retirement of idle
// machines into standby.
package power

import (
	"go.uber.org/zap"

	"github.com/ayjanu/EEC-Project/internal/cluster"
	"github.com/ayjanu/EEC-Project/internal/config"
	"github.com/ayjanu/EEC-Project/internal/domain"
	"github.com/ayjanu/EEC-Project/internal/metrics"
	"github.com/ayjanu/EEC-Project/internal/model"
)

// Utilization bands of the P-state table. A machine above the high band
// runs flat out; one above the mid band gets P1; anything still running
// tasks idles at P2.
const (
	highUtilBand = 0.75
	midUtilBand  = 0.30
)

// Governor recomputes machine performance levels on every periodic tick.
type Governor struct {
	cluster cluster.Cluster
	model   *model.Model
	cfg     config.PowerConfig
	sched   config.SchedulerConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	lastSleepPassAt domain.Time
	sleepPassRun    bool
}

// New creates a power governor.
func New(c cluster.Cluster, m *model.Model, cfg config.PowerConfig, sched config.SchedulerConfig, mtr *metrics.Metrics, logger *zap.Logger) *Governor {
	return &Governor{
		cluster: c,
		model:   m,
		cfg:     cfg,
		sched:   sched,
		metrics: mtr,
		logger:  logger.With(zap.String("component", "power")),
	}
}

// PeriodicCheck refreshes utilization, retunes every active machine's
// P-state and, at a sparse cadence, retires idle machines to standby.
func (g *Governor) PeriodicCheck(now domain.Time) {
	g.model.RefreshAllUtilization()
	g.metrics.ActiveMachines.Set(float64(g.model.ActiveCount()))

	for _, id := range g.model.Machines() {
		if !g.model.IsActive(id) {
			continue
		}
		g.retune(id)
	}

	g.sleepPass(now)
}

// retune computes the target P-state for one machine and applies it when
// it differs from the observed level. A single call on core 0 applies
// machine-wide under the simulator's semantics.
func (g *Governor) retune(id domain.MachineID) {
	info, err := g.cluster.MachineInfo(id)
	if err != nil || info.SState != domain.S0 {
		return
	}

	target := g.targetPState(id, info)
	if info.PState == target {
		return
	}

	if err := g.cluster.SetCorePerformance(id, 0, target); err != nil {
		g.logger.Debug("P-state change failed",
			zap.Uint32("machine_id", uint32(id)),
			zap.String("target", target.String()),
			zap.Error(err),
		)
		return
	}
	g.metrics.PStateChanges.Inc()
	g.logger.Debug("P-state changed",
		zap.Uint32("machine_id", uint32(id)),
		zap.String("from", info.PState.String()),
		zap.String("to", target.String()),
	)
}

// targetPState is the governor's switch table: machines hosting strict-SLA
// work run P0 unconditionally, the rest step down with utilization.
func (g *Governor) targetPState(id domain.MachineID, info domain.MachineInfo) domain.PState {
	if g.hostsHighSLATask(id) {
		return domain.P0
	}

	util := g.model.Utilization(id)
	switch {
	case util > highUtilBand:
		return domain.P0
	case util > midUtilBand:
		return domain.P1
	case info.ActiveTasks > 0:
		return domain.P2
	default:
		return domain.P3
	}
}

// hostsHighSLATask reports whether any SLA0 or SLA1 task runs on the
// machine.
func (g *Governor) hostsHighSLATask(id domain.MachineID) bool {
	for _, vm := range g.model.VMs() {
		vmInfo, err := g.cluster.VMInfo(vm)
		if err != nil || vmInfo.MachineID != id {
			continue
		}
		for _, task := range vmInfo.ActiveTasks {
			taskInfo, err := g.cluster.TaskInfo(task)
			if err != nil {
				continue
			}
			if taskInfo.SLA == domain.SLA0 || taskInfo.SLA == domain.SLA1 {
				return true
			}
		}
	}
	return false
}

// sleepPass retires up to MaxSleepsPerPass idle machines to S0i1, at most
// once per SleepCadence of simulator time. The active fleet never drops
// below MinActiveMachines. The cadence uses a monotonic last-pass stamp
// rather than alignment of now, so non-uniform tick spacing cannot skip
// passes.
func (g *Governor) sleepPass(now domain.Time) {
	if g.sleepPassRun && uint64(now-g.lastSleepPassAt) < g.cfg.SleepCadence {
		return
	}
	g.lastSleepPassAt = now
	g.sleepPassRun = true

	remaining := g.model.ActiveCount()
	slept := 0

	// Walk the efficiency ordering backwards: the hungriest idle
	// machines go to standby first.
	ranked := g.model.SortedByEfficiency()
	for i := len(ranked) - 1; i >= 0; i-- {
		id := ranked[i]
		if slept >= g.cfg.MaxSleepsPerPass {
			break
		}
		if remaining <= g.cfg.MinActiveMachines {
			break
		}
		if !g.model.IsActive(id) {
			continue
		}
		if g.model.Utilization(id) >= g.sched.UnderloadThreshold {
			continue
		}
		info, err := g.cluster.MachineInfo(id)
		if err != nil || info.SState != domain.S0 || info.ActiveTasks > 0 {
			continue
		}

		if err := g.cluster.SetMachineState(id, domain.S0i1); err != nil {
			g.logger.Debug("Sleep request failed", zap.Uint32("machine_id", uint32(id)), zap.Error(err))
			continue
		}
		// Drop the machine from the active set right away so later
		// passes and placements skip it while the transition is in
		// flight.
		g.model.DeactivateMachine(id)
		g.metrics.SleepRequests.Inc()
		g.logger.Info("Retiring idle machine to standby", zap.Uint32("machine_id", uint32(id)))
		remaining--
		slept++
	}
}
