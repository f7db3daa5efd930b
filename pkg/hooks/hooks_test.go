// Package hooks end-to-end exercises the whole controller through the
// simulator-facing hook surface.
package hooks

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayjanu/EEC-Project/internal/config"
	"github.com/ayjanu/EEC-Project/internal/domain"
	"github.com/ayjanu/EEC-Project/internal/simfake"
)

func TestHooks_FullRun(t *testing.T) {
	sim := simfake.New()
	mA := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	parked := sim.AddMachine(simfake.MachineSpec{CPU: domain.ARM, Cores: 8, MemoryMB: 16384, SState: domain.S5})
	sim.Energy = 12.25

	logger, _ := zap.NewDevelopment()
	Bind(sim, config.Default(), logger)

	var report bytes.Buffer
	Controller().SetReportWriter(&report)

	InitScheduler()
	require.Len(t, Controller().Model().VMs(), 8, "prefill covers both active machines")

	// An SLA0 task lands immediately and pushes its host to P0.
	strict := sim.SubmitTask(simfake.TaskSpec{
		CPU: domain.X86, VMType: domain.Linux, MemoryMB: 512,
		SLA: domain.SLA0, Deadline: 50_000_000,
	})
	HandleNewTask(1_000_000, strict)
	host, placed := sim.TaskHost(strict)
	require.True(t, placed)
	hostVM, err := sim.VMInfo(host)
	require.NoError(t, err)
	machInfo, err := sim.MachineInfo(hostVM.MachineID)
	require.NoError(t, err)
	assert.Equal(t, domain.P0, machInfo.PState)

	// An ARM task finds no capacity: the parked ARM machine is woken
	// and the task waits in the queue.
	armTask := sim.SubmitTask(simfake.TaskSpec{
		CPU: domain.ARM, VMType: domain.Linux, MemoryMB: 512,
		SLA: domain.SLA2, Deadline: 90_000_000,
	})
	HandleNewTask(2_000_000, armTask)
	require.Equal(t, 1, Controller().PendingTasks())

	require.True(t, sim.CompleteStateChange(parked))
	StateChangeComplete(3_000_000, parked)
	_, placed = sim.TaskHost(armTask)
	assert.True(t, placed, "queued ARM task not placed after wake-up")

	// Completion and a tick keep the run moving.
	sim.CompleteTask(strict)
	HandleTaskCompletion(20_000_000, strict)
	SchedulerCheck(21_000_000)

	// Memory warning escalates the host to full performance.
	MemoryWarning(22_000_000, mA)
	machInfo, err = sim.MachineInfo(mA)
	require.NoError(t, err)
	assert.Equal(t, domain.P0, machInfo.PState)

	SimulationComplete(30_000_000)
	out := report.String()
	assert.Contains(t, out, "SLA violation report:")
	assert.Contains(t, out, "Total Energy: 12.25 KW-Hour")
	assert.Contains(t, out, "Finished in 30 seconds")
}
