package power

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayjanu/EEC-Project/internal/config"
	"github.com/ayjanu/EEC-Project/internal/domain"
	"github.com/ayjanu/EEC-Project/internal/metrics"
	"github.com/ayjanu/EEC-Project/internal/model"
	"github.com/ayjanu/EEC-Project/internal/simfake"
)

func newTestGovernor(t *testing.T, sim *simfake.Cluster, mutate func(*config.Config)) (*Governor, *model.Model) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	logger, _ := zap.NewDevelopment()
	mdl := model.New(sim, logger)
	mdl.Rebuild()
	mtr := metrics.New(prometheus.NewRegistry())
	return New(sim, mdl, cfg.Power, cfg.Scheduler, mtr, logger), mdl
}

// hostTasks attaches a VM to the machine and runs n tasks of the given
// SLA on it.
func hostTasks(t *testing.T, sim *simfake.Cluster, mdl *model.Model, m domain.MachineID, n int, sla domain.SLA) {
	t.Helper()
	vm, err := sim.CreateVM(domain.Linux, domain.X86)
	require.NoError(t, err)
	require.NoError(t, sim.AttachVM(vm, m))
	mdl.RegisterVM(vm)
	for i := 0; i < n; i++ {
		task := sim.SubmitTask(simfake.TaskSpec{
			CPU: domain.X86, VMType: domain.Linux, MemoryMB: 64,
			SLA: sla, Deadline: 900_000_000,
		})
		require.NoError(t, sim.AddTask(vm, task, domain.PriorityLow))
	}
}

func TestPeriodicCheck_PStateTable(t *testing.T) {
	cases := []struct {
		name  string
		tasks int
		cores int
		want  domain.PState
	}{
		{name: "idle machine rests at P3", tasks: 0, cores: 4, want: domain.P3},
		{name: "light load idles at P2", tasks: 1, cores: 4, want: domain.P2},
		{name: "medium load runs P1", tasks: 2, cores: 4, want: domain.P1},
		{name: "heavy load runs P0", tasks: 4, cores: 4, want: domain.P0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sim := simfake.New()
			m := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: tc.cores, MemoryMB: 16384, SState: domain.S0})
			gov, mdl := newTestGovernor(t, sim, nil)
			if tc.tasks > 0 {
				hostTasks(t, sim, mdl, m, tc.tasks, domain.SLA3)
			}

			gov.PeriodicCheck(1_000_000)

			info, err := sim.MachineInfo(m)
			require.NoError(t, err)
			assert.Equal(t, tc.want, info.PState)
		})
	}
}

func TestPeriodicCheck_StrictSLAForcesP0(t *testing.T) {
	sim := simfake.New()
	m := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 16, MemoryMB: 16384, SState: domain.S0})
	gov, mdl := newTestGovernor(t, sim, nil)
	// One SLA1 task on a big machine: utilization alone says P2.
	hostTasks(t, sim, mdl, m, 1, domain.SLA1)

	gov.PeriodicCheck(1_000_000)

	info, err := sim.MachineInfo(m)
	require.NoError(t, err)
	assert.Equal(t, domain.P0, info.PState)
}

func TestSleepPass_RetiresAtMostTwoIdleMachines(t *testing.T) {
	sim := simfake.New()
	var loaded, idle []domain.MachineID
	for i := 0; i < 3; i++ {
		loaded = append(loaded, sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0}))
	}
	for i := 0; i < 3; i++ {
		idle = append(idle, sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0}))
	}
	gov, mdl := newTestGovernor(t, sim, nil)
	for _, m := range loaded {
		hostTasks(t, sim, mdl, m, 3, domain.SLA3)
	}

	gov.PeriodicCheck(10_000_000)

	sleeps := 0
	for _, m := range idle {
		if s, ok := sim.PendingSState(m); ok {
			assert.Equal(t, domain.S0i1, s)
			sleeps++
		}
	}
	assert.LessOrEqual(t, sleeps, 2, "more than two machines retired in one pass")
	assert.Equal(t, 2, sleeps)
	for _, m := range loaded {
		_, ok := sim.PendingSState(m)
		assert.False(t, ok, "loaded machine %d was retired", m)
	}
}

func TestSleepPass_KeepsMinimumActiveFleet(t *testing.T) {
	sim := simfake.New()
	a := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	b := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	gov, _ := newTestGovernor(t, sim, nil)

	gov.PeriodicCheck(10_000_000)

	for _, m := range []domain.MachineID{a, b} {
		_, ok := sim.PendingSState(m)
		assert.False(t, ok, "governor slept below the fleet floor")
	}
}

func TestSleepPass_HonorsCadence(t *testing.T) {
	sim := simfake.New()
	for i := 0; i < 5; i++ {
		sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	}
	gov, _ := newTestGovernor(t, sim, nil)

	gov.PeriodicCheck(1_000_000)
	firstPass := countSleepRequests(sim)
	require.Equal(t, 2, firstPass)

	// Inside the cadence window nothing more is retired, even though
	// idle candidates remain.
	gov.PeriodicCheck(2_000_000)
	assert.Equal(t, firstPass, countSleepRequests(sim))

	// Once the window has elapsed the pass runs again.
	gov.PeriodicCheck(12_000_000)
	assert.Equal(t, firstPass+1, countSleepRequests(sim))
}

func countSleepRequests(sim *simfake.Cluster) int {
	n := 0
	for _, call := range sim.Calls() {
		if strings.HasPrefix(call, "SetMachineState") && strings.Contains(call, "S0i1") {
			n++
		}
	}
	return n
}
