package migration

import (
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

func newTestPlanner(t *testing.T, sim *simfake.Cluster) (*Planner, *model.Model) {
	t.Helper()
	cfg := config.Default()
	logger, _ := zap.NewDevelopment()
	mdl := model.New(sim, logger)
	mdl.Rebuild()
	mtr := metrics.New(prometheus.NewRegistry())
	return New(sim, mdl, cfg.Migration, cfg.Scheduler, mtr, logger), mdl
}

func attachVM(t *testing.T, sim *simfake.Cluster, mdl *model.Model, m domain.MachineID) domain.VMID {
	t.Helper()
	vm, err := sim.CreateVM(domain.Linux, domain.X86)
	require.NoError(t, err)
	require.NoError(t, sim.AttachVM(vm, m))
	mdl.RegisterVM(vm)
	return vm
}

func runTask(t *testing.T, sim *simfake.Cluster, vm domain.VMID, sla domain.SLA) domain.TaskID {
	t.Helper()
	task := sim.SubmitTask(simfake.TaskSpec{
		CPU: domain.X86, VMType: domain.Linux, MemoryMB: 64,
		SLA: sla, Deadline: 900_000_000,
	})
	require.NoError(t, sim.AddTask(vm, task, domain.PriorityLow))
	return task
}

func TestSLAWarning_OverloadedHostTriggersMigration(t *testing.T) {
	sim := simfake.New()
	// mA: 4 cores running 4 tasks; mB idle with the same CPU.
	mA := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	mB := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})

	pln, mdl := newTestPlanner(t, sim)
	vm1 := attachVM(t, sim, mdl, mA)
	strict := runTask(t, sim, vm1, domain.SLA0)
	for i := 0; i < 3; i++ {
		runTask(t, sim, vm1, domain.SLA3)
	}

	pln.HandleSLAWarning(5_000_000, strict)

	// Priority forced HIGH, host forced to P0.
	taskInfo, err := sim.TaskInfo(strict)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, taskInfo.Priority)
	machInfo, err := sim.MachineInfo(mA)
	require.NoError(t, err)
	assert.Equal(t, domain.P0, machInfo.PState)

	// Migration planned to the idle machine.
	target, ok := mdl.MigrationTarget(vm1)
	require.True(t, ok, "no migration recorded")
	assert.Equal(t, mB, target)
	assert.Equal(t, []domain.VMID{vm1}, sim.PendingMigrationVMs())

	decisions := pln.RecentDecisions()
	require.Len(t, decisions, 1)
	assert.Equal(t, vm1, decisions[0].VM)
	assert.Equal(t, mA, decisions[0].Source)
	assert.Equal(t, mB, decisions[0].Target)
	assert.NotEmpty(t, decisions[0].ID)
}

func TestSLAWarning_CalmHostOnlyRaisesPriority(t *testing.T) {
	sim := simfake.New()
	mA := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 16, MemoryMB: 16384, SState: domain.S0})
	sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 16, MemoryMB: 16384, SState: domain.S0})

	pln, mdl := newTestPlanner(t, sim)
	vm1 := attachVM(t, sim, mdl, mA)
	strict := runTask(t, sim, vm1, domain.SLA1)

	pln.HandleSLAWarning(5_000_000, strict)

	taskInfo, err := sim.TaskInfo(strict)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, taskInfo.Priority)
	assert.Empty(t, sim.PendingMigrationVMs(), "migration planned from a calm host")
}

func TestSLAWarning_SLA2RaisesLowToMid(t *testing.T) {
	sim := simfake.New()
	mA := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})

	pln, mdl := newTestPlanner(t, sim)
	vm1 := attachVM(t, sim, mdl, mA)
	task := runTask(t, sim, vm1, domain.SLA2)

	pln.HandleSLAWarning(5_000_000, task)

	taskInfo, err := sim.TaskInfo(task)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMid, taskInfo.Priority)
}

func TestFindTarget_SkipsMismatchedAndOverloaded(t *testing.T) {
	sim := simfake.New()
	src := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	arm := sim.AddMachine(simfake.MachineSpec{CPU: domain.ARM, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	busy := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	good := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})

	pln, mdl := newTestPlanner(t, sim)
	vm1 := attachVM(t, sim, mdl, src)
	runTask(t, sim, vm1, domain.SLA3)

	busyVM := attachVM(t, sim, mdl, busy)
	for i := 0; i < 4; i++ {
		runTask(t, sim, busyVM, domain.SLA3)
	}
	mdl.RefreshAllUtilization()

	info, err := sim.VMInfo(vm1)
	require.NoError(t, err)
	target, ok := pln.FindTarget(vm1, info)
	require.True(t, ok)
	assert.Equal(t, good, target)
	assert.NotEqual(t, arm, target)
}

func TestFindTarget_WakesParkedMachineButSkipsIt(t *testing.T) {
	sim := simfake.New()
	src := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	parked := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S5})

	pln, mdl := newTestPlanner(t, sim)
	vm1 := attachVM(t, sim, mdl, src)
	runTask(t, sim, vm1, domain.SLA3)

	info, err := sim.VMInfo(vm1)
	require.NoError(t, err)
	_, ok := pln.FindTarget(vm1, info)
	assert.False(t, ok, "parked machine accepted as migration target")

	pending, requested := sim.PendingSState(parked)
	require.True(t, requested, "parked machine was not woken")
	assert.Equal(t, domain.S0, pending)
}

func TestMemoryWarning_SkipsMigratingVMAsLargest(t *testing.T) {
	sim := simfake.New()
	mA := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 8, MemoryMB: 16384, SState: domain.S0})
	mB := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 8, MemoryMB: 16384, SState: domain.S0})

	pln, mdl := newTestPlanner(t, sim)
	vm1 := attachVM(t, sim, mdl, mA)
	runTask(t, sim, vm1, domain.SLA3)
	runTask(t, sim, vm1, domain.SLA3)
	vm2 := attachVM(t, sim, mdl, mA)
	runTask(t, sim, vm2, domain.SLA3)

	// vm1 is the busiest VM on mA but is already migrating.
	require.True(t, mdl.BeginMigration(vm1, mB))

	pln.HandleMemoryWarning(5_000_000, mA)

	target, ok := mdl.MigrationTarget(vm2)
	require.True(t, ok, "second-largest VM was not migrated")
	assert.Equal(t, mB, target)

	recorded, _ := mdl.MigrationTarget(vm1)
	assert.Equal(t, mB, recorded, "existing migration disturbed")
}

func TestMigrate_CooldownSuppressesRepeat(t *testing.T) {
	sim := simfake.New()
	src := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	dst := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})

	pln, mdl := newTestPlanner(t, sim)
	vm1 := attachVM(t, sim, mdl, src)
	runTask(t, sim, vm1, domain.SLA3)

	pln.Migrate(1_000_000, vm1, "test")
	_, ok := mdl.MigrationTarget(vm1)
	require.True(t, ok)

	// Land the migration, then immediately ask again: the cooldown
	// keeps the VM where it is.
	require.True(t, sim.CompleteMigration(vm1))
	pln.HandleMigrationComplete(1_200_000, vm1)
	pln.Migrate(1_500_000, vm1, "test again")
	assert.Empty(t, sim.PendingMigrationVMs())

	// After the window it may move again.
	pln.Migrate(2_100_000, vm1, "after cooldown")
	assert.Equal(t, []domain.VMID{vm1}, sim.PendingMigrationVMs())
	_ = dst
}

func TestMigrationComplete_HighPriorityDestinationRunsP0(t *testing.T) {
	sim := simfake.New()
	src := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})
	dst := sim.AddMachine(simfake.MachineSpec{CPU: domain.X86, Cores: 4, MemoryMB: 16384, SState: domain.S0})

	pln, mdl := newTestPlanner(t, sim)
	vm1 := attachVM(t, sim, mdl, src)
	task := runTask(t, sim, vm1, domain.SLA0)
	require.NoError(t, sim.SetTaskPriority(task, domain.PriorityHigh))

	pln.Migrate(1_000_000, vm1, "test")
	target, ok := mdl.MigrationTarget(vm1)
	require.True(t, ok)
	require.Equal(t, dst, target)

	require.True(t, sim.CompleteMigration(vm1))
	pln.HandleMigrationComplete(2_000_000, vm1)

	assert.False(t, mdl.IsMigrating(vm1))
	info, err := sim.MachineInfo(dst)
	require.NoError(t, err)
	assert.Equal(t, domain.P0, info.PState)
}
