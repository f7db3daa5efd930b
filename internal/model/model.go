// Package model maintains the controller's in-memory mirror of the
// cluster: machine and VM registries, the active-machine set, per-machine
// utilization, the efficiency ordering and in-flight migrations. It is the
// single source of truth queried by the placement engine, the power
// governor and the migration planner.
//
// The simulator drives the controller single-threaded, so the model takes
// no locks. Utilization is recomputed from live simulator queries on every
// periodic tick and task completion, and for the host concerned on an SLA
// warning or a migration completion. On other events (a new task, a
// memory warning) placement and migration-target selection read the last
// computed value; it is not refreshed for them.
package model

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ayjanu/EEC-Project/internal/cluster"
	"github.com/ayjanu/EEC-Project/internal/domain"
)

// Model mirrors cluster state for the controller.
type Model struct {
	cluster cluster.Cluster
	logger  *zap.Logger

	machines []domain.MachineID
	vms      []domain.VMID

	byCPU  map[domain.CPUType][]domain.MachineID
	active map[domain.MachineID]struct{}

	utilization map[domain.MachineID]float64

	// sortedByEfficiency orders machines by ascending S0 idle power.
	// Computed once at Rebuild; idle power is fixed hardware data.
	sortedByEfficiency []domain.MachineID

	// pendingMigrations maps a migrating VM to its destination. A VM
	// appears at most once; while present it is invisible to placement
	// and to further migration attempts.
	pendingMigrations map[domain.VMID]domain.MachineID

	// unattachedByCPU indexes VMs created with a deferred attach,
	// waiting for their wake-up target to reach S0.
	unattachedByCPU map[domain.CPUType][]domain.VMID
}

// New creates an empty model. Rebuild populates it from the census.
func New(c cluster.Cluster, logger *zap.Logger) *Model {
	return &Model{
		cluster:           c,
		logger:            logger.With(zap.String("component", "model")),
		byCPU:             make(map[domain.CPUType][]domain.MachineID),
		active:            make(map[domain.MachineID]struct{}),
		utilization:       make(map[domain.MachineID]float64),
		pendingMigrations: make(map[domain.VMID]domain.MachineID),
		unattachedByCPU:   make(map[domain.CPUType][]domain.VMID),
	}
}

// Rebuild enumerates the simulator census: groups machines by CPU type,
// sorts them by ascending S0 idle power and seeds the active set from the
// machines observed in S0.
func (m *Model) Rebuild() {
	total := m.cluster.MachineTotal()

	type efficiency struct {
		power uint64
		id    domain.MachineID
	}
	ranked := make([]efficiency, 0, total)

	for i := 0; i < total; i++ {
		id := domain.MachineID(i)
		m.machines = append(m.machines, id)
		m.utilization[id] = 0

		info, err := m.cluster.MachineInfo(id)
		if err != nil {
			m.logger.Warn("Failed to read machine during census",
				zap.Uint32("machine_id", uint32(id)), zap.Error(err))
			ranked = append(ranked, efficiency{power: ^uint64(0), id: id})
			continue
		}

		m.byCPU[info.CPU] = append(m.byCPU[info.CPU], id)
		ranked = append(ranked, efficiency{power: info.IdlePower(domain.S0), id: id})

		if info.SState == domain.S0 {
			m.active[id] = struct{}{}
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].power < ranked[j].power
	})
	m.sortedByEfficiency = m.sortedByEfficiency[:0]
	for _, e := range ranked {
		m.sortedByEfficiency = append(m.sortedByEfficiency, e.id)
	}

	m.logger.Info("Cluster census complete",
		zap.Int("machines", total),
		zap.Int("active", len(m.active)),
	)
}

// Machines returns machine ids in census order.
func (m *Model) Machines() []domain.MachineID {
	return m.machines
}

// VMs returns VM ids in stable registration order.
func (m *Model) VMs() []domain.VMID {
	return m.vms
}

// MachinesByCPU returns machine ids with the given CPU architecture.
func (m *Model) MachinesByCPU(cpu domain.CPUType) []domain.MachineID {
	return m.byCPU[cpu]
}

// SortedByEfficiency returns machine ids ordered by ascending S0 idle
// power.
func (m *Model) SortedByEfficiency() []domain.MachineID {
	return m.sortedByEfficiency
}

// IsActive reports whether the machine is in the active set. Membership
// follows observed S0 state, except that the governor removes a machine as
// soon as it requests standby and the migration planner adds one as soon
// as it requests a wake-up.
func (m *Model) IsActive(id domain.MachineID) bool {
	_, ok := m.active[id]
	return ok
}

// ActiveCount returns the number of machines in the active set.
func (m *Model) ActiveCount() int {
	return len(m.active)
}

// ActivateMachine inserts a machine into the active set and zeroes its
// utilization.
func (m *Model) ActivateMachine(id domain.MachineID) {
	m.active[id] = struct{}{}
	m.utilization[id] = 0
}

// DeactivateMachine removes a machine from the active set and zeroes its
// utilization.
func (m *Model) DeactivateMachine(id domain.MachineID) {
	delete(m.active, id)
	m.utilization[id] = 0
}

// RegisterVM adds a VM to the registry. Registration order is the tie
// break for placement scans.
func (m *Model) RegisterVM(id domain.VMID) {
	m.vms = append(m.vms, id)
}

// Utilization returns the last computed utilization for a machine.
func (m *Model) Utilization(id domain.MachineID) float64 {
	return m.utilization[id]
}

// RefreshUtilization recomputes one machine's utilization from a live
// query. A machine observed outside S0 is dropped from the active set.
func (m *Model) RefreshUtilization(id domain.MachineID) {
	info, err := m.cluster.MachineInfo(id)
	if err != nil {
		m.logger.Debug("Machine query failed, deactivating",
			zap.Uint32("machine_id", uint32(id)), zap.Error(err))
		m.DeactivateMachine(id)
		return
	}
	if info.SState != domain.S0 {
		m.DeactivateMachine(id)
		return
	}
	m.utilization[id] = info.Utilization()
}

// RefreshAllUtilization recomputes utilization for every machine.
func (m *Model) RefreshAllUtilization() {
	for _, id := range m.machines {
		if m.IsActive(id) {
			m.RefreshUtilization(id)
		} else {
			m.utilization[id] = 0
		}
	}
}

// VMsOn lists VMs currently attached to the given machine, resolved
// through live queries.
func (m *Model) VMsOn(machine domain.MachineID) []domain.VMID {
	var out []domain.VMID
	for _, vm := range m.vms {
		info, err := m.cluster.VMInfo(vm)
		if err != nil {
			continue
		}
		if info.MachineID == machine {
			out = append(out, vm)
		}
	}
	return out
}

// IsMigrating reports whether the VM has an outstanding migration.
func (m *Model) IsMigrating(vm domain.VMID) bool {
	_, ok := m.pendingMigrations[vm]
	return ok
}

// MigrationTarget returns the destination of an in-flight migration.
func (m *Model) MigrationTarget(vm domain.VMID) (domain.MachineID, bool) {
	t, ok := m.pendingMigrations[vm]
	return t, ok
}

// BeginMigration records an in-flight migration. It returns false when
// the VM already has one outstanding; at most one migration per VM is
// permitted.
func (m *Model) BeginMigration(vm domain.VMID, target domain.MachineID) bool {
	if _, ok := m.pendingMigrations[vm]; ok {
		return false
	}
	m.pendingMigrations[vm] = target
	return true
}

// EndMigration clears the pending record for a VM. The model keeps no
// VM-to-machine binding of its own, so nothing is rebound here; the VM's
// host is read from the cluster on each use. Returns the recorded
// destination, if any.
func (m *Model) EndMigration(vm domain.VMID) (domain.MachineID, bool) {
	t, ok := m.pendingMigrations[vm]
	delete(m.pendingMigrations, vm)
	return t, ok
}

// PendingMigrations returns the number of in-flight migrations.
func (m *Model) PendingMigrations() int {
	return len(m.pendingMigrations)
}

// AddUnattached records a VM created with a deferred attach, indexed by
// the CPU type of the machine being woken for it.
func (m *Model) AddUnattached(cpu domain.CPUType, vm domain.VMID) {
	m.unattachedByCPU[cpu] = append(m.unattachedByCPU[cpu], vm)
}

// TakeUnattached pops one deferred-attach VM for the given CPU type.
func (m *Model) TakeUnattached(cpu domain.CPUType) (domain.VMID, bool) {
	queue := m.unattachedByCPU[cpu]
	if len(queue) == 0 {
		return 0, false
	}
	vm := queue[0]
	m.unattachedByCPU[cpu] = queue[1:]
	return vm, true
}

// HasUnattached reports whether a deferred-attach VM is waiting for the
// given CPU type.
func (m *Model) HasUnattached(cpu domain.CPUType) bool {
	return len(m.unattachedByCPU[cpu]) > 0
}
