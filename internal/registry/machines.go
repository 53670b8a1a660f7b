package registry

import (
	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/statusbus"
	"github.com/opendragon/nimo/internal/value"
)

// AddMachine records a machine, or updates its address if already known.
// Machine identity is case-insensitive (spec §3 invariant: "machine
// names are compared case-insensitively").
func (r *Registry) AddMachine(name string, address uint32) error {
	if name == "" {
		return command.Fail(command.BadArgument, "machine name must not be empty")
	}

	key := machineKey(name)

	r.machinesMu.Lock()
	_, existed := r.machines[key]
	r.machines[key] = &Machine{Name: name, Address: address}
	r.machinesMu.Unlock()

	if !existed {
		r.events.Publish(statusbus.MachineAdded, value.NewString(name))
	}
	return nil
}

// RemoveMachine removes a machine by name. It fails with notFound if the
// machine was never added, and does not cascade: nodes reference their
// machine by name, not by a foreign key the Registry enforces, mirroring
// the original's loose machine/node coupling (spec §3).
func (r *Registry) RemoveMachine(name string) error {
	key := machineKey(name)

	r.machinesMu.Lock()
	_, ok := r.machines[key]
	if ok {
		delete(r.machines, key)
	}
	r.machinesMu.Unlock()

	if !ok {
		return command.Fail(command.NotFound, "machine "+name+" not found")
	}
	r.events.Publish(statusbus.MachineRemoved, value.NewString(name))
	return nil
}

// IsMachinePresent reports whether name is a known machine.
func (r *Registry) IsMachinePresent(name string) bool {
	r.machinesMu.RLock()
	defer r.machinesMu.RUnlock()
	_, ok := r.machines[machineKey(name)]
	return ok
}

// GetMachineInformation returns the recorded Machine, or notFound.
func (r *Registry) GetMachineInformation(name string) (Machine, error) {
	r.machinesMu.RLock()
	defer r.machinesMu.RUnlock()
	m, ok := r.machines[machineKey(name)]
	if !ok {
		return Machine{}, command.Fail(command.NotFound, "machine "+name+" not found")
	}
	return *m, nil
}

// GetNamesOfMachines returns every known machine's canonical (original
// case) name.
func (r *Registry) GetNamesOfMachines() []string {
	r.machinesMu.RLock()
	defer r.machinesMu.RUnlock()
	names := make([]string, 0, len(r.machines))
	for _, m := range r.machines {
		names = append(names, m.Name)
	}
	return names
}

// GetNumberOfMachines returns the machine count.
func (r *Registry) GetNumberOfMachines() int {
	r.machinesMu.RLock()
	defer r.machinesMu.RUnlock()
	return len(r.machines)
}
