package registryproxy

import (
	"context"

	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/value"
)

// AddMachine registers a machine with the Registry.
func (p *Proxy) AddMachine(ctx context.Context, name string, address uint32) error {
	_, err := p.call(ctx, "addMachine?", value.NewString(name), value.NewInteger(int64(address)))
	return err
}

// RemoveMachine removes a machine from the Registry.
func (p *Proxy) RemoveMachine(ctx context.Context, name string) error {
	_, err := p.call(ctx, "removeMachine?", value.NewString(name))
	return err
}

// IsMachinePresent reports whether name is known to the Registry.
func (p *Proxy) IsMachinePresent(ctx context.Context, name string) (bool, error) {
	v, err := p.call(ctx, "isMachinePresent?", value.NewString(name))
	if err != nil {
		return false, err
	}
	return boolOf(v)
}

// GetMachineInformation fetches one machine's recorded attributes.
func (p *Proxy) GetMachineInformation(ctx context.Context, name string) (registry.Machine, error) {
	v, err := p.call(ctx, "getMachineInformation?", value.NewString(name))
	if err != nil {
		return registry.Machine{}, err
	}
	arr, err := arrayArg(v)
	if err != nil {
		return registry.Machine{}, err
	}
	if len(arr) != 2 {
		return registry.Machine{}, errMalformed("machine")
	}
	mname, ok := arr[0].AsString()
	if !ok {
		return registry.Machine{}, errMalformed("machine")
	}
	addr, ok := arr[1].AsAddress()
	if !ok {
		return registry.Machine{}, errMalformed("machine")
	}
	return registry.Machine{Name: mname, Address: addr}, nil
}

// GetNamesOfMachines lists every known machine.
func (p *Proxy) GetNamesOfMachines(ctx context.Context) ([]string, error) {
	v, err := p.call(ctx, "getNamesOfMachines?")
	if err != nil {
		return nil, err
	}
	return stringsOf(v)
}

// GetNumberOfMachines returns the machine count.
func (p *Proxy) GetNumberOfMachines(ctx context.Context) (int, error) {
	v, err := p.call(ctx, "getNumberOfMachines?")
	if err != nil {
		return 0, err
	}
	n, err := intOf(v)
	return int(n), err
}
