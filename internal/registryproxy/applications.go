package registryproxy

import (
	"context"

	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/value"
)

// RegisterApplication adds or replaces one catalogue entry for a
// launcher (see DESIGN.md, internal/launcher "Supplemented wire surface":
// a launcher pushes its application list to the Registry via this call
// during reloadAppList).
func (p *Proxy) RegisterApplication(ctx context.Context, a registry.Application) error {
	_, err := p.call(ctx, "registerApplication?",
		value.NewString(a.LauncherNode), value.NewString(a.ShortName),
		value.NewString(a.Description), value.NewString(a.Path))
	return err
}

// UnregisterApplicationsExcept drops every catalogue entry for
// launcherNode not named in keep, the mechanism by which a launcher's
// reload resolves removed applications (see DESIGN.md "application
// catalogue reload").
func (p *Proxy) UnregisterApplicationsExcept(ctx context.Context, launcherNode string, keep []string) error {
	_, err := p.call(ctx, "unregisterApplicationsExcept?", value.NewString(launcherNode), namesToValue(keep))
	return err
}

// GetApplicationInformation returns one catalogue entry.
func (p *Proxy) GetApplicationInformation(ctx context.Context, launcherNode, shortName string) (registry.Application, error) {
	v, err := p.call(ctx, "getApplicationInformation?", value.NewString(launcherNode), value.NewString(shortName))
	if err != nil {
		return registry.Application{}, err
	}
	return applicationFromValue(v)
}

// GetNumberOfApplications returns the launcher catalogue size across the
// whole fleet.
func (p *Proxy) GetNumberOfApplications(ctx context.Context) (int, error) {
	v, err := p.call(ctx, "getNumberOfApplications?")
	if err != nil {
		return 0, err
	}
	n, err := intOf(v)
	return int(n), err
}

// GetNamesOfApplicationsOnNode lists the short names a launcher offers.
func (p *Proxy) GetNamesOfApplicationsOnNode(ctx context.Context, launcherNode string) ([]string, error) {
	v, err := p.call(ctx, "getNamesOfApplicationsOnNode?", value.NewString(launcherNode))
	if err != nil {
		return nil, err
	}
	return stringsOf(v)
}

func applicationFromValue(v value.Value) (registry.Application, error) {
	arr, err := arrayArg(v)
	if err != nil {
		return registry.Application{}, err
	}
	if len(arr) != 4 {
		return registry.Application{}, errMalformed("application")
	}
	launcherNode, ok1 := arr[0].AsString()
	shortName, ok2 := arr[1].AsString()
	description, ok3 := arr[2].AsString()
	path, ok4 := arr[3].AsString()
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return registry.Application{}, errMalformed("application")
	}
	return registry.Application{
		LauncherNode: launcherNode, ShortName: shortName, Description: description, Path: path,
	}, nil
}

// GetInformationForAllApplicationsOnNode lists every application a
// launcher offers.
func (p *Proxy) GetInformationForAllApplicationsOnNode(ctx context.Context, launcherNode string) ([]registry.Application, error) {
	v, err := p.call(ctx, "getInformationForAllApplicationsOnNode?", value.NewString(launcherNode))
	if err != nil {
		return nil, err
	}
	arr, err := arrayArg(v)
	if err != nil {
		return nil, err
	}
	out := make([]registry.Application, len(arr))
	for i, e := range arr {
		a, err := applicationFromValue(e)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}
