package registry

import (
	"github.com/opendragon/nimo/internal/command"
)

// RegisterApplication adds or replaces a launcher's catalogue entry for
// one application (spec §3, §4.I). Unlike nodes and channels, an
// application re-registered under the same (launcher, short name) pair
// overwrites the previous entry rather than failing with alreadyExists:
// this is the Open Question resolution for "application catalogue
// reload" (spec §9) — see DESIGN.md. A launcher reloading its catalogue
// from disk calls RegisterApplication once per entry; stale entries for
// applications no longer on disk are removed by a matching
// UnregisterApplicationsExcept call rather than requiring the launcher to
// track and remove each one individually.
func (r *Registry) RegisterApplication(a Application) {
	r.applicationsMu.Lock()
	defer r.applicationsMu.Unlock()
	cp := a
	r.applications[a.key()] = &cp
}

// UnregisterApplicationsExcept removes every catalogue entry for
// launcherNode whose short name is not in keep. This is how a launcher's
// reloadAppList resolves removals: it re-registers every application it
// still finds on disk, then calls this to drop the rest in one step.
func (r *Registry) UnregisterApplicationsExcept(launcherNode string, keep []string) {
	keepSet := make(map[string]bool, len(keep))
	for _, name := range keep {
		keepSet[name] = true
	}

	r.applicationsMu.Lock()
	defer r.applicationsMu.Unlock()
	for key := range r.applications {
		if key.launcherNode == launcherNode && !keepSet[key.shortName] {
			delete(r.applications, key)
		}
	}
}

// GetApplicationInformation returns one catalogue entry, or notFound.
func (r *Registry) GetApplicationInformation(launcherNode, shortName string) (Application, error) {
	r.applicationsMu.RLock()
	defer r.applicationsMu.RUnlock()
	a, ok := r.applications[appKey{launcherNode, shortName}]
	if !ok {
		return Application{}, command.Fail(command.NotFound, "application "+shortName+" not found on "+launcherNode)
	}
	return *a, nil
}

// GetNamesOfApplicationsOnNode returns the short names of every
// application a launcher offers.
func (r *Registry) GetNamesOfApplicationsOnNode(launcherNode string) []string {
	r.applicationsMu.RLock()
	defer r.applicationsMu.RUnlock()
	var names []string
	for key := range r.applications {
		if key.launcherNode == launcherNode {
			names = append(names, key.shortName)
		}
	}
	return names
}

// GetInformationForAllApplicationsOnNode returns a snapshot of every
// application a launcher offers.
func (r *Registry) GetInformationForAllApplicationsOnNode(launcherNode string) []Application {
	r.applicationsMu.RLock()
	defer r.applicationsMu.RUnlock()
	var out []Application
	for key, a := range r.applications {
		if key.launcherNode == launcherNode {
			out = append(out, *a)
		}
	}
	return out
}

// GetNumberOfApplications returns the total catalogue size across every
// launcher.
func (r *Registry) GetNumberOfApplications() int {
	r.applicationsMu.RLock()
	defer r.applicationsMu.RUnlock()
	return len(r.applications)
}
