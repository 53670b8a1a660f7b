// Package launcher implements the launcher context of spec §4.I: a
// catalogue of runnable applications published over the command port,
// plus startApp spawning a detached child process.
//
// Grounded on the teacher's minicli handler-registration shape (one key,
// one closure) layered over internal/nimocontext, and on os/exec for
// process spawning since the teacher's own process-launching code
// (`cmd/minimega`'s VM launch path) is itself a thin os/exec wrapper.
package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/nimocontext"
	"github.com/opendragon/nimo/internal/nimolog"
	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/value"
)

// AppDescriptor is one catalogue entry: the full local descriptor a
// launcher holds, richer than the Registry's replica (spec §4.I names
// argument and option descriptor lists the Registry's wire Application
// value does not carry; those stay local to the launcher and are served
// by getRunOptionsForApp/getRunParamsForApp).
type AppDescriptor struct {
	ShortName   string   `yaml:"shortName"`
	Description string   `yaml:"description"`
	Path        string   `yaml:"path"`
	ArgParams   []string `yaml:"argParams"` // argument descriptor names, positional
	Options     []string `yaml:"options"` // option descriptor names (flags)
}

// Launcher is a context of kind registry.KindLauncher that publishes an
// application catalogue and can start child processes.
type Launcher struct {
	ctx *nimocontext.Context
	log *nimolog.TaggedLogger

	mu   sync.RWMutex
	apps map[string]AppDescriptor
}

// New wraps ctx (which must be of kind registry.KindLauncher) as a
// Launcher and registers its command handlers.
func New(ctx *nimocontext.Context) *Launcher {
	l := &Launcher{
		ctx:  ctx,
		log:  ctx.Logger(),
		apps: make(map[string]AppDescriptor),
	}
	l.registerHandlers()
	return l
}

// Engine returns the launcher's underlying command engine, for tests and
// for embedding callers that need to dispatch other requests alongside
// the launcher's own handler set.
func (l *Launcher) Engine() *command.Engine { return l.ctx.Engine() }

func (l *Launcher) registerHandlers() {
	engine := l.ctx.Engine()
	engine.MustRegister("getNumberOfApplications?", func(ctx context.Context, args []value.Value) (value.Value, error) {
		l.mu.RLock()
		defer l.mu.RUnlock()
		return value.NewInteger(int64(len(l.apps))), nil
	})
	engine.MustRegister("getApplicationInfo?", func(ctx context.Context, args []value.Value) (value.Value, error) {
		a, err := l.lookup(args)
		if err != nil {
			return value.Value{}, err
		}
		return descriptorToValue(a), nil
	})
	engine.MustRegister("getRunOptionsForApp?", func(ctx context.Context, args []value.Value) (value.Value, error) {
		a, err := l.lookup(args)
		if err != nil {
			return value.Value{}, err
		}
		return stringsToValue(a.Options), nil
	})
	engine.MustRegister("getRunParamsForApp?", func(ctx context.Context, args []value.Value) (value.Value, error) {
		a, err := l.lookup(args)
		if err != nil {
			return value.Value{}, err
		}
		return stringsToValue(a.ArgParams), nil
	})
	engine.MustRegister("startApp?", func(ctx context.Context, args []value.Value) (value.Value, error) {
		return l.handleStartApp(ctx, args)
	})
	engine.MustRegister("reloadAppList?", func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.Value{}, l.handleReload(ctx)
	})
}

func (l *Launcher) lookup(args []value.Value) (AppDescriptor, error) {
	if len(args) < 1 {
		return AppDescriptor{}, command.Fail(command.MissingArgument, "missing argument")
	}
	shortName, ok := args[0].AsString()
	if !ok {
		return AppDescriptor{}, command.Fail(command.BadArgument, "argument is not a string")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.apps[shortName]
	if !ok {
		return AppDescriptor{}, command.Fail(command.NotFound, "application "+shortName+" not found")
	}
	return a, nil
}

func descriptorToValue(a AppDescriptor) value.Value {
	return value.NewArray([]value.Value{
		value.NewString(a.ShortName),
		value.NewString(a.Description),
		value.NewString(a.Path),
		stringsToValue(a.ArgParams),
		stringsToValue(a.Options),
	})
}

func stringsToValue(ss []string) value.Value {
	elems := make([]value.Value, len(ss))
	for i, s := range ss {
		elems[i] = value.NewString(s)
	}
	return value.NewArray(elems)
}

// Load replaces the launcher's in-memory catalogue outright, used at
// start-up before the first reloadAppList.
func (l *Launcher) Load(apps []AppDescriptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.apps = make(map[string]AppDescriptor, len(apps))
	for _, a := range apps {
		l.apps[a.ShortName] = a
	}
}

// handleReload re-announces the current in-memory catalogue to the
// Registry and drops any entries it no longer holds (spec §4.I
// "reloadAppList"; the Registry-side mechanics are
// RegisterApplication/UnregisterApplicationsExcept, see DESIGN.md).
func (l *Launcher) handleReload(ctx context.Context) error {
	proxy := l.ctx.Proxy()
	if proxy == nil {
		return nil
	}

	l.mu.RLock()
	apps := make([]AppDescriptor, 0, len(l.apps))
	for _, a := range l.apps {
		apps = append(apps, a)
	}
	l.mu.RUnlock()

	keep := make([]string, 0, len(apps))
	for _, a := range apps {
		if err := proxy.RegisterApplication(ctx, registry.Application{
			LauncherNode: l.ctx.NodeName(), ShortName: a.ShortName,
			Description: a.Description, Path: a.Path,
		}); err != nil {
			return err
		}
		keep = append(keep, a.ShortName)
	}
	return proxy.UnregisterApplicationsExcept(ctx, l.ctx.NodeName(), keep)
}

func (l *Launcher) handleStartApp(_ context.Context, args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.Value{}, command.Fail(command.MissingArgument, "missing argument")
	}
	shortName, ok := args[0].AsString()
	if !ok {
		return value.Value{}, command.Fail(command.BadArgument, "argument is not a string")
	}

	var argValues, optValues []value.Value
	if len(args) >= 2 {
		if arr, ok := args[1].AsArray(); ok {
			argValues = arr
		}
	}
	if len(args) >= 3 {
		if arr, ok := args[2].AsArray(); ok {
			optValues = arr
		}
	}

	l.mu.RLock()
	a, ok := l.apps[shortName]
	l.mu.RUnlock()
	if !ok {
		return value.Value{}, command.Fail(command.NotFound, "application "+shortName+" not found")
	}

	argv := make([]string, 0, len(argValues)+len(optValues))
	for _, v := range argValues {
		if s, ok := v.AsString(); ok {
			argv = append(argv, s)
		}
	}
	for _, v := range optValues {
		if s, ok := v.AsString(); ok {
			argv = append(argv, s)
		}
	}

	pid, err := l.startApp(a, argv)
	if err != nil {
		return value.Value{}, command.Fail(command.Internal, err.Error())
	}
	return value.NewInteger(int64(pid)), nil
}

// startApp spawns a on the local machine and returns its PID. It does
// not track the child after launch: the child registers itself as a
// Node once it starts (spec §4.I).
func (l *Launcher) startApp(a AppDescriptor, argv []string) (int, error) {
	cmd := exec.Command(a.Path, argv...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", a.ShortName, err)
	}
	pid := cmd.Process.Pid
	go func() {
		if err := cmd.Wait(); err != nil {
			l.log.Debug("application %s (pid %d) exited: %v", a.ShortName, pid, err)
		}
	}()
	return pid, nil
}
