// Command nimoctl is an operator utility context (spec §4.E "utility")
// exercising the Registry proxy from the command line: add/remove a
// node, list channels, connect/disconnect, check reachability, stop a
// running node, and watch the status bus.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/config"
	"github.com/opendragon/nimo/internal/discovery"
	"github.com/opendragon/nimo/internal/nimolog"
	"github.com/opendragon/nimo/internal/registryproxy"
)

// version is the nimoctl build version, overridable at link time
// (-ldflags "-X main.version=...").
var version = "dev"

var (
	configPath   string
	logPath      string
	tag          string
	registryAddr string
	timeout      time.Duration
	log          *nimolog.TaggedLogger
)

func main() {
	root := newRootCmd()
	err := root.Execute()
	os.Exit(exitCode(err))
}

// exitError carries the process exit code spec §6 assigns to a
// nimoctl failure, distinct from cobra's own usage-error path.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

// classify maps a registry-proxy call error onto spec §6's exit codes:
// 2 for a Registry that cannot be reached, 3 for a request the Registry
// refused, -1 for anything else.
func classify(err error) error {
	if err == nil {
		return nil
	}
	f := command.AsFailure(err)
	if f == nil {
		return fail(-1, err)
	}
	switch f.Kind {
	case command.RegistryNotFound, command.Timeout:
		return fail(2, f)
	default:
		return fail(3, f)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exitError); ok {
		fmt.Fprintln(os.Stderr, ee.err)
		return ee.code
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nimoctl",
		Short:         "Operate a running nImO fleet from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			nimolog.AddLogger("stdio", os.Stderr, nimolog.Warn)
			if logPath != "" {
				f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return fail(1, fmt.Errorf("open log file: %w", err))
				}
				nimolog.AddLogger("file", f, nimolog.Debug)
			}
			log = nimolog.Tagged(tag)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to nimo.yaml")
	cmd.PersistentFlags().StringVar(&logPath, "log", "", "path to a log file in addition to stderr")
	cmd.PersistentFlags().StringVar(&tag, "tag", "nimoctl", "identifying tag for this invocation")
	cmd.PersistentFlags().StringVar(&registryAddr, "registry", "", "registry command-port address (host:port); discovered via mDNS if omitted")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "deadline for each registry call")

	cmd.AddCommand(
		newAddNodeCmd(),
		newRemoveNodeCmd(),
		newListChannelsCmd(),
		newConnectCmd(),
		newDisconnectCmd(),
		newCheckCmd(),
		newStopCmd(),
		newWatchCmd(),
	)
	return cmd
}

// connect resolves the Registry's command endpoint, from --registry, the
// config file, or mDNS discovery, in that order, and returns a bound
// Proxy.
func connect(ctx context.Context) (*registryproxy.Proxy, error) {
	if registryAddr != "" {
		return registryproxy.New(registryAddr), nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fail(1, err)
	}
	if cfg.Registry.Address != "" {
		return registryproxy.New(fmt.Sprintf("%s:%d", cfg.Registry.Address, cfg.Registry.CommandPort)), nil
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	loc, err := discovery.NewResolver().Resolve(dctx, timeout)
	if err != nil {
		return nil, fail(2, err)
	}
	return registryproxy.New(loc.String()), nil
}

func callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// parseIPv4 parses a dotted-quad string into the uint32 form
// registry.Endpoint carries.
func parseIPv4(s string) (uint32, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("invalid IPv4 address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not an IPv4 address: %q", s)
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), nil
}
