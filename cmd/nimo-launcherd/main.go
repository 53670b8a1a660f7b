// Command nimo-launcherd runs a launcher context (spec §4.I): it
// publishes a catalogue of runnable applications and spawns them on
// request, reporting the child PID to whichever context called
// startApp.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opendragon/nimo/internal/config"
	"github.com/opendragon/nimo/internal/discovery"
	"github.com/opendragon/nimo/internal/launcher"
	"github.com/opendragon/nimo/internal/nimocontext"
	"github.com/opendragon/nimo/internal/nimolog"
	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/registryproxy"
)

var (
	configPath string
	appsPath   string
	logPath    string
	logLevel   string
	nodeName   string
	machine    string
	listenAddr string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nimo-launcherd",
		Short: "Run a nImO launcher context",
		Args:  cobra.NoArgs,
		RunE:  runLauncherd,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to nimo.yaml")
	cmd.Flags().StringVar(&appsPath, "apps", "", "path to a YAML application catalogue (required)")
	cmd.Flags().StringVar(&logPath, "log", "", "path to a log file in addition to stderr")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error, fatal")
	cmd.Flags().StringVar(&nodeName, "tag", "", "node name to register with the registry (default: hostname)")
	cmd.Flags().StringVar(&machine, "machine", "", "machine name to report (default: hostname)")
	cmd.Flags().StringVar(&listenAddr, "listen", ":0", "command port listen address")
	cmd.MarkFlagRequired("apps")
	return cmd
}

// catalogueFile is the on-disk shape of the --apps YAML file: a flat
// list of application descriptors, one per runnable program.
type catalogueFile struct {
	Apps []launcher.AppDescriptor `yaml:"apps"`
}

func loadCatalogue(path string) ([]launcher.AppDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read app catalogue: %w", err)
	}
	var cf catalogueFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("parse app catalogue: %w", err)
	}
	return cf.Apps, nil
}

func runLauncherd(cmd *cobra.Command, args []string) error {
	level, err := nimolog.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	nimolog.AddLogger("stdio", os.Stderr, level)
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		nimolog.AddLogger("file", f, level)
	}
	log := nimolog.Tagged("launcherd")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	apps, err := loadCatalogue(appsPath)
	if err != nil {
		return err
	}

	if nodeName == "" {
		nodeName, _ = os.Hostname()
	}
	if machine == "" {
		machine, _ = os.Hostname()
	}

	ctx := context.Background()

	var proxy *registryproxy.Proxy
	if cfg.Registry.Address != "" {
		addr := fmt.Sprintf("%s:%d", cfg.Registry.Address, cfg.Registry.CommandPort)
		proxy = registryproxy.New(addr)
		log.Info("using configured registry at %v", addr)
	} else {
		var loc discovery.Location
		resolver := discovery.NewResolver()
		if cfg.Discovery.WaitForRegistry {
			loc, err = resolver.WaitForRegistry(ctx)
		} else {
			loc, err = resolver.Resolve(ctx, cfg.Discovery.TimeoutSeconds)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		proxy = registryproxy.New(loc.String())
		log.Info("discovered registry at %v", loc)
	}

	nctx := nimocontext.New("nimo-launcherd", nodeName, nodeName, machine, registry.KindLauncher,
		nimocontext.WithProxy(proxy))

	l := launcher.New(nctx)
	l.Load(apps)
	log.Info("loaded %d applications", len(apps))

	if err := nctx.Serve(ctx, listenAddr); err != nil {
		return fmt.Errorf("serve command port: %w", err)
	}
	defer nctx.Stop(ctx)

	log.Info("launcher %v listening on %v", nodeName, nctx.CommandEndpoint())

	select {}
}
