// Command nimo-registryd runs the Registry (spec §4.G): the
// authoritative data model for machines, nodes, channels, connections
// and applications, served over a TCP command port and announced over
// mDNS so the rest of the fleet can find it.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/config"
	"github.com/opendragon/nimo/internal/discovery"
	"github.com/opendragon/nimo/internal/nimolog"
	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/statusbus"
)

var (
	configPath  string
	logPath     string
	logLevel    string
	listenAddr  string
	metricsAddr string
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
		Use:   "nimo-registryd",
		Short: "Run the nImO Registry",
		Args:  cobra.NoArgs,
		RunE:  runRegistryd,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to nimo.yaml (default: ./nimo.yaml, /etc/nimo/nimo.yaml)")
	cmd.Flags().StringVar(&logPath, "log", "", "path to a log file in addition to stderr")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error, fatal")
	cmd.Flags().StringVar(&listenAddr, "listen", ":0", "command port listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-listen", ":9610", "Prometheus /metrics listen address")
	return cmd
}

func runRegistryd(cmd *cobra.Command, args []string) error {
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
	log := nimolog.Tagged("registryd")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	group := fmt.Sprintf("%s:%d", cfg.StatusBus.Group, cfg.StatusBus.Port)
	publisher, err := statusbus.NewPublisher(group)
	if err != nil {
		return fmt.Errorf("start status bus: %w", err)
	}
	defer publisher.Close()

	r := registry.New(publisher, registry.DefaultHeartbeatTimeout)
	r.StartReaper(registry.DefaultHeartbeatTimeout / 3)
	defer r.StopReaper()

	reg := prometheus.NewRegistry()
	metrics := registry.NewMetrics(reg)
	go func() {
		for range time.Tick(5 * time.Second) {
			metrics.Refresh(r)
		}
	}()

	engine := command.NewEngine("registryd", 16)
	if err := registry.RegisterHandlers(engine, r, metrics); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listenAddr, err)
	}
	defer ln.Close()
	log.Info("command port listening on %v", ln.Addr())

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("unexpected listener address type %T", ln.Addr())
	}
	ipv4 := tcpAddr.IP.To4()
	if ipv4 == nil {
		ipv4 = net.IPv4(127, 0, 0, 1).To4()
	}
	loc := discovery.Location{Address: ipv4, Port: tcpAddr.Port}
	announcer := discovery.NewAnnouncer(loc)
	if err := announcer.Start(); err != nil {
		return fmt.Errorf("start mDNS announcer: %w", err)
	}
	defer announcer.Stop()
	log.Info("announcing registry at %v over mDNS", loc)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server: %v", err)
		}
	}()
	log.Info("metrics listening on %v", metricsAddr)

	return engine.Serve(ln)
}
