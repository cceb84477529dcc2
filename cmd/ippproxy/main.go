// IPP infrastructure printer proxy: bridges an IPP Infrastructure Printer
// to a local output device reachable over socket:// or ipp(s)://.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kardianos/service"

	"github.com/istopwg/ippinfra/internal/capability"
	"github.com/istopwg/ippinfra/internal/diag"
	"github.com/istopwg/ippinfra/internal/ipp"
	"github.com/istopwg/ippinfra/internal/ippcfg"
	"github.com/istopwg/ippinfra/internal/jobtable"
	"github.com/istopwg/ippinfra/internal/logging"
	"github.com/istopwg/ippinfra/internal/poller"
	"github.com/istopwg/ippinfra/internal/proxyctx"
	"github.com/istopwg/ippinfra/internal/reconciler"
	"github.com/istopwg/ippinfra/internal/registrar"
	"github.com/istopwg/ippinfra/internal/worker"
)

var (
	configPath  = flag.String("config", "ippproxy.toml", "path to the configuration file")
	writeConfig = flag.Bool("write-config", false, "write a default configuration file to -config and exit")
	svcAction   = flag.String("service", "", "service control action: install, uninstall, start, stop (platform service mode)")
)

func main() {
	flag.Parse()

	if *writeConfig {
		if err := ippcfg.WriteDefault(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if *svcAction != "" {
		runServiceControl(*svcAction)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if err := runInteractive(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ippproxy:", err)
		os.Exit(1)
	}
}

func runServiceControl(action string) {
	cfg, err := ippcfg.Load(*configPath)
	if err != nil {
		cfg = ippcfg.Default()
	}
	svcConfig := serviceConfig(cfg)

	prg := &program{}
	svc, err := service.New(prg, svcConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ippproxy: service setup:", err)
		os.Exit(1)
	}

	if err := service.Control(svc, action); err != nil {
		fmt.Fprintln(os.Stderr, "ippproxy: service control:", err)
		os.Exit(1)
	}
}

// runInteractive implements §4's full startup/shutdown sequence: load
// config, probe the local device (C1), register with the infrastructure
// printer (C2), push the initial attribute set (C3), seed the job table
// (C4 startup scan), then run the poller and worker until ctx is canceled.
// It returns a non-nil error when the config fails to load or validate,
// when registration fails, or when the worker session cannot be opened;
// main exits with code 1 on any of them.
func runInteractive(ctx context.Context) error {
	cfg, err := ippcfg.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(logging.LevelFromString(cfg.Verbosity), 4096)
	log.SetVerboseIPP(cfg.VerboseIPP)

	deviceUUID := capability.DeriveDeviceUUID(cfg.DeviceURI)
	pc := proxyctx.New(cfg.InfrastructureURI, cfg.DeviceURI, deviceUUID, cfg.PreferredOutputFormat, cfg.RequestingUser)

	table := jobtable.New()

	infraDial := infrastructureDialer(cfg, log)

	log.Info("registering with infrastructure printer", "uri", cfg.InfrastructureURI)
	pollerSession, err := registrar.Register(ctx, pc, infraDial, log)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	defer registrar.Deregister(context.Background(), pc, pollerSession, log)

	if err := probeAndPush(ctx, pc, pollerSession, log); err != nil {
		log.Warn("initial capability probe/push failed, continuing with empty attribute set", "err", err)
	}

	p := poller.New(pc, table, pollerSession, infraDial, log)
	if err := p.StartupScan(ctx); err != nil {
		log.Warn("startup job scan failed", "err", err)
	}

	// §5: the worker owns its own session, separate from the poller's, so
	// each keeps its own connection and neither blocks on the other's
	// traffic. It never needs a subscription, so a bare dial suffices.
	workerClient, err := dialInfrastructure(ctx, cfg, pc.PrinterURI(), log)
	if err != nil {
		return fmt.Errorf("worker session open failed: %w", err)
	}
	workerSession := &registrar.Session{Client: workerClient}

	localDial := localDeviceDialer(cfg)
	w := worker.New(pc, table, workerSession, infraDial, localDial, log)

	if cfg.Diagnostics.Enabled {
		dashboard := diag.New(table, log, cfg.Diagnostics.Addr)
		if err := dashboard.Start(); err != nil {
			log.Warn("diagnostic dashboard failed to start", "err", err)
		} else {
			defer dashboard.Stop()
		}
	}

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	go w.Run(ctx)

	<-ctx.Done()
	log.Info("shutdown requested, stopping")
	pc.Shutdown()
	table.Signal()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}

	if err := jobtable.WriteSnapshot(cfg.StateDir, table, time.Now()); err != nil {
		log.Warn("job-table snapshot write failed", "err", err)
	}
	return nil
}

// probeAndPush runs one capability probe (C1) and reconciler push (C3)
// cycle; runInteractive calls it once, at startup. An ipp:// or ipps://
// device is probed over its own connection; the push goes over sess.
func probeAndPush(ctx context.Context, pc *proxyctx.Context, sess *registrar.Session, log *logging.Logger) error {
	prober := ipp.ClientProber{}
	if deviceURI := pc.DeviceURI(); strings.HasPrefix(deviceURI, "ipp://") || strings.HasPrefix(deviceURI, "ipps://") {
		localClient, err := ipp.Dial(ctx, deviceURI, ipp.Options{})
		if err != nil {
			return fmt.Errorf("dial local device: %w", err)
		}
		prober.Client = localClient
	}
	attrs, err := capability.Probe(ctx, pc.DeviceURI(), prober)
	if err != nil {
		return err
	}

	pusher := ipp.ClientPusher{Client: sess.Client}
	return reconciler.Reconcile(ctx, pc, attrs, pusher)
}

// infrastructureDialer adapts ipp.Dial into a registrar.Dialer bound to
// cfg's credentials and trace settings.
func infrastructureDialer(cfg *ippcfg.Config, log *logging.Logger) registrar.Dialer {
	return func(ctx context.Context, target string) (*ipp.Client, error) {
		return dialInfrastructure(ctx, cfg, target, log)
	}
}

func dialInfrastructure(ctx context.Context, cfg *ippcfg.Config, target string, log *logging.Logger) (*ipp.Client, error) {
	opts := ipp.Options{Username: cfg.Username}
	if cfg.Username != "" {
		opts.Password = func(realm, resource string) (string, error) {
			return cfg.Password, nil
		}
	}
	if cfg.VerboseIPP {
		opts.Trace = log.IPPTrace
	}
	return ipp.Dial(ctx, target, opts)
}

// localDeviceDialer adapts ipp.Dial into a transport.LocalDialer for the
// ipp(s):// local-device transport path; socket:// devices never go through
// this dialer since the worker dispatches on scheme before calling it.
func localDeviceDialer(cfg *ippcfg.Config) func(ctx context.Context, target string) (*ipp.Client, error) {
	return func(ctx context.Context, target string) (*ipp.Client, error) {
		opts := ipp.Options{}
		return ipp.Dial(ctx, target, opts)
	}
}

func serviceConfig(cfg *ippcfg.Config) *service.Config {
	return &service.Config{
		Name:        cfg.Service.Name,
		DisplayName: cfg.Service.DisplayName,
		Description: cfg.Service.Description,
		Arguments:   []string{"-config", *configPath},
	}
}
