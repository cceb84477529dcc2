package main

import (
	"context"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface so the proxy can run under the
// platform's service manager (systemd, launchd, Windows Service Control
// Manager) instead of a foreground terminal.
type program struct {
	cancel context.CancelFunc
	done   chan struct{}
	svcLog service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLog, _ = s.Logger(nil)
	if p.svcLog != nil {
		p.svcLog.Info("ippproxy service starting")
	}

	var ctx context.Context
	ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run(ctx)
	return nil
}

func (p *program) run(ctx context.Context) {
	defer close(p.done)

	if err := runInteractive(ctx); err != nil && p.svcLog != nil {
		p.svcLog.Error(err)
	}
}

func (p *program) Stop(s service.Service) error {
	if p.svcLog != nil {
		p.svcLog.Info("ippproxy service stop requested")
	}
	if p.cancel != nil {
		p.cancel()
	}

	select {
	case <-p.done:
	case <-time.After(10 * time.Second):
		if p.svcLog != nil {
			p.svcLog.Warning("ippproxy service stop timed out")
		}
	}
	return nil
}
