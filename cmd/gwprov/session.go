package main

import (
	"context"
	"fmt"

	"gwprov/internal/browser"
	"gwprov/internal/checkpoint"
	"gwprov/internal/collect"
	"gwprov/internal/gateway"
	"gwprov/internal/inventory"
	"gwprov/internal/logging"
	"gwprov/internal/metrics"
	"gwprov/internal/portdata"
	"gwprov/internal/store"
)

// app bundles what every browser-driven command needs.
type app struct {
	sessions *browser.SessionManager
	metrics  *metrics.Metrics
	history  *store.Store // nil when history is disabled
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{
		sessions: browser.NewSessionManager(cfg.Browser),
		metrics:  metrics.New(),
	}
	if cfg.Store.Enabled {
		h, err := store.Open(cfg.StorePath())
		if err != nil {
			return nil, err
		}
		a.history = h
	}
	if err := a.sessions.Start(ctx); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return a, nil
}

// Close shuts the browser down, closes history and writes the metrics textfile.
func (a *app) Close(ctx context.Context) {
	log := logging.Get(logging.CategoryBoot)
	if a.sessions.IsConnected() {
		if err := a.sessions.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to shut down browser: %v", err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warn("failed to close history: %v", err)
		}
	}
	if path := cfg.MetricsPath(); path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			log.Warn("%v", err)
		}
	}
}

// page opens a blank page in its own browser context.
func (a *app) page(ctx context.Context, label string) (browser.Page, func(), error) {
	sess, err := a.sessions.CreateSession(ctx, label, "")
	if err != nil {
		return nil, nil, fmt.Errorf("open page for %s: %w", label, err)
	}
	release := func() {
		if err := a.sessions.CloseSession(sess.ID); err != nil {
			logging.Get(logging.CategoryBrowser).Debug("close session %s: %v", label, err)
		}
	}
	return a.sessions.Page(sess.ID), release, nil
}

// console opens a gateway console on a fresh page.
func (a *app) console(ctx context.Context, id string) (*gateway.Console, func(), error) {
	creds, err := cfg.Gateway(id)
	if err != nil {
		return nil, nil, err
	}
	page, release, err := a.page(ctx, "gw"+id)
	if err != nil {
		return nil, nil, err
	}
	return gateway.New(page, creds), release, nil
}

// opener adapts console for the inventory runner.
func (a *app) opener() inventory.Opener {
	return func(ctx context.Context, id string) (inventory.Console, func(), error) {
		c, release, err := a.console(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return c, release, nil
	}
}

// collectDatasets logs in to a gateway console and builds each attribute's
// dataset, saving a checkpoint after every build.
func (a *app) collectDatasets(ctx context.Context, id string, attrs []portdata.Attribute) ([]*portdata.Dataset, error) {
	c, release, err := a.console(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := c.Login(ctx); err != nil {
		return nil, fmt.Errorf("gateway %s login: %w", id, err)
	}
	if err := c.OpenPortSettings(ctx); err != nil {
		return nil, fmt.Errorf("gateway %s port settings: %w", id, err)
	}

	b := collect.NewBuilder(c, id, cfg.Collect.Options(), collect.WithObserver(a.metrics))
	out := make([]*portdata.Dataset, 0, len(attrs))
	for _, attr := range attrs {
		ds, stats, err := b.Build(ctx, attr)
		if err != nil {
			return nil, fmt.Errorf("gateway %s %s: %w", id, attr.Label(), err)
		}
		path, err := checkpoint.Save(cfg.OutputDir, id, ds)
		if err != nil {
			return nil, err
		}
		logging.Collect("gateway %s %s: %d/%d resolved in %d passes -> %s",
			id, attr.Label(), stats.Resolved, portdata.PortCount, stats.Passes, path)
		out = append(out, ds)
	}
	return out, nil
}
